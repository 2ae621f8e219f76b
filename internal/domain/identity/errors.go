package identity

import "errors"

var (
	ErrNotFound               = errors.New("identity not found")
	ErrEmailTaken             = errors.New("email already registered")
	ErrUsernameTaken          = errors.New("username already taken")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrConflictingLink        = errors.New("discord account link conflict")
	ErrNotLinked              = errors.New("no discord account linked")
	ErrNoLocalCredential      = errors.New("account has no password login")
	ErrNotAGuildMember        = errors.New("not a member of the guild")
	ErrExternalUnavailable    = errors.New("discord service unavailable")
	ErrOwnerProtected         = errors.New("owner account cannot be modified")
	ErrSelfAction             = errors.New("cannot perform this action on your own account")
	ErrInvalidStatus          = errors.New("invalid account status")
	ErrStaleRecord            = errors.New("identity record changed concurrently")
	ErrMissingExternalID      = errors.New("snapshot has no discord id")
	ErrOwnerCredentialMissing = errors.New("owner email and password are required")
	ErrRoleManagedByDiscord   = errors.New("role is granted through discord")
)
