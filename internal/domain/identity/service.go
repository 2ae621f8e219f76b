package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/keylock"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	"github.com/kcrp/rp-dashboard/internal/pkg/password"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

const maxStaleRetries = 3

// Source labels where a reconciliation came from.
type Source string

const (
	SourceOAuth  Source = "oauth"
	SourceSync   Source = "sync"
	SourceEvent  Source = "event"
	SourceLink   Source = "link"
	SourceUnlink Source = "unlink"
	SourceAdmin  Source = "admin"
)

// Notifier is told about role changes after they are persisted.
type Notifier interface {
	RolesChanged(ctx context.Context, rec *Record, before roles.Set, source Source)
}

// Result of a reconciliation.
type Result struct {
	Record  *Record
	Created bool
	Changed bool
}

// Engine owns every mutation of identity records. Writes to one record are
// serialized per key in-process and guarded by the record version across
// processes.
type Engine struct {
	store    Store
	table    *roles.Table
	locks    *keylock.Locker
	notifier Notifier
	now      func() time.Time
}

// NewEngine creates the reconciliation engine.
func NewEngine(store Store, table *roles.Table) *Engine {
	return &Engine{
		store: store,
		table: table,
		locks: keylock.New(),
		now:   time.Now,
	}
}

// SetNotifier attaches a role change listener.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Table returns the role map the engine resolves with.
func (e *Engine) Table() *roles.Table {
	return e.table
}

// Store returns the underlying identity store for read paths.
func (e *Engine) Store() Store {
	return e.store
}

func extKey(externalID string) string { return "ext:" + externalID }
func idKey(id uuid.UUID) string       { return "id:" + id.String() }

// Reconcile creates or refreshes the record linked to snap.ExternalID.
func (e *Engine) Reconcile(ctx context.Context, snap Snapshot, source Source) (*Result, error) {
	if snap.ExternalID == "" {
		return nil, ErrMissingExternalID
	}

	unlockExt := e.locks.Lock(extKey(snap.ExternalID))
	defer unlockExt()

	existing, err := e.store.FindByExternalID(ctx, snap.ExternalID)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(source), "error").Inc()
		return nil, fmt.Errorf("find by discord id: %w", err)
	}

	if existing == nil {
		rec, err := e.createFromSnapshot(ctx, snap)
		if err != nil {
			metrics.ReconcileTotal.WithLabelValues(string(source), "error").Inc()
			return nil, err
		}
		metrics.ReconcileTotal.WithLabelValues(string(source), "created").Inc()
		log.Info().
			Str("user_id", rec.ID.String()).
			Str("external_id", snap.ExternalID).
			Strs("roles", rec.Roles).
			Str("source", string(source)).
			Msg("Identity created from Discord")
		e.notify(ctx, rec, nil, source)
		return &Result{Record: rec, Created: true, Changed: true}, nil
	}

	unlockID := e.locks.Lock(idKey(existing.ID))
	defer unlockID()

	res, err := e.updateWithRetry(ctx, existing.ID, source, func(rec *Record) error {
		if rec.ExternalID.String != snap.ExternalID {
			return ErrConflictingLink
		}
		e.applySnapshot(rec, snap)
		return nil
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(source), "error").Inc()
		return nil, err
	}
	if res.Changed {
		metrics.ReconcileTotal.WithLabelValues(string(source), "updated").Inc()
	} else {
		metrics.ReconcileTotal.WithLabelValues(string(source), "unchanged").Inc()
	}
	return res, nil
}

// ReconcileLookup reconciles a guild member lookup result. A user outside the
// guild and an unreachable Discord are reported as distinct errors and leave
// the store untouched.
func (e *Engine) ReconcileLookup(ctx context.Context, lookup discord.MemberLookup, source Source) (*Result, error) {
	switch m := lookup.(type) {
	case discord.Member:
		return e.Reconcile(ctx, SnapshotFromMember(m.GuildMember), source)
	case discord.NotAMember:
		metrics.ReconcileTotal.WithLabelValues(string(source), "not_member").Inc()
		return nil, ErrNotAGuildMember
	case discord.LookupError:
		metrics.ReconcileTotal.WithLabelValues(string(source), "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExternalUnavailable, m.Err)
	default:
		return nil, fmt.Errorf("%w: unexpected lookup result %T", ErrExternalUnavailable, lookup)
	}
}

// ResetToBaseline handles a member leaving the guild: derived roles are
// removed, manual grants and the record itself remain.
func (e *Engine) ResetToBaseline(ctx context.Context, externalID string) (*Result, error) {
	unlockExt := e.locks.Lock(extKey(externalID))
	defer unlockExt()

	existing, err := e.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("find by discord id: %w", err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}

	unlockID := e.locks.Lock(idKey(existing.ID))
	defer unlockID()

	return e.updateWithRetry(ctx, existing.ID, SourceEvent, func(rec *Record) error {
		if rec.IsOwner {
			return nil
		}
		rec.SetRoles(e.table.Merge(rec.RoleSet(), nil))
		return nil
	})
}

// Link attaches a Discord account to an existing identity. One Discord
// account maps to at most one identity and the reverse.
func (e *Engine) Link(ctx context.Context, id uuid.UUID, snap Snapshot) (*Result, error) {
	if snap.ExternalID == "" {
		return nil, ErrMissingExternalID
	}

	unlock := e.locks.Lock(extKey(snap.ExternalID), idKey(id))
	defer unlock()

	holder, err := e.store.FindByExternalID(ctx, snap.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("find by discord id: %w", err)
	}
	if holder != nil && holder.ID != id {
		log.Warn().
			Str("user_id", id.String()).
			Str("external_id", snap.ExternalID).
			Str("holder_id", holder.ID.String()).
			Msg("Discord account already linked to another identity")
		return nil, ErrConflictingLink
	}

	res, err := e.updateWithRetry(ctx, id, SourceLink, func(rec *Record) error {
		if rec.IsLinked() && rec.ExternalID.String != snap.ExternalID {
			return ErrConflictingLink
		}
		rec.ExternalID = nullString(snap.ExternalID)
		e.applySnapshot(rec, snap)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", id.String()).Str("external_id", snap.ExternalID).Msg("Discord account linked")
	return res, nil
}

// Unlink detaches the Discord account and drops every role a Discord role
// could have produced.
func (e *Engine) Unlink(ctx context.Context, id uuid.UUID) (*Result, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		current, err := e.store.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find by id: %w", err)
		}
		if current == nil {
			return nil, ErrNotFound
		}
		if current.IsOwner {
			return nil, ErrOwnerProtected
		}
		if !current.IsLinked() {
			return nil, ErrNotLinked
		}
		if !current.HasLocalCredential() {
			return nil, ErrNoLocalCredential
		}

		externalID := current.ExternalID.String
		unlock := e.locks.Lock(extKey(externalID), idKey(id))
		res, err := e.updateWithRetry(ctx, id, SourceUnlink, func(rec *Record) error {
			if rec.ExternalID.String != externalID {
				return errLinkMoved
			}
			rec.ExternalID = nullString("")
			rec.DiscordName = nullString("")
			rec.AvatarURL = nullString("")
			rec.SetRoles(e.table.StripDerived(rec.RoleSet()))
			return nil
		})
		unlock()
		if errors.Is(err, errLinkMoved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("user_id", id.String()).Str("external_id", externalID).Msg("Discord account unlinked")
		return res, nil
	}
	return nil, ErrStaleRecord
}

var errLinkMoved = errors.New("link changed while unlinking")

// SetRoles replaces the manually managed roles of an identity. Every label
// must belong to the vocabulary; the baseline is always kept.
//
// On a linked identity the roles Discord derives belong to Discord: the ones
// currently held are kept whatever labels says, and asking for a derived role
// the member does not hold fails with ErrRoleManagedByDiscord.
func (e *Engine) SetRoles(ctx context.Context, id uuid.UUID, labels []string) (*Result, error) {
	set, err := roles.ParseLabels(labels)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(idKey(id))
	defer unlock()

	return e.updateWithRetry(ctx, id, SourceAdmin, func(rec *Record) error {
		if rec.IsOwner {
			return ErrOwnerProtected
		}
		if !rec.IsLinked() {
			rec.SetRoles(set)
			return nil
		}

		held := rec.RoleSet()
		for _, l := range set {
			if e.table.IsDerived(l) && !held.Has(l) {
				return fmt.Errorf("%w: %s", ErrRoleManagedByDiscord, l)
			}
		}
		derived := held.Without(func(l roles.Label) bool { return !e.table.IsDerived(l) })
		rec.SetRoles(set.Without(e.table.IsDerived).Union(derived))
		return nil
	})
}

// SetStatus bans or reactivates an identity.
func (e *Engine) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Result, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	unlock := e.locks.Lock(idKey(id))
	defer unlock()

	return e.updateWithRetry(ctx, id, SourceAdmin, func(rec *Record) error {
		if rec.IsOwner {
			return ErrOwnerProtected
		}
		rec.Status = status
		return nil
	})
}

// Delete removes an identity. The owner and the acting user cannot be deleted.
func (e *Engine) Delete(ctx context.Context, id, actorID uuid.UUID) error {
	if id == actorID {
		return ErrSelfAction
	}

	unlock := e.locks.Lock(idKey(id))
	defer unlock()

	rec, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.IsOwner {
		return ErrOwnerProtected
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("user_id", id.String()).Str("actor_id", actorID.String()).Msg("Identity deleted")
	return nil
}

// Register creates a local email/password identity with the baseline role.
func (e *Engine) Register(ctx context.Context, email, username, plain string) (*Record, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	if existing, err := e.store.FindByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrEmailTaken
	}
	if existing, err := e.store.FindByUsername(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := password.Hash(plain)
	if err != nil {
		return nil, err
	}

	now := e.now()
	rec := &Record{
		ID:           uuid.New(),
		Email:        nullString(email),
		Username:     username,
		PasswordHash: nullString(hash),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec.SetRoles(roles.Set{roles.Baseline})

	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", rec.ID.String()).Str("username", username).Msg("Identity registered")
	return rec, nil
}

// Authenticate checks a local credential and records the login.
func (e *Engine) Authenticate(ctx context.Context, email, plain string) (*Record, error) {
	rec, err := e.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.HasLocalCredential() {
		return nil, ErrInvalidCredentials
	}
	if !password.Verify(plain, rec.PasswordHash.String) {
		return nil, ErrInvalidCredentials
	}
	if rec.IsBanned() {
		return nil, roles.ErrAccountBanned
	}
	e.TouchLogin(ctx, rec)
	return rec, nil
}

// TouchLogin records a successful authentication. Failures are logged only.
func (e *Engine) TouchLogin(ctx context.Context, rec *Record) {
	now := e.now()
	if err := e.store.TouchLogin(ctx, rec.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", rec.ID.String()).Msg("Failed to record login")
		return
	}
	rec.LastLoginAt.Time, rec.LastLoginAt.Valid = now, true
}

// OwnerSpec configures the owner account created at startup.
type OwnerSpec struct {
	Email    string
	Username string
	Password string
}

// EnsureOwner creates the owner account when missing. An existing owner keeps
// its password; its roles are reset to the owner set.
func (e *Engine) EnsureOwner(ctx context.Context, spec OwnerSpec) (*Record, error) {
	if spec.Email == "" || spec.Password == "" {
		return nil, ErrOwnerCredentialMissing
	}
	if spec.Username == "" {
		spec.Username = "Owner"
	}
	ownerRoles := roles.NewSet(roles.Director, roles.Staff, roles.Baseline)

	existing, err := e.store.FindOwner(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.RoleSet().Equal(ownerRoles) && existing.Status == StatusActive {
			return existing, nil
		}
		unlock := e.locks.Lock(idKey(existing.ID))
		defer unlock()
		res, err := e.updateWithRetry(ctx, existing.ID, SourceAdmin, func(rec *Record) error {
			rec.SetRoles(ownerRoles)
			rec.Status = StatusActive
			return nil
		})
		if err != nil {
			return nil, err
		}
		return res.Record, nil
	}

	hash, err := password.Hash(spec.Password)
	if err != nil {
		return nil, err
	}
	now := e.now()
	rec := &Record{
		ID:           uuid.New(),
		Email:        nullString(normalizeEmail(spec.Email)),
		Username:     spec.Username,
		PasswordHash: nullString(hash),
		Status:       StatusActive,
		IsOwner:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec.SetRoles(ownerRoles)
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", rec.ID.String()).Str("email", rec.Email.String).Msg("Owner account created")
	return rec, nil
}

func (e *Engine) createFromSnapshot(ctx context.Context, snap Snapshot) (*Record, error) {
	now := e.now()
	username := snap.Username
	if username == "" {
		username = snap.DisplayName
	}
	rec := &Record{
		ID:          uuid.New(),
		Username:    e.availableUsername(ctx, username, snap.ExternalID),
		ExternalID:  nullString(snap.ExternalID),
		DiscordName: nullString(snap.DisplayName),
		AvatarURL:   nullString(snap.AvatarURL),
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.SetRoles(e.table.ResolveSet(snap.RoleIDs))

	if err := e.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrConflictingLink) {
			// Another process created it first; refresh that record instead.
			existing, ferr := e.store.FindByExternalID(ctx, snap.ExternalID)
			if ferr != nil || existing == nil {
				return nil, err
			}
			unlock := e.locks.Lock(idKey(existing.ID))
			defer unlock()
			res, uerr := e.updateWithRetry(ctx, existing.ID, SourceSync, func(r *Record) error {
				e.applySnapshot(r, snap)
				return nil
			})
			if uerr != nil {
				return nil, uerr
			}
			return res.Record, nil
		}
		return nil, err
	}
	return rec, nil
}

// availableUsername falls back to a suffixed name when the Discord username
// collides with a local account.
func (e *Engine) availableUsername(ctx context.Context, name, externalID string) string {
	if name == "" {
		name = "discord"
	}
	if existing, err := e.store.FindByUsername(ctx, name); err == nil && existing == nil {
		return name
	}
	suffix := externalID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return name + "-" + suffix
}

// applySnapshot refreshes profile fields and merges roles. The owner's roles
// are never touched by Discord.
func (e *Engine) applySnapshot(rec *Record, snap Snapshot) {
	if snap.DisplayName != "" {
		rec.DiscordName = nullString(snap.DisplayName)
	}
	if snap.AvatarURL != "" {
		rec.AvatarURL = nullString(snap.AvatarURL)
	}
	if rec.IsOwner {
		return
	}
	rec.SetRoles(e.table.Merge(rec.RoleSet(), snap.RoleIDs))
}

// updateWithRetry reads the record, applies mutate and writes it back only
// if something changed. A concurrent writer in another process causes a
// fresh read and another attempt.
func (e *Engine) updateWithRetry(ctx context.Context, id uuid.UUID, source Source, mutate func(*Record) error) (*Result, error) {
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		current, err := e.store.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find by id: %w", err)
		}
		if current == nil {
			return nil, ErrNotFound
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		if sameState(current, next) {
			return &Result{Record: current}, nil
		}

		next.UpdatedAt = e.now()
		err = e.store.Update(ctx, next)
		if errors.Is(err, ErrStaleRecord) {
			log.Debug().Str("user_id", id.String()).Int("attempt", attempt+1).Msg("Stale identity record, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		before := current.RoleSet()
		if !before.Equal(next.RoleSet()) {
			log.Info().
				Str("user_id", id.String()).
				Strs("before", before.Strings()).
				Strs("after", next.Roles).
				Str("source", string(source)).
				Msg("Identity roles changed")
			e.notify(ctx, next, before, source)
		}
		return &Result{Record: next, Changed: true}, nil
	}
	return nil, ErrStaleRecord
}

func (e *Engine) notify(ctx context.Context, rec *Record, before roles.Set, source Source) {
	if e.notifier == nil {
		return
	}
	e.notifier.RolesChanged(ctx, rec, before, source)
}

func sameState(a, b *Record) bool {
	return a.Email == b.Email &&
		a.Username == b.Username &&
		a.PasswordHash == b.PasswordHash &&
		a.ExternalID == b.ExternalID &&
		a.DiscordName == b.DiscordName &&
		a.AvatarURL == b.AvatarURL &&
		a.PrimaryRole == b.PrimaryRole &&
		a.Status == b.Status &&
		a.RoleSet().Equal(b.RoleSet())
}
