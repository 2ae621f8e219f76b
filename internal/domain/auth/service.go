package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Discord is the part of the Discord client used for sign-in.
type Discord interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*discord.Profile, error)
	FetchGuildMember(ctx context.Context, userID string) discord.MemberLookup
}

// Service handles authentication business logic
type Service struct {
	engine   *identity.Engine
	sessions *session.Authority
	discord  Discord
	links    LinkStore
}

// NewService creates auth service
func NewService(engine *identity.Engine, sessions *session.Authority, dc Discord, links LinkStore) *Service {
	return &Service{
		engine:   engine,
		sessions: sessions,
		discord:  dc,
		links:    links,
	}
}

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	rec, err := s.engine.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	s.engine.TouchLogin(ctx, rec)
	return s.issue(ctx, rec)
}

// Login checks the email/password credential.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	rec, err := s.engine.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, rec)
}

// Refresh rotates the refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	rec, tokens, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return newAuthResponse(rec, tokens), nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, refreshToken)
}

// HasPermission reports whether rec passes a gate on a single label.
func (s *Service) HasPermission(rec *identity.Record, raw string) (*PermissionResponse, error) {
	label, err := roles.ParseLabel(raw)
	if err != nil {
		return nil, err
	}
	return &PermissionResponse{
		Role:    string(label),
		Allowed: roles.Allow(rec.RoleSet(), rec.IsBanned(), label) == nil,
	}, nil
}

// BeginDiscord returns the Discord authorize URL for state. A non-nil linkFor
// starts a link of that user's account instead of a sign-in.
func (s *Service) BeginDiscord(ctx context.Context, state string, linkFor *identity.Record) (string, error) {
	if linkFor != nil {
		if err := s.links.Save(ctx, state, linkFor.ID); err != nil {
			return "", fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
		}
	}
	return s.discord.AuthCodeURL(state), nil
}

// ReconcileFromOAuth completes the Discord callback. The user must be a
// member of the guild; its roles are reconciled before tokens are issued.
// When the state belongs to a link request, caller must be the user that
// started it and the Discord account is linked to that identity.
func (s *Service) ReconcileFromOAuth(ctx context.Context, code, state string, caller *identity.Record) (*OAuthResult, error) {
	if code == "" {
		return nil, ErrMissingOAuthCode
	}

	linkFor, err := s.links.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLinkUnavailable, err)
	}
	if linkFor != uuid.Nil && (caller == nil || caller.ID != linkFor) {
		return nil, ErrLinkExpired
	}

	token, err := s.discord.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, discord.ErrInvalidCode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", identity.ErrExternalUnavailable, err)
	}
	profile, err := s.discord.FetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrExternalUnavailable, err)
	}

	lookup := s.discord.FetchGuildMember(ctx, profile.ID)

	var (
		res    *identity.Result
		result = &OAuthResult{IsLinking: linkFor != uuid.Nil}
	)
	if result.IsLinking {
		member, err := memberOf(lookup)
		if err != nil {
			return nil, err
		}
		if member.User.ID == "" {
			member.User = *profile
		}
		res, err = s.engine.Link(ctx, linkFor, identity.SnapshotFromMember(member))
		if err != nil {
			return nil, err
		}
	} else {
		if m, ok := lookup.(discord.Member); ok && m.User.ID == "" {
			m.User = *profile
			lookup = m
		}
		res, err = s.engine.ReconcileLookup(ctx, lookup, identity.SourceOAuth)
		if err != nil {
			return nil, err
		}
		result.IsNewAccount = res.Created
	}

	rec := res.Record
	if rec.IsBanned() {
		return nil, roles.ErrAccountBanned
	}
	s.engine.TouchLogin(ctx, rec)

	tokens, err := s.sessions.Issue(ctx, rec)
	if err != nil {
		return nil, err
	}
	result.Record = rec
	result.Tokens = tokens

	log.Info().
		Str("user_id", rec.ID.String()).
		Str("external_id", profile.ID).
		Bool("new_account", result.IsNewAccount).
		Bool("linking", result.IsLinking).
		Msg("Discord sign-in")
	return result, nil
}

// UnlinkDiscord detaches the caller's Discord account.
func (s *Service) UnlinkDiscord(ctx context.Context, id uuid.UUID) (*identity.View, error) {
	res, err := s.engine.Unlink(ctx, id)
	if err != nil {
		return nil, err
	}
	view := identity.NewView(res.Record)
	return &view, nil
}

func (s *Service) issue(ctx context.Context, rec *identity.Record) (*AuthResponse, error) {
	tokens, err := s.sessions.Issue(ctx, rec)
	if err != nil {
		return nil, err
	}
	return newAuthResponse(rec, tokens), nil
}

func memberOf(lookup discord.MemberLookup) (discord.GuildMember, error) {
	switch m := lookup.(type) {
	case discord.Member:
		return m.GuildMember, nil
	case discord.NotAMember:
		return discord.GuildMember{}, identity.ErrNotAGuildMember
	case discord.LookupError:
		return discord.GuildMember{}, fmt.Errorf("%w: %v", identity.ErrExternalUnavailable, m.Err)
	default:
		return discord.GuildMember{}, identity.ErrExternalUnavailable
	}
}
