package membersync

import (
	"context"
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// OnMemberJoined reconciles a member that joined the guild.
func (s *Scheduler) OnMemberJoined(ctx context.Context, member discord.GuildMember) error {
	if member.User.Bot {
		return nil
	}
	if member.User.ID == "" {
		return ErrInvalidEvent
	}
	if _, err := s.engine.Reconcile(ctx, identity.SnapshotFromMember(member), identity.SourceEvent); err != nil {
		return err
	}
	s.setPrimaryRole(ctx, member.User.ID, s.table.ResolveSingle(member.Roles))
	return nil
}

// OnMemberUpdated reconciles only when the member's roles or profile changed.
func (s *Scheduler) OnMemberUpdated(ctx context.Context, before *discord.GuildMember, after discord.GuildMember) error {
	if after.User.Bot {
		return nil
	}
	if after.User.ID == "" {
		return ErrInvalidEvent
	}
	if before != nil && sameMember(*before, after) {
		return nil
	}
	if _, err := s.engine.Reconcile(ctx, identity.SnapshotFromMember(after), identity.SourceEvent); err != nil {
		return err
	}
	s.setPrimaryRole(ctx, after.User.ID, s.table.ResolveSingle(after.Roles))
	return nil
}

// OnMemberLeft strips derived roles. The identity itself is kept.
func (s *Scheduler) OnMemberLeft(ctx context.Context, externalID string) error {
	if externalID == "" {
		return ErrInvalidEvent
	}
	if _, err := s.engine.ResetToBaseline(ctx, externalID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			log.Debug().Str("external_id", externalID).Msg("Member left without a dashboard identity")
			return nil
		}
		return err
	}
	s.setPrimaryRole(ctx, externalID, roles.Baseline)
	return nil
}

// Dispatch routes an event to its handler.
func (s *Scheduler) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventMemberJoined:
		if ev.Member == nil {
			return ErrInvalidEvent
		}
		return s.OnMemberJoined(ctx, *ev.Member)
	case EventMemberUpdated:
		if ev.Member == nil {
			return ErrInvalidEvent
		}
		return s.OnMemberUpdated(ctx, ev.Before, *ev.Member)
	case EventMemberLeft:
		id := ev.UserID
		if id == "" && ev.Member != nil {
			id = ev.Member.User.ID
		}
		return s.OnMemberLeft(ctx, id)
	default:
		return ErrInvalidEvent
	}
}

func sameMember(a, b discord.GuildMember) bool {
	ra := slices.Clone(a.Roles)
	rb := slices.Clone(b.Roles)
	slices.Sort(ra)
	slices.Sort(rb)
	return slices.Equal(ra, rb) &&
		a.Nick == b.Nick &&
		a.User.Username == b.User.Username &&
		a.User.GlobalName == b.User.GlobalName &&
		a.User.Avatar == b.User.Avatar
}
