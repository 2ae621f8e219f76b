package system

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/membersync"
	"github.com/kcrp/rp-dashboard/internal/domain/player"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	"github.com/kcrp/rp-dashboard/internal/pkg/storage"
)

const (
	snapshotVersion = 1
	checkTimeout    = 3 * time.Second
	backupListLimit = 20

	EventSettingsUpdated = "settings_updated"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// SyncReporter exposes the last membership sync.
type SyncReporter interface {
	LastReport(ctx context.Context) (*membersync.Report, error)
}

// PlayerCounter exposes the public player counters.
type PlayerCounter interface {
	Counts(ctx context.Context) (*player.Counts, error)
}

// Auditor records privileged changes.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action, targetType, targetID string, details any)
}

// Publisher forwards changes to the live feed.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

type namedCheck struct {
	name     string
	check    Check
	optional bool
}

// Service handles settings, health, backups and public counters.
type Service struct {
	repo      Repository
	store     storage.Storage
	audit     Auditor
	syncer    SyncReporter
	players   PlayerCounter
	publisher Publisher

	mu        sync.RWMutex
	checks    []namedCheck
	backingUp atomic.Bool
	started   time.Time
	now       func() time.Time
}

// NewService creates system service
func NewService(repo Repository, store storage.Storage, auditor Auditor, players PlayerCounter) *Service {
	s := &Service{
		repo:    repo,
		store:   store,
		audit:   auditor,
		players: players,
		now:     time.Now,
	}
	s.started = s.now()
	s.AddCheck("database", repo.Ping, false)
	return s
}

// SetSyncReporter attaches the membership scheduler.
func (s *Service) SetSyncReporter(r SyncReporter) {
	s.syncer = r
}

// SetPublisher attaches the live feed.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// AddCheck registers a dependency check. A failing optional check degrades
// the overall state instead of marking it down.
func (s *Service) AddCheck(name string, check Check, optional bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, namedCheck{name: name, check: check, optional: optional})
}

// Status runs every check concurrently and adds the last sync and backup.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	s.mu.RLock()
	checks := append([]namedCheck(nil), s.checks...)
	s.mu.RUnlock()

	out := &Status{
		State:         StateOK,
		Components:    make([]ComponentStatus, len(checks)),
		UptimeSeconds: int64(s.now().Sub(s.started).Seconds()),
	}
	if s.store != nil {
		out.StorageDriver = s.store.Driver()
	}

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.check(cctx)
			cs := ComponentStatus{Name: c.name, State: StateOK, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				cs.State = StateDown
				cs.Error = err.Error()
			}
			out.Components[i] = cs
			return nil
		})
	}
	_ = g.Wait()

	for i, cs := range out.Components {
		if cs.State == StateOK {
			continue
		}
		if checks[i].optional {
			if out.State == StateOK {
				out.State = StateDegraded
			}
		} else {
			out.State = StateDown
		}
	}

	if s.syncer != nil {
		report, err := s.syncer.LastReport(ctx)
		if err != nil && !errors.Is(err, membersync.ErrNoReport) {
			log.Warn().Err(err).Msg("Failed to read last sync report")
		}
		out.LastSync = report
	}

	backup, err := s.repo.LastBackup(ctx)
	if err != nil && !errors.Is(err, ErrNoBackup) {
		log.Warn().Err(err).Msg("Failed to read last backup")
	}
	out.LastBackup = backup

	return out, nil
}

// Backup writes a JSON snapshot of the dashboard tables to storage and
// records it. Only one backup runs at a time per instance.
func (s *Service) Backup(ctx context.Context, actorID uuid.UUID) (*Backup, error) {
	if !s.backingUp.CompareAndSwap(false, true) {
		return nil, ErrBackupInProgress
	}
	defer s.backingUp.Store(false)

	b, err := s.backup(ctx, actorID)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Backup failed")
		return nil, err
	}
	metrics.BackupsTotal.WithLabelValues("ok").Inc()

	log.Info().
		Str("backup_id", b.ID.String()).
		Str("key", b.StorageKey).
		Int64("size_bytes", b.SizeBytes).
		Msg("Backup created")

	s.audit.Record(ctx, actorID, audit.ActionBackupCreated, "backup", b.ID.String(),
		map[string]any{"key": b.StorageKey, "size_bytes": b.SizeBytes})
	return b, nil
}

func (s *Service) backup(ctx context.Context, actorID uuid.UUID) (*Backup, error) {
	tables, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payload, err := json.Marshal(Snapshot{Version: snapshotVersion, CreatedAt: now, Tables: tables})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	b := &Backup{
		ID:        uuid.New(),
		SizeBytes: int64(len(payload)),
		CreatedBy: uuid.NullUUID{UUID: actorID, Valid: actorID != uuid.Nil},
		CreatedAt: now,
	}
	b.StorageKey = fmt.Sprintf("backups/%s/%s-%s.json", now.Format("2006/01/02"), now.Format("150405"), b.ID)

	if err := s.store.Put(ctx, b.StorageKey, bytes.NewReader(payload), "application/json"); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	if err := s.repo.CreateBackup(ctx, b); err != nil {
		// keep storage and the backups table in step
		if delErr := s.store.Delete(context.WithoutCancel(ctx), b.StorageKey); delErr != nil {
			log.Warn().Err(delErr).Str("key", b.StorageKey).Msg("Failed to remove orphaned backup")
		}
		return nil, err
	}
	return b, nil
}

// Backups lists the latest backups.
func (s *Service) Backups(ctx context.Context) ([]*Backup, error) {
	return s.repo.ListBackups(ctx, backupListLimit)
}

// Settings returns the server settings.
func (s *Service) Settings(ctx context.Context) (*Settings, error) {
	return s.repo.GetSettings(ctx)
}

// UpdateSettings replaces the server settings.
func (s *Service) UpdateSettings(ctx context.Context, actorID uuid.UUID, req *UpdateSettingsRequest) (*Settings, error) {
	settings := &Settings{
		ServerName:     req.ServerName,
		MaxPlayers:     req.MaxPlayers,
		DiscordGuildID: req.DiscordGuildID,
		UpdatedBy:      uuid.NullUUID{UUID: actorID, Valid: actorID != uuid.Nil},
	}
	if err := s.repo.UpdateSettings(ctx, settings); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorID, audit.ActionSettingsUpdated, "settings", "server", req)
	if s.publisher != nil {
		s.publisher.Publish(ctx, EventSettingsUpdated, settings)
	}
	return settings, nil
}

// PublicStats returns the landing page counters.
func (s *Service) PublicStats(ctx context.Context) (*PublicStats, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.players.Counts(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicStats{
		ServerName:      settings.ServerName,
		MaxPlayers:      settings.MaxPlayers,
		TotalPlayers:    counts.Total,
		OnlinePlayers:   counts.Online,
		RegisteredUsers: users,
	}, nil
}
