package membersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

const (
	// TriggerChannel is the Redis channel that asks any running scheduler
	// for an immediate pass.
	TriggerChannel = "sync:trigger"
	lastReportKey  = "sync:last"
	// PrimaryRoleKey is a hash of Discord user id to the single resolved
	// label, read by the bot.
	PrimaryRoleKey = "discord:primary_role"
)

// Directory lists the guild members.
type Directory interface {
	ListGuildMembers(ctx context.Context) ([]discord.GuildMember, error)
}

// Reconciler applies member snapshots to identity records.
type Reconciler interface {
	Reconcile(ctx context.Context, snap identity.Snapshot, source identity.Source) (*identity.Result, error)
	ResetToBaseline(ctx context.Context, externalID string) (*identity.Result, error)
}

// Publisher forwards finished reports to the live staff feed.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// EventSyncReport is the live feed event carrying a Report.
const EventSyncReport = "sync_report"

// Options configure the scheduler.
type Options struct {
	Interval    time.Duration
	Concurrency int
}

// Scheduler keeps every identity consistent with the guild roster.
type Scheduler struct {
	dir         Directory
	engine      Reconciler
	table       *roles.Table
	redis       *redis.Client // nil disables the trigger channel and shared caches
	publisher   Publisher
	interval    time.Duration
	concurrency int

	running atomic.Bool
	mu      sync.RWMutex
	last    *Report
	now     func() time.Time
}

// NewScheduler creates the scheduler.
func NewScheduler(dir Directory, engine Reconciler, table *roles.Table, rdb *redis.Client, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	return &Scheduler{
		dir:         dir,
		engine:      engine,
		table:       table,
		redis:       rdb,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// SetPublisher attaches a report listener.
func (s *Scheduler) SetPublisher(p Publisher) {
	s.publisher = p
}

// SyncAll reconciles every guild member once. One member failing does not
// stop the pass. Cancelling ctx stops scheduling new members; members already
// in flight complete. Only one pass runs at a time per process.
func (s *Scheduler) SyncAll(ctx context.Context, trigger string) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	report := Report{Trigger: trigger, StartedAt: start}

	members, err := s.dir.ListGuildMembers(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("trigger", trigger).Msg("Membership sync could not list guild members")
		return report, fmt.Errorf("%w: %v", identity.ErrExternalUnavailable, err)
	}
	report.Total = len(members)

	var (
		synced, unchanged, failed, skipped atomic.Int64
		cacheMu                            sync.Mutex
		primary                            = make(map[string]any, len(members))
	)

	// in-flight reconciliations finish even when ctx is cancelled
	work := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, m := range members {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if m.User.Bot || m.User.ID == "" {
			skipped.Add(1)
			continue
		}
		member := m
		g.Go(func() error {
			res, err := s.engine.Reconcile(work, identity.SnapshotFromMember(member), identity.SourceSync)
			if err != nil {
				failed.Add(1)
				log.Warn().Err(err).Str("external_id", member.User.ID).Msg("Membership sync failed for member")
				return nil
			}
			if res.Created || res.Changed {
				synced.Add(1)
			} else {
				unchanged.Add(1)
			}
			cacheMu.Lock()
			primary[member.User.ID] = string(s.table.ResolveSingle(member.Roles))
			cacheMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Synced = int(synced.Load())
	report.Unchanged = int(unchanged.Load())
	report.Failed = int(failed.Load())
	report.Skipped = int(skipped.Load())
	report.Duration = s.now().Sub(start)

	if !report.Cancelled {
		s.replacePrimaryRoles(work, primary)
	}
	s.finish(work, report)
	return report, nil
}

func (s *Scheduler) finish(ctx context.Context, report Report) {
	metrics.SyncRunsTotal.WithLabelValues(report.Result()).Inc()
	metrics.SyncDuration.Observe(report.Duration.Seconds())
	metrics.SyncMembers.WithLabelValues("total").Set(float64(report.Total))
	metrics.SyncMembers.WithLabelValues("synced").Set(float64(report.Synced))
	metrics.SyncMembers.WithLabelValues("unchanged").Set(float64(report.Unchanged))
	metrics.SyncMembers.WithLabelValues("failed").Set(float64(report.Failed))
	metrics.SyncMembers.WithLabelValues("skipped").Set(float64(report.Skipped))

	log.Info().
		Str("trigger", report.Trigger).
		Int("total", report.Total).
		Int("synced", report.Synced).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("Membership sync finished")

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	if s.redis != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := s.redis.Set(ctx, lastReportKey, payload, 0).Err(); err != nil {
				log.Warn().Err(err).Msg("Failed to store sync report")
			}
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, EventSyncReport, report)
	}
}

// replacePrimaryRoles swaps the bot's role cache in one step.
func (s *Scheduler) replacePrimaryRoles(ctx context.Context, primary map[string]any) {
	if s.redis == nil || len(primary) == 0 {
		return
	}
	tmp := PrimaryRoleKey + ":next"
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		pipe.HSet(ctx, tmp, primary)
		pipe.Rename(ctx, tmp, PrimaryRoleKey)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh primary role cache")
	}
}

func (s *Scheduler) setPrimaryRole(ctx context.Context, externalID string, label roles.Label) {
	if s.redis == nil {
		return
	}
	if err := s.redis.HSet(ctx, PrimaryRoleKey, externalID, string(label)).Err(); err != nil {
		log.Warn().Err(err).Str("external_id", externalID).Msg("Failed to update primary role cache")
	}
}

// LastReport returns the most recent report of this or any other instance.
func (s *Scheduler) LastReport(ctx context.Context) (*Report, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		r := *last
		return &r, nil
	}
	if s.redis == nil {
		return nil, ErrNoReport
	}
	payload, err := s.redis.Get(ctx, lastReportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Trigger asks for an immediate pass. With Redis every scheduler instance
// listening on the channel receives it; without Redis the pass runs here in
// the background.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if s.redis != nil {
		return s.redis.Publish(ctx, TriggerChannel, "manual").Err()
	}
	go s.runOnce(context.WithoutCancel(ctx), "manual")
	return nil
}

// Run syncs on every tick and on trigger messages until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Int("concurrency", s.concurrency).Msg("Membership sync scheduler started")

	var triggers <-chan *redis.Message
	if s.redis != nil {
		sub := s.redis.Subscribe(ctx, TriggerChannel)
		defer sub.Close()
		triggers = sub.Channel()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Membership sync scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, "interval")
		case msg, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			s.runOnce(ctx, msg.Payload)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) {
	if _, err := s.SyncAll(ctx, trigger); err != nil && !errors.Is(err, ErrSyncInProgress) {
		log.Error().Err(err).Str("trigger", trigger).Msg("Membership sync failed")
	}
}
