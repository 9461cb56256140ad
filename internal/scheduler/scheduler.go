// Package scheduler scans stored reminders at a fixed cadence and delivers
// each due occurrence exactly once.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apetersen/remindbot/internal/metrics"
	"github.com/apetersen/remindbot/internal/models"
	"github.com/apetersen/remindbot/internal/notify"
	"github.com/apetersen/remindbot/internal/recurrence"
	"github.com/apetersen/remindbot/internal/store"
)

// Renderer produces the user-facing delivery message for an occurrence. The
// scheduler falls back to a deterministic template when it fails.
type Renderer interface {
	RenderReminder(ctx context.Context, r *models.Reminder, occurrence time.Time) (string, error)
}

// Clock supplies the current time. Injected so ticks can be driven
// synthetically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// LocationClock reports the current time in a fixed location, so occurrence
// matching follows the configured timezone rather than the host's.
type LocationClock struct {
	loc *time.Location
}

func NewLocationClock(loc *time.Location) LocationClock {
	return LocationClock{loc: loc}
}

func (c LocationClock) Now() time.Time { return time.Now().In(c.loc) }

const DefaultInterval = time.Minute

type Options struct {
	Interval       time.Duration
	Clock          Clock
	Renderer       Renderer
	CleanupExpired bool
}

type Scheduler struct {
	store    store.ReminderStore
	notifier notify.Notifier
	renderer Renderer
	log      *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	clock    Clock
	cleanup  bool

	// lastCheck is the end of the last fully delivered polling window. It
	// does not advance past a window containing a failed send, so the next
	// tick re-evaluates that occurrence.
	lastCheck time.Time
}

func New(st store.ReminderStore, n notify.Notifier, log *zap.Logger, m *metrics.Metrics, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Scheduler{
		store:    st,
		notifier: n,
		renderer: opts.Renderer,
		log:      log,
		metrics:  m,
		interval: opts.Interval,
		clock:    opts.Clock,
		cleanup:  opts.CleanupExpired,
	}
}

// Start runs the polling loop until the context is cancelled. Ticks execute
// synchronously in this goroutine, so a scan that overruns the interval
// delays the next tick instead of running concurrently with it.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("scan failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scan failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single scan tick: evaluate the polling window since the
// last fully delivered check, notify due occurrences, and advance delivery
// watermarks for successful sends only.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := s.clock.Now()
	if s.lastCheck.IsZero() {
		s.lastCheck = now.Add(-s.interval)
	}
	windowStart := s.lastCheck

	candidates, err := s.store.ListDueCandidates(ctx, now)
	if err != nil {
		return fmt.Errorf("list due candidates: %w", err)
	}

	clean := true
	for _, rem := range candidates {
		occ, due := recurrence.DueOccurrence(rem, windowStart, now)
		if !due {
			continue
		}
		if !s.deliver(ctx, rem, occ) {
			clean = false
		}
	}
	if clean {
		s.lastCheck = now
	}

	if s.cleanup {
		if n, err := s.store.DeleteExpired(ctx, now); err != nil {
			s.log.Warn("cleanup failed", zap.Error(err))
		} else if n > 0 {
			s.log.Info("removed expired reminders", zap.Int("count", n))
		}
	}

	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	return nil
}

// deliver sends one occurrence and records it. Reports whether the delivery
// watermark no longer needs this polling window: a failed send returns false
// so the window is retried on the next tick.
func (s *Scheduler) deliver(ctx context.Context, rem *models.Reminder, occ time.Time) bool {
	message := s.render(ctx, rem, occ)

	if err := s.notifier.Send(ctx, rem.Owner, message); err != nil {
		s.metrics.NotificationFailures.Inc()
		s.log.Warn("notification failed",
			zap.String("id", rem.ID),
			zap.String("owner", rem.Owner),
			zap.Time("occurrence", occ),
			zap.Error(err))
		return false
	}

	if err := s.store.MarkDelivered(ctx, rem.ID, occ); err != nil {
		// The message went out; failing the window here would re-send it.
		s.log.Error("failed to record delivery",
			zap.String("id", rem.ID),
			zap.Time("occurrence", occ),
			zap.Error(err))
		return true
	}

	s.metrics.NotificationsSent.Inc()
	s.log.Info("reminder delivered",
		zap.String("id", rem.ID),
		zap.String("owner", rem.Owner),
		zap.Time("occurrence", occ))
	return true
}

func (s *Scheduler) render(ctx context.Context, rem *models.Reminder, occ time.Time) string {
	if s.renderer != nil {
		msg, err := s.renderer.RenderReminder(ctx, rem, occ)
		if err == nil && msg != "" {
			return msg
		}
		s.metrics.RenderFallbacks.Inc()
		s.log.Info("falling back to templated message",
			zap.String("id", rem.ID), zap.Error(err))
	}
	return fmt.Sprintf("Reminder: %s at %s on %s.",
		rem.Task, rem.TimeOfDay, occ.Format(models.DateLayout))
}
