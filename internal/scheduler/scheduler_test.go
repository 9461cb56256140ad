package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/apetersen/remindbot/internal/metrics"
	"github.com/apetersen/remindbot/internal/models"
	"github.com/apetersen/remindbot/internal/store"
)

const owner = "whatsapp:+15550001111"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scriptedNotifier struct {
	mu       sync.Mutex
	sends    []string
	failNext int
}

func (n *scriptedNotifier) Send(_ context.Context, owner, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext > 0 {
		n.failNext--
		return fmt.Errorf("channel unavailable")
	}
	n.sends = append(n.sends, owner+"|"+message)
	return nil
}

func (n *scriptedNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

type fixedRenderer struct {
	msg string
	err error
}

func (r *fixedRenderer) RenderReminder(_ context.Context, _ *models.Reminder, _ time.Time) (string, error) {
	return r.msg, r.err
}

func callMom(start, end time.Time, freq models.Frequency) models.ReminderSpec {
	return models.ReminderSpec{
		Task:      "call mom",
		Frequency: freq,
		StartDate: start,
		EndDate:   end,
		TimeOfDay: models.TimeOfDay{Hour: 17, Minute: 0},
	}
}

func newScheduler(st store.ReminderStore, n *scriptedNotifier, clock *fakeClock, opts Options) *Scheduler {
	opts.Clock = clock
	return New(st, n, zap.NewNop(), metrics.New(prometheus.NewRegistry()), opts)
}

// The §8 headline scenario: a once reminder fires exactly once at its instant
// and never again, tick after tick.
func TestOnceReminderDeliveredExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 16, 58, 30, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})

	// Ticks before the occurrence stay quiet.
	for i := 0; i < 2; i++ {
		if err := s.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		clock.Advance(time.Minute)
	}
	if n.count() != 0 {
		t.Fatalf("%d sends before the occurrence", n.count())
	}

	// clock is now at 17:00:30; the 17:00 occurrence is inside the window.
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("%d sends at the occurrence, want 1", n.count())
	}
	if !strings.Contains(n.sends[0], "call mom") {
		t.Errorf("message = %q", n.sends[0])
	}

	// Many more ticks: never again.
	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		s.RunOnce(ctx)
	}
	if n.count() != 1 {
		t.Errorf("%d sends total, want 1", n.count())
	}
}

func TestDailyDeliveredOncePerDay(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqDaily))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 16, 59, 0, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})

	// Simulate two days of minute ticks.
	for i := 0; i < 2*24*60; i++ {
		s.RunOnce(ctx)
		clock.Advance(time.Minute)
	}
	if n.count() != 2 {
		t.Errorf("%d sends over two days, want 2", n.count())
	}
}

func TestSendFailureRetriedNextTick(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	created, _ := st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 17, 0, 30, 0, time.UTC)}
	n := &scriptedNotifier{failNext: 1}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})

	s.RunOnce(ctx)
	if n.count() != 0 {
		t.Fatal("send should have failed")
	}
	got, _ := st.Get(ctx, created.ID)
	if got.LastDelivered != nil {
		t.Fatal("failed send advanced the delivery watermark")
	}

	clock.Advance(time.Minute)
	s.RunOnce(ctx)
	if n.count() != 1 {
		t.Fatalf("%d sends after retry tick, want 1", n.count())
	}
	got, _ = st.Get(ctx, created.ID)
	if got.LastDelivered == nil || !got.LastDelivered.Equal(time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("watermark = %v", got.LastDelivered)
	}

	// And never again.
	clock.Advance(time.Minute)
	s.RunOnce(ctx)
	if n.count() != 1 {
		t.Errorf("%d sends total, want 1", n.count())
	}
}

func TestFailureIsolatedPerReminder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))
	water := callMom(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce)
	water.Task = "water plants"
	st.Create(ctx, "whatsapp:+15550002222", water)

	clock := &fakeClock{now: time.Date(2024, 1, 2, 17, 0, 30, 0, time.UTC)}
	// First send in the scan fails, second succeeds.
	n := &scriptedNotifier{failNext: 1}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})

	s.RunOnce(ctx)
	if n.count() != 1 {
		t.Fatalf("%d sends, want the unaffected reminder delivered", n.count())
	}

	// Next tick retries only the failed one.
	clock.Advance(time.Minute)
	s.RunOnce(ctx)
	if n.count() != 2 {
		t.Fatalf("%d sends after retry, want 2", n.count())
	}
	clock.Advance(time.Minute)
	s.RunOnce(ctx)
	if n.count() != 2 {
		t.Errorf("%d sends total, want 2", n.count())
	}
}

func TestRendererFallbackOnError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 17, 0, 30, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{
		Interval: time.Minute,
		Renderer: &fixedRenderer{err: fmt.Errorf("model offline")},
	})

	s.RunOnce(ctx)
	if n.count() != 1 {
		t.Fatalf("%d sends, want 1", n.count())
	}
	want := owner + "|Reminder: call mom at 17:00 on 2024-01-02."
	if n.sends[0] != want {
		t.Errorf("fallback message = %q, want %q", n.sends[0], want)
	}
}

func TestRendererUsedWhenHealthy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 17, 0, 30, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{
		Interval: time.Minute,
		Renderer: &fixedRenderer{msg: "Hey, time to call mom!"},
	})

	s.RunOnce(ctx)
	if n.count() != 1 || n.sends[0] != owner+"|Hey, time to call mom!" {
		t.Errorf("sends = %v", n.sends)
	}
}

// Delivery state survives a scheduler restart: a fresh instance over the same
// store does not re-deliver.
func TestNoRedeliveryAcrossRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	st.Create(ctx, owner, callMom(today, today, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 3, 15, 17, 0, 10, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})
	s.RunOnce(ctx)
	if n.count() != 1 {
		t.Fatalf("%d sends, want 1", n.count())
	}

	// "Restart": new scheduler, same store, clock wound back before the
	// occurrence so its boot window covers it again.
	clock2 := &fakeClock{now: time.Date(2024, 3, 15, 17, 0, 40, 0, time.UTC)}
	s2 := newScheduler(st, n, clock2, Options{Interval: time.Hour})
	s2.RunOnce(ctx)
	if n.count() != 1 {
		t.Errorf("%d sends after restart, want 1", n.count())
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	gone := callMom(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		models.FreqDaily)
	st.Create(ctx, owner, gone)
	keep, _ := st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqDaily))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute, CleanupExpired: true})

	s.RunOnce(ctx)
	if _, err := st.Get(ctx, keep.ID); err != nil {
		t.Error("live reminder was cleaned up")
	}
	live, _ := st.ListByOwner(ctx, owner)
	if len(live) != 1 {
		t.Errorf("%d reminders left, want 1", len(live))
	}
}

// A concurrent field update during a tick never mixes old and new fields in
// the notification: the scan works on a snapshot read.
func TestConcurrentUpdateNeverTearsNotification(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	created, _ := st.Create(ctx, owner, callMom(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce))

	clock := &fakeClock{now: time.Date(2024, 1, 2, 17, 0, 30, 0, time.UTC)}
	n := &scriptedNotifier{}
	s := newScheduler(st, n, clock, Options{Interval: time.Minute})

	updated := callMom(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), models.NoExpiry, models.FreqOnce)
	updated.Task = "call mother"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.RunOnce(ctx)
	}()
	go func() {
		defer wg.Done()
		st.Update(ctx, created.ID, owner, updated)
	}()
	wg.Wait()

	for _, sent := range n.sends {
		hasOld := strings.Contains(sent, "call mom ")
		hasNew := strings.Contains(sent, "call mother")
		if hasOld == hasNew {
			t.Errorf("torn notification: %q", sent)
		}
	}
}
