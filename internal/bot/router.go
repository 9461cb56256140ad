// Package bot routes inbound chat messages to reminder operations and
// produces exactly one reply per message.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apetersen/remindbot/internal/metrics"
	"github.com/apetersen/remindbot/internal/models"
	"github.com/apetersen/remindbot/internal/notify"
	"github.com/apetersen/remindbot/internal/store"
)

// Extractor turns free-form text into a structured reminder spec relative to
// a reference instant.
type Extractor interface {
	Extract(ctx context.Context, text string, now time.Time) (*models.ReminderSpec, error)
}

const (
	replyGreeting      = "Hello! How can I assist you today?"
	replyThanks        = "You're welcome! Let me know if you need anything else."
	replyNoReminders   = "You have no reminders set."
	replyCannotParse   = "Sorry, I couldn't understand your reminder. Please try again."
	replyCannotUpdate  = "Sorry, I couldn't understand the update. Please try again."
	replyWhichDelete   = "Please tell me which reminder to delete."
	replyWhichUpdate   = "Please tell me which reminder to update."
	replyStoreTrouble  = "Something went wrong on my side, please try again later."
	replyManyMatchesFn = "I found %d reminders matching '%s'. Please be more specific."
)

type Router struct {
	store     store.ReminderStore
	extractor Extractor
	notifier  notify.Notifier
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRouter(st store.ReminderStore, ex Extractor, n notify.Notifier, log *zap.Logger, m *metrics.Metrics) *Router {
	return &Router{
		store:     st,
		extractor: ex,
		notifier:  n,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// SetNow overrides the router's clock. Test hook.
func (r *Router) SetNow(now func() time.Time) {
	r.now = now
}

// HandleInboundMessage classifies the message, performs the matching
// operation, sends the reply through the notifier once, and returns the same
// reply text to the transport layer.
func (r *Router) HandleInboundMessage(ctx context.Context, owner, text string) string {
	r.metrics.InboundMessages.Inc()
	reply := r.route(ctx, owner, text)
	if err := r.notifier.Send(ctx, owner, reply); err != nil {
		r.log.Warn("failed to send reply",
			zap.String("owner", owner), zap.Error(err))
	}
	return reply
}

func (r *Router) route(ctx context.Context, owner, text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))

	switch {
	case norm == "hi" || norm == "hello" || norm == "hey":
		return replyGreeting
	case strings.Contains(norm, "thank you") || strings.Contains(norm, "thanks"):
		return replyThanks
	case isListRequest(norm):
		return r.listReminders(ctx, owner)
	case strings.HasPrefix(norm, "delete"):
		fragment := strings.TrimSpace(strings.TrimPrefix(norm, "delete"))
		return r.deleteReminders(ctx, owner, fragment)
	case strings.HasPrefix(norm, "update"):
		fragment := strings.TrimSpace(strings.TrimPrefix(norm, "update"))
		return r.updateReminder(ctx, owner, fragment)
	default:
		return r.createReminder(ctx, owner, norm)
	}
}

func isListRequest(norm string) bool {
	for _, phrase := range []string{
		"list all reminders",
		"give me all reminders",
		"list reminders",
		"my reminders",
	} {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return false
}

func (r *Router) listReminders(ctx context.Context, owner string) string {
	reminders, err := r.store.ListByOwner(ctx, owner)
	if err != nil {
		r.log.Error("list reminders failed", zap.String("owner", owner), zap.Error(err))
		return replyStoreTrouble
	}
	if len(reminders) == 0 {
		return replyNoReminders
	}
	var sb strings.Builder
	sb.WriteString("Your reminders:")
	for _, rem := range reminders {
		sb.WriteString(fmt.Sprintf("\n- %s at %s on %s (%s)",
			rem.Task, rem.TimeOfDay, rem.StartDate.Format(models.DateLayout), rem.Frequency))
	}
	return sb.String()
}

func (r *Router) deleteReminders(ctx context.Context, owner, fragment string) string {
	if fragment == "" {
		return replyWhichDelete
	}
	n, err := r.store.DeleteByTask(ctx, owner, fragment)
	if err != nil {
		r.log.Error("delete reminders failed", zap.String("owner", owner), zap.Error(err))
		return replyStoreTrouble
	}
	if n == 0 {
		return fmt.Sprintf("No reminder found for '%s'.", fragment)
	}
	if n == 1 {
		return fmt.Sprintf("Deleted 1 reminder matching '%s'.", fragment)
	}
	return fmt.Sprintf("Deleted %d reminders matching '%s'.", n, fragment)
}

// updateReminder requires the fragment to match exactly one reminder;
// multiple matches are rejected so the user disambiguates instead of the bot
// guessing.
func (r *Router) updateReminder(ctx context.Context, owner, fragment string) string {
	if fragment == "" {
		return replyWhichUpdate
	}
	matches, err := r.store.FindByTask(ctx, owner, fragment)
	if err != nil {
		r.log.Error("find reminders failed", zap.String("owner", owner), zap.Error(err))
		return replyStoreTrouble
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No reminder found for '%s'.", fragment)
	}
	if len(matches) > 1 {
		return fmt.Sprintf(replyManyMatchesFn, len(matches), fragment)
	}

	spec, err := r.extract(ctx, fragment)
	if err != nil {
		return replyCannotUpdate
	}
	if err := r.store.Update(ctx, matches[0].ID, owner, *spec); err != nil {
		if err == store.ErrNotFound {
			return fmt.Sprintf("No reminder found for '%s'.", fragment)
		}
		r.log.Error("update reminder failed",
			zap.String("owner", owner), zap.String("id", matches[0].ID), zap.Error(err))
		return replyStoreTrouble
	}
	return fmt.Sprintf("Reminder updated: %s at %s on %s.",
		spec.Task, spec.TimeOfDay, spec.StartDate.Format(models.DateLayout))
}

func (r *Router) createReminder(ctx context.Context, owner, text string) string {
	spec, err := r.extract(ctx, text)
	if err != nil {
		return replyCannotParse
	}
	created, err := r.store.Create(ctx, owner, *spec)
	if err != nil {
		r.log.Error("create reminder failed", zap.String("owner", owner), zap.Error(err))
		return replyStoreTrouble
	}
	return fmt.Sprintf("Reminder set: %s at %s on %s.",
		created.Task, created.TimeOfDay, created.StartDate.Format(models.DateLayout))
}

func (r *Router) extract(ctx context.Context, text string) (*models.ReminderSpec, error) {
	if r.extractor == nil {
		r.metrics.ExtractionFailures.Inc()
		return nil, fmt.Errorf("no extractor configured")
	}
	spec, err := r.extractor.Extract(ctx, text, r.now())
	if err != nil {
		r.metrics.ExtractionFailures.Inc()
		r.log.Info("extraction failed", zap.Error(err))
		return nil, err
	}
	return spec, nil
}
