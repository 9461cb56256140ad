// Package store holds the durable reminder collection behind a capability
// interface so the router and scheduler never touch a driver directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/apetersen/remindbot/internal/models"
)

// ErrNotFound is returned when the targeted reminder does not exist.
var ErrNotFound = errors.New("reminder not found")

// ReminderStore is the durable keyed collection of reminders. Every method is
// a single atomic operation with respect to concurrent callers.
type ReminderStore interface {
	// Create persists a new reminder for the owner and returns it with its
	// assigned identity.
	Create(ctx context.Context, owner string, spec models.ReminderSpec) (*models.Reminder, error)
	// Get returns the reminder by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Reminder, error)
	// ListByOwner returns all of the owner's reminders, oldest first.
	ListByOwner(ctx context.Context, owner string) ([]*models.Reminder, error)
	// FindByTask returns the owner's reminders whose task contains the
	// fragment, case-insensitively, oldest first.
	FindByTask(ctx context.Context, owner, fragment string) ([]*models.Reminder, error)
	// ListDueCandidates returns every reminder whose end date has not passed
	// as of the given instant's calendar date.
	ListDueCandidates(ctx context.Context, asOf time.Time) ([]*models.Reminder, error)
	// Update replaces all mutable fields of the owner's reminder in one
	// atomic write. Returns ErrNotFound when no such reminder exists.
	Update(ctx context.Context, id, owner string, spec models.ReminderSpec) error
	// Delete removes the reminder by id. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id string) error
	// DeleteByTask removes all of the owner's reminders whose task contains
	// the fragment and reports how many were removed.
	DeleteByTask(ctx context.Context, owner, fragment string) (int, error)
	// DeleteExpired removes reminders whose end date lies strictly before
	// the given instant's calendar date.
	DeleteExpired(ctx context.Context, asOf time.Time) (int, error)
	// MarkDelivered records that the occurrence was notified. The delivery
	// watermark only ever advances: calling it again with the same or an
	// earlier instant is a no-op.
	MarkDelivered(ctx context.Context, id string, occurrence time.Time) error
}
