package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apetersen/remindbot/internal/database"
	"github.com/apetersen/remindbot/internal/models"
)

// PostgresStore implements ReminderStore on a pgx connection pool. All
// mutations are single statements, so row-level atomicity is the database's.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const reminderColumns = `id, owner, task, frequency, start_date, end_date, time_of_day, last_delivered_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, owner string, spec models.ReminderSpec) (*models.Reminder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	r := &models.Reminder{
		ID:           uuid.NewString(),
		Owner:        owner,
		ReminderSpec: spec,
	}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (id, owner, task, frequency, start_date, end_date, time_of_day)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		r.ID, r.Owner, r.Task, string(r.Frequency), r.StartDate, r.EndDate, r.TimeOfDay.String(),
	).Scan(&r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]*models.Reminder, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner = $1 ORDER BY created_at ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *PostgresStore) FindByTask(ctx context.Context, owner, fragment string) ([]*models.Reminder, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE owner = $1 AND task ILIKE $2 ORDER BY created_at ASC`,
		owner, "%"+fragment+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *PostgresStore) ListDueCandidates(ctx context.Context, asOf time.Time) ([]*models.Reminder, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE end_date >= $1 ORDER BY created_at ASC`,
		dateOnly(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *PostgresStore) Update(ctx context.Context, id, owner string, spec models.ReminderSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE reminders
		 SET task = $1, frequency = $2, start_date = $3, end_date = $4, time_of_day = $5
		 WHERE id = $6 AND owner = $7`,
		spec.Task, string(spec.Frequency), spec.StartDate, spec.EndDate, spec.TimeOfDay.String(),
		id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByTask(ctx context.Context, owner, fragment string) (int, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM reminders WHERE owner = $1 AND task ILIKE $2`,
		owner, "%"+fragment+"%")
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, asOf time.Time) (int, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM reminders WHERE end_date < $1`, dateOnly(asOf))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id string, occurrence time.Time) error {
	// The watermark predicate makes the write idempotent under retries and
	// concurrent scans.
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE reminders SET last_delivered_at = $1
		 WHERE id = $2 AND (last_delivered_at IS NULL OR last_delivered_at < $1)`,
		occurrence, id)
	return err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*models.Reminder, error) {
	r := &models.Reminder{}
	var freq, tod string
	if err := row.Scan(&r.ID, &r.Owner, &r.Task, &freq, &r.StartDate, &r.EndDate,
		&tod, &r.LastDelivered, &r.CreatedAt); err != nil {
		return nil, err
	}
	f, err := models.ParseFrequency(freq)
	if err != nil {
		return nil, fmt.Errorf("reminder %s: %w", r.ID, err)
	}
	r.Frequency = f
	t, err := models.ParseTimeOfDay(tod)
	if err != nil {
		return nil, fmt.Errorf("reminder %s: %w", r.ID, err)
	}
	r.TimeOfDay = t
	return r, nil
}

func scanReminders(rows pgx.Rows) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}
