package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apetersen/remindbot/internal/models"
)

// MemoryStore is an in-process ReminderStore for tests and credential-less
// local runs. A single mutex guards the map; reads hand out clones so callers
// never alias live records.
type MemoryStore struct {
	mu        sync.Mutex
	reminders map[string]*models.Reminder
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reminders: make(map[string]*models.Reminder),
		now:       time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, owner string, spec models.ReminderSpec) (*models.Reminder, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &models.Reminder{
		ID:           uuid.NewString(),
		Owner:        owner,
		ReminderSpec: spec,
		CreatedAt:    s.now(),
	}
	s.reminders[r.ID] = r
	return r.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reminder
	for _, r := range s.reminders {
		if r.Owner == owner {
			out = append(out, r.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) FindByTask(_ context.Context, owner, fragment string) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag := strings.ToLower(fragment)
	var out []*models.Reminder
	for _, r := range s.reminders {
		if r.Owner == owner && strings.Contains(strings.ToLower(r.Task), frag) {
			out = append(out, r.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListDueCandidates(_ context.Context, asOf time.Time) ([]*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reminder
	for _, r := range s.reminders {
		if !endDateBefore(r, asOf) {
			out = append(out, r.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id, owner string, spec models.ReminderSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Owner != owner {
		return ErrNotFound
	}
	r.ReminderSpec = spec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *MemoryStore) DeleteByTask(_ context.Context, owner, fragment string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag := strings.ToLower(fragment)
	n := 0
	for id, r := range s.reminders {
		if r.Owner == owner && strings.Contains(strings.ToLower(r.Task), frag) {
			delete(s.reminders, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.reminders {
		if endDateBefore(r, asOf) {
			delete(s.reminders, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, occurrence time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil
	}
	if r.LastDelivered == nil || r.LastDelivered.Before(occurrence) {
		t := occurrence
		r.LastDelivered = &t
	}
	return nil
}

func endDateBefore(r *models.Reminder, asOf time.Time) bool {
	ey, em, ed := r.EndDate.Date()
	ay, am, ad := asOf.Date()
	end := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	day := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	return end.Before(day)
}

func sortByCreation(rs []*models.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
