// Package memory is an in-process store for tests and single-device use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	timers  map[string]models.TimerRecord // by record id
	actions []models.AuditEntry
}

func NewStore() *Store {
	return &Store{timers: make(map[string]models.TimerRecord)}
}

func (s *Store) CreateTimer(_ context.Context, rec models.TimerRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.timers {
		if existing.TimerID == rec.TimerID {
			return "", fmt.Errorf("timer %s already exists", rec.TimerID)
		}
	}
	rec.ID = uuid.NewString()
	s.timers[rec.ID] = clone(rec)
	return rec.ID, nil
}

func (s *Store) UpdateTimer(_ context.Context, ref string, rec models.TimerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[ref]; !ok {
		return fmt.Errorf("update timer %s: %w", ref, store.ErrNotFound)
	}
	rec.ID = ref
	s.timers[ref] = clone(rec)
	return nil
}

func (s *Store) GetTimer(_ context.Context, timerID string) (*models.TimerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.timers {
		if rec.TimerID == timerID {
			out := clone(rec)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListActiveTimers(_ context.Context) ([]models.TimerRecord, error) {
	return s.filter(func(r models.TimerRecord) bool { return !r.Terminated() }), nil
}

func (s *Store) AppendAction(_ context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, entry)
	return nil
}

func (s *Store) ListTimersCreatedBetween(_ context.Context, from, to time.Time) ([]models.TimerRecord, error) {
	w := store.Window{From: from, To: to}
	return s.filter(func(r models.TimerRecord) bool {
		return r.CreatedAt != nil && w.Contains(*r.CreatedAt)
	}), nil
}

func (s *Store) ListTimersCreatedSince(ctx context.Context, since time.Time) ([]models.TimerRecord, error) {
	return s.ListTimersCreatedBetween(ctx, since, time.Time{})
}

func (s *Store) ListActionsBetween(_ context.Context, from, to time.Time) ([]models.AuditEntry, error) {
	w := store.Window{From: from, To: to}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, 0, len(s.actions))
	for _, a := range s.actions {
		if w.Contains(a.Timestamp) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Actions returns the audit log in append order.
func (s *Store) Actions() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditEntry(nil), s.actions...)
}

// Put stores rec as is, keeping rec.ID when set. Used to seed records
// written by other clients.
func (s *Store) Put(rec models.TimerRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.timers[rec.ID] = clone(rec)
	return rec.ID
}

func (s *Store) filter(keep func(models.TimerRecord) bool) []models.TimerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TimerRecord, 0, len(s.timers))
	for _, rec := range s.timers {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].CreatedAt, out[j].CreatedAt
		if ci == nil || cj == nil || ci.Equal(*cj) {
			return out[i].TimerID < out[j].TimerID
		}
		return ci.Before(*cj)
	})
	return out
}

// clone copies the pointer fields so callers never share memory with the store.
func clone(r models.TimerRecord) models.TimerRecord {
	r.Time = copyPtr(r.Time)
	r.DefaultTime = copyPtr(r.DefaultTime)
	r.StartTime = copyPtr(r.StartTime)
	r.EndTime = copyPtr(r.EndTime)
	r.CreatedAt = copyPtr(r.CreatedAt)
	return r
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
