package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/models"
)

// Memory is a map-backed Store. State is lost on exit, which makes it suitable
// for dry runs and tests.
type Memory struct {
	mu    sync.RWMutex
	trips map[string]models.KnownTrip
	now   func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		trips: make(map[string]models.KnownTrip),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type memWriter struct {
	trips map[string]models.KnownTrip
	now   time.Time
}

func (w memWriter) Insert(_ context.Context, link, displayText string) error {
	if _, ok := w.trips[link]; ok {
		return fmt.Errorf("store: insert %s: %w", link, apperr.ErrAlreadyExists)
	}
	w.trips[link] = models.KnownTrip{Link: link, DisplayText: displayText, CreatedAt: w.now, UpdatedAt: w.now}
	return nil
}

func (w memWriter) Update(_ context.Context, link, displayText string) error {
	kt, ok := w.trips[link]
	if !ok {
		return fmt.Errorf("store: update %s: %w", link, apperr.ErrNotFound)
	}
	kt.DisplayText = displayText
	kt.UpdatedAt = w.now
	w.trips[link] = kt
	return nil
}

// Lookup returns the stored entry for link, if any.
func (m *Memory) Lookup(_ context.Context, link string) (models.KnownTrip, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kt, ok := m.trips[link]
	return kt, ok, nil
}

// Insert creates a known trip.
func (m *Memory) Insert(ctx context.Context, link, displayText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memWriter{trips: m.trips, now: m.now()}.Insert(ctx, link, displayText)
}

// Update overwrites a known trip.
func (m *Memory) Update(ctx context.Context, link, displayText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memWriter{trips: m.trips, now: m.now()}.Update(ctx, link, displayText)
}

// WithTx applies fn to a staged copy and swaps it in only when fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := maps.Clone(m.trips)
	if err := fn(memWriter{trips: staged, now: m.now()}); err != nil {
		return err
	}
	m.trips = staged
	return nil
}

// List returns known trips, most recently changed first, and the total count.
func (m *Memory) List(_ context.Context, limit, offset int) ([]models.KnownTrip, int, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	all := make([]models.KnownTrip, 0, len(m.trips))
	for _, kt := range m.trips {
		all = append(all, kt)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].Link < all[j].Link
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// EnsureSchema is a no-op.
func (m *Memory) EnsureSchema(context.Context) error { return nil }

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
