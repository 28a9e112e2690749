// Package tripservice exposes known trips and cycle control to the HTTP API
// and the MCP server.
package tripservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/store"
)

// Store is the read-only part of the record store the service uses.
type Store interface {
	store.Reader
	List(ctx context.Context, limit, offset int) ([]models.KnownTrip, int, error)
	Ping(ctx context.Context) error
}

// Runner starts cycles and remembers the last one.
type Runner interface {
	TryRun(ctx context.Context) (cycle.Outcome, bool)
	Last() (cycle.Outcome, bool)
}

// TripList is one page of known trips.
type TripList struct {
	Trips  []models.KnownTrip `json:"trips"`
	Total  int                `json:"total"`
	Count  int                `json:"count"`
	Offset int                `json:"offset"`
}

// Service coordinates the record store and the cycle runner.
type Service struct {
	store  Store
	runner Runner
}

// New creates a service.
func New(st Store, runner Runner) *Service {
	return &Service{store: st, runner: runner}
}

// ListTrips returns known trips, most recently changed first.
func (s *Service) ListTrips(ctx context.Context, limit, offset int) (*TripList, error) {
	if offset < 0 {
		offset = 0
	}
	trips, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("tripservice: list: %w", err)
	}
	if trips == nil {
		trips = []models.KnownTrip{}
	}
	return &TripList{Trips: trips, Total: total, Count: len(trips), Offset: offset}, nil
}

// LookupTrip returns the stored entry for link or apperr.ErrNotFound.
func (s *Service) LookupTrip(ctx context.Context, link string) (*models.KnownTrip, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("tripservice: lookup: link is required")
	}
	kt, ok, err := s.store.Lookup(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("tripservice: lookup: %w", err)
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &kt, nil
}

// RunCycle runs a cycle now. It fails with apperr.ErrCycleRunning when one
// is already in progress. The cycle is not cancelled with ctx, so a caller
// that goes away cannot leave a cycle half-notified.
func (s *Service) RunCycle(ctx context.Context) (*cycle.Outcome, error) {
	out, ran := s.runner.TryRun(context.WithoutCancel(ctx))
	if !ran {
		return nil, apperr.ErrCycleRunning
	}
	return &out, nil
}

// LastCycle returns the most recent cycle or apperr.ErrNotFound before the
// first one has finished.
func (s *Service) LastCycle(context.Context) (*cycle.Outcome, error) {
	out, ok := s.runner.Last()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &out, nil
}

// Ready reports whether the record store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
