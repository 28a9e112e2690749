// Package store persists the last seen display text of every known trip.
package store

import (
	"context"

	"github.com/starford/tripwatch/internal/models"
)

// Reader is the read side used during reconciliation.
type Reader interface {
	// Lookup returns the stored entry for link. A missing link is reported
	// through the bool, never as an error.
	Lookup(ctx context.Context, link string) (models.KnownTrip, bool, error)
}

// Writer mutates known trips.
type Writer interface {
	// Insert creates an entry; a duplicate link yields apperr.ErrAlreadyExists.
	Insert(ctx context.Context, link, displayText string) error
	// Update overwrites an existing entry and never creates one; a missing
	// link yields apperr.ErrNotFound.
	Update(ctx context.Context, link, displayText string) error
}

// Store is the full record store contract.
// Consumers should depend on the narrowest interface they need.
type Store interface {
	Reader
	Writer
	// WithTx runs fn against a writer whose changes commit together.
	WithTx(ctx context.Context, fn func(Writer) error) error
	List(ctx context.Context, limit, offset int) ([]models.KnownTrip, int, error)
	// EnsureSchema creates the known_trips table if it does not exist.
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Verify implementations satisfy Store at compile time.
var (
	_ Store = (*SQL)(nil)
	_ Store = (*Memory)(nil)
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
