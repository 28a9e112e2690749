// Package gate bounds how many notifications one cycle may send.
package gate

import (
	"fmt"
	"sync/atomic"

	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/reconcile"
)

// DefaultMaxPerCategory is the per-category cap used when none is configured.
const DefaultMaxPerCategory = 3

// Categories gated independently.
const (
	CategoryNew     = "new"
	CategoryUpdated = "updated"
)

// TruncationWarning records that a category was cut down to the limit.
// It is informational, not a cycle failure.
type TruncationWarning struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Limit    int    `json:"limit"`
}

func (w TruncationWarning) Error() string {
	return fmt.Sprintf("too many %s trips (%d), only showing %d", w.Category, w.Count, w.Limit)
}

// Gate caps the new and updated slices of a reconciliation result.
// The limit may be changed while cycles run.
type Gate struct {
	limit atomic.Int64
}

// New returns a gate with the given limit; values below 1 select the default.
func New(limit int) *Gate {
	g := &Gate{}
	g.SetLimit(limit)
	return g
}

// SetLimit changes the cap for subsequent Apply calls.
func (g *Gate) SetLimit(limit int) {
	if limit < 1 {
		limit = DefaultMaxPerCategory
	}
	g.limit.Store(int64(limit))
}

// Limit returns the current cap.
func (g *Gate) Limit() int {
	return int(g.limit.Load())
}

// Apply truncates each category to the limit, keeping the leading elements,
// and returns one warning per truncated category.
func (g *Gate) Apply(res reconcile.Result) (reconcile.Result, []TruncationWarning) {
	limit := g.Limit()
	var warnings []TruncationWarning

	var w *TruncationWarning
	res.New, w = capSlice(CategoryNew, res.New, limit)
	if w != nil {
		warnings = append(warnings, *w)
	}
	res.Updated, w = capSlice(CategoryUpdated, res.Updated, limit)
	if w != nil {
		warnings = append(warnings, *w)
	}
	return res, warnings
}

func capSlice(category string, trips []models.Trip, limit int) ([]models.Trip, *TruncationWarning) {
	if len(trips) <= limit {
		return trips, nil
	}
	return trips[:limit:limit], &TruncationWarning{Category: category, Count: len(trips), Limit: limit}
}
