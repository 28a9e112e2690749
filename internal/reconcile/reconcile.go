// Package reconcile classifies freshly scraped trips against the record store.
package reconcile

import (
	"context"
	"fmt"

	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/store"
)

// Result partitions one batch. New and Updated keep the order of the input.
type Result struct {
	New     []models.Trip
	Updated []models.Trip
	// Unchanged counts trips whose stored display text matched.
	Unchanged int
	// Duplicates holds later occurrences of a link already seen in the batch.
	// They are not classified.
	Duplicates []models.Trip
}

// ReadError aborts a reconciliation. The classification done before the
// failing lookup is discarded.
type ReadError struct {
	Link      string
	Discarded int
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reconcile: lookup %s (discarded %d classified trips): %v", e.Link, e.Discarded, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Reconcile looks up every trip and sorts it into new, updated or unchanged.
// It never writes to the store. Only the first occurrence of a link takes part
// in classification so that one batch cannot produce two writes for a link.
func Reconcile(ctx context.Context, r store.Reader, trips []models.Trip) (Result, error) {
	var res Result
	seen := make(map[string]struct{}, len(trips))

	for _, t := range trips {
		if _, dup := seen[t.Link]; dup {
			res.Duplicates = append(res.Duplicates, t)
			continue
		}
		seen[t.Link] = struct{}{}

		known, ok, err := r.Lookup(ctx, t.Link)
		if err != nil {
			return Result{}, &ReadError{Link: t.Link, Discarded: len(res.New) + len(res.Updated) + res.Unchanged, Err: err}
		}

		switch {
		case !ok:
			res.New = append(res.New, t)
		case known.DisplayText == t.DisplayText:
			res.Unchanged++
		default:
			t.PreviousDisplayText = known.DisplayText
			res.Updated = append(res.Updated, t)
		}
	}

	return res, nil
}
