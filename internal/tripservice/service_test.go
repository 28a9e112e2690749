package tripservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/store"
)

type stubRunner struct {
	busy bool
	last *cycle.Outcome
	ctx  context.Context
}

func (r *stubRunner) TryRun(ctx context.Context) (cycle.Outcome, bool) {
	r.ctx = ctx
	if r.busy {
		return cycle.Outcome{}, false
	}
	out := cycle.Outcome{ID: "run-1"}
	r.last = &out
	return out, true
}

func (r *stubRunner) Last() (cycle.Outcome, bool) {
	if r.last == nil {
		return cycle.Outcome{}, false
	}
	return *r.last, true
}

func TestLookupTrip(t *testing.T) {
	st := store.NewMemory()
	_ = st.Insert(context.Background(), "https://x/1", "Hike · Jan 1 (January)")
	svc := New(st, &stubRunner{})

	kt, err := svc.LookupTrip(context.Background(), " https://x/1 ")
	if err != nil {
		t.Fatalf("LookupTrip: %v", err)
	}
	if kt.DisplayText != "Hike · Jan 1 (January)" {
		t.Errorf("display text = %q", kt.DisplayText)
	}

	if _, err := svc.LookupTrip(context.Background(), "https://x/2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing trip err = %v, want ErrNotFound", err)
	}
	if _, err := svc.LookupTrip(context.Background(), ""); err == nil {
		t.Error("expected error for empty link")
	}
}

func TestListTripsEmpty(t *testing.T) {
	svc := New(store.NewMemory(), &stubRunner{})
	list, err := svc.ListTrips(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListTrips: %v", err)
	}
	if list.Trips == nil || len(list.Trips) != 0 || list.Total != 0 {
		t.Errorf("list = %+v", list)
	}
}

func TestRunCycle(t *testing.T) {
	r := &stubRunner{}
	svc := New(store.NewMemory(), r)

	if _, err := svc.LastCycle(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("LastCycle before run err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	cancel()
	if out.ID != "run-1" {
		t.Errorf("id = %q", out.ID)
	}
	if r.ctx.Err() != nil {
		t.Error("cycle context cancelled with the caller's")
	}

	last, err := svc.LastCycle(context.Background())
	if err != nil || last.ID != "run-1" {
		t.Errorf("LastCycle = %+v, %v", last, err)
	}

	r.busy = true
	if _, err := svc.RunCycle(context.Background()); !errors.Is(err, apperr.ErrCycleRunning) {
		t.Errorf("busy RunCycle err = %v, want ErrCycleRunning", err)
	}
}
