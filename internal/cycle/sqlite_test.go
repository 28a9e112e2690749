package cycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/store"
	"github.com/starford/tripwatch/internal/testutil"
)

type listSource []models.Trip

func (l listSource) Fetch(context.Context) ([]models.Trip, error) { return l, nil }

type okNotifier struct{}

func (okNotifier) Send(context.Context, string, string) error { return nil }

type logReporter struct{ kinds []string }

func (r *logReporter) Report(_ context.Context, kind string, _ error, _ string) {
	r.kinds = append(r.kinds, kind)
}

// updateFails lets inserts through but rejects every update, so a cycle
// with both kinds of change must roll back its inserts.
type updateFails struct {
	*store.SQL
}

func (u updateFails) WithTx(ctx context.Context, fn func(store.Writer) error) error {
	return u.SQL.WithTx(ctx, func(w store.Writer) error {
		return fn(failingUpdates{w})
	})
}

type failingUpdates struct{ store.Writer }

func (failingUpdates) Update(context.Context, string, string) error {
	return errors.New("disk I/O error")
}

func TestCycleAgainstSQLite(t *testing.T) {
	db := testutil.TestStore(t)
	ctx := context.Background()
	if err := db.Insert(ctx, "https://x/a", "A · old"); err != nil {
		t.Fatal(err)
	}

	src := listSource{
		{Link: "https://x/a", DisplayText: "A · new"},
		{Link: "https://x/b", DisplayText: "B"},
	}
	o := cycle.New(cycle.Config{Destination: "@c"}, src, db, gate.New(3), okNotifier{}, &logReporter{},
		cycle.WithLogger(testutil.QuietLogger()))

	out, ran := o.TryRun(ctx)
	if !ran || !out.OK() {
		t.Fatalf("cycle = %+v, ran = %v", out, ran)
	}
	a, _, _ := db.Lookup(ctx, "https://x/a")
	b, ok, _ := db.Lookup(ctx, "https://x/b")
	if a.DisplayText != "A · new" || !ok || b.DisplayText != "B" {
		t.Errorf("stored a=%q b=%q (%v)", a.DisplayText, b.DisplayText, ok)
	}
}

func TestPersistFailureRollsBackWholeCycle(t *testing.T) {
	db := testutil.TestStore(t)
	ctx := context.Background()
	if err := db.Insert(ctx, "https://x/a", "A · old"); err != nil {
		t.Fatal(err)
	}

	src := listSource{
		{Link: "https://x/b", DisplayText: "B"},
		{Link: "https://x/a", DisplayText: "A · new"},
	}
	rep := &logReporter{}
	o := cycle.New(cycle.Config{Destination: "@c"}, src, updateFails{db}, gate.New(3), okNotifier{}, rep,
		cycle.WithLogger(testutil.QuietLogger()))

	out, _ := o.TryRun(ctx)
	if out.Failure == nil || out.Failure.Phase != cycle.PhasePersist {
		t.Fatalf("failure = %v, want persist", out.Failure)
	}
	if _, ok, _ := db.Lookup(ctx, "https://x/b"); ok {
		t.Error("insert of B survived a failed persist")
	}
	if len(rep.kinds) != 1 || rep.kinds[0] != cycle.KindPersist {
		t.Errorf("reports = %v", rep.kinds)
	}
}
