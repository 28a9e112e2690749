// Package cycle drives one fetch, reconcile, gate, notify and persist pass and
// keeps a failure in any phase from touching state it must not touch.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/message"
	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/reconcile"
	"github.com/starford/tripwatch/internal/store"
)

// Source produces the current agenda.
type Source interface {
	Fetch(ctx context.Context) ([]models.Trip, error)
}

// Notifier delivers one message to a destination.
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// Reporter is the operator channel. Implementations must not fail loudly:
// a broken reporter never replaces the failure being reported.
type Reporter interface {
	Report(ctx context.Context, kind string, err error, msg string)
}

// Observer is told about every finished cycle.
type Observer interface {
	CycleFinished(o Outcome)
}

// Store is the part of the record store a cycle needs.
type Store interface {
	store.Reader
	WithTx(ctx context.Context, fn func(store.Writer) error) error
}

// Outcome summarises one cycle.
type Outcome struct {
	ID          string                   `json:"id"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
	Fetched     int                      `json:"fetched"`
	Unchanged   int                      `json:"unchanged"`
	Duplicates  int                      `json:"duplicates"`
	New         []models.Trip            `json:"new"`
	Updated     []models.Trip            `json:"updated"`
	Notified    int                      `json:"notified"`
	Truncations []gate.TruncationWarning `json:"truncations,omitempty"`
	Failure     *PhaseError              `json:"failure,omitempty"`
}

// OK reports whether the cycle reached the end of the persist phase.
func (o Outcome) OK() bool { return o.Failure == nil }

// Config holds per-cycle settings.
type Config struct {
	// Destination is the channel that receives trip messages.
	Destination string
	// FetchTimeout bounds Source.Fetch; zero disables the bound.
	FetchTimeout time.Duration
	// NotifyTimeout bounds each Notifier.Send; zero disables the bound.
	NotifyTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for finished cycles.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs cycles one at a time.
type Orchestrator struct {
	cfg      Config
	source   Source
	store    Store
	gate     *gate.Gate
	notifier Notifier
	reporter Reporter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex

	mu   sync.RWMutex
	last *Outcome
}

// New creates an orchestrator. All collaborators are required.
func New(cfg Config, src Source, st Store, g *gate.Gate, n Notifier, r Reporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		source:   src,
		store:    st,
		gate:     g,
		notifier: n,
		reporter: r,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TryRun runs one cycle unless another is in progress, in which case it
// returns false immediately. Failures are reported and recorded in the
// outcome; they never escape as errors or panics.
func (o *Orchestrator) TryRun(ctx context.Context) (Outcome, bool) {
	if !o.running.TryLock() {
		o.logger.Debug("cycle skipped, previous cycle still running")
		return Outcome{}, false
	}
	defer o.running.Unlock()

	out := o.run(ctx)

	o.mu.Lock()
	o.last = &out
	o.mu.Unlock()

	o.notifyObserver(out)
	return out, true
}

func (o *Orchestrator) notifyObserver(out Outcome) {
	if o.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle observer panicked",
				slog.String("cycle_id", out.ID),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	o.observer.CycleFinished(out)
}

// Last returns the most recent finished cycle.
func (o *Orchestrator) Last() (Outcome, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) run(ctx context.Context) (out Outcome) {
	out = Outcome{ID: uuid.NewString(), StartedAt: o.now()}
	logger := o.logger.With(slog.String("cycle_id", out.ID))
	phase := PhaseFetch

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, logger, &out, &PhaseError{Phase: phase, Msg: "Panic during cycle", Err: fmt.Errorf("panic: %v", r)})
		}
		out.FinishedAt = o.now()
		if out.OK() {
			logger.Info("cycle finished",
				slog.Int("fetched", out.Fetched),
				slog.Int("new", len(out.New)),
				slog.Int("updated", len(out.Updated)),
				slog.Int("unchanged", out.Unchanged))
		}
	}()

	fetchCtx, cancel := withTimeout(ctx, o.cfg.FetchTimeout)
	trips, err := o.source.Fetch(fetchCtx)
	cancel()
	if err != nil {
		o.fail(ctx, logger, &out, &PhaseError{Phase: PhaseFetch, Msg: "Exception while reading trip agenda", Err: err})
		return out
	}
	out.Fetched = len(trips)

	phase = PhaseReconcile
	res, err := reconcile.Reconcile(ctx, o.store, trips)
	if err != nil {
		o.fail(ctx, logger, &out, &PhaseError{Phase: PhaseReconcile, Msg: "Exception while comparing trips to database", Err: err})
		return out
	}
	out.Unchanged = res.Unchanged
	out.Duplicates = len(res.Duplicates)
	for _, d := range res.Duplicates {
		logger.Warn("duplicate link in agenda, later occurrence ignored",
			slog.String("link", d.Link),
			slog.String("display_text", d.DisplayText))
	}

	phase = PhaseGate
	gated, warnings := o.gate.Apply(res)
	for _, w := range warnings {
		out.Truncations = append(out.Truncations, w)
		logger.Warn("notification gate truncated trips",
			slog.String("category", w.Category),
			slog.Int("count", w.Count),
			slog.Int("limit", w.Limit))
		o.reporter.Report(ctx, KindTruncation, w, fmt.Sprintf("Too many %s trips, only showing %d", w.Category, w.Limit))
	}
	out.New = gated.New
	out.Updated = gated.Updated

	phase = PhaseNotify
	if err := o.notify(ctx, &out); err != nil {
		o.fail(ctx, logger, &out, &PhaseError{
			Phase: PhaseNotify,
			Msg:   fmt.Sprintf("Exception while trying to send new=%v and updated=%v", linksOf(out.New), linksOf(out.Updated)),
			Err:   err,
		})
		return out
	}

	phase = PhasePersist
	err = o.store.WithTx(ctx, func(w store.Writer) error {
		for _, t := range out.New {
			if err := w.Insert(ctx, t.Link, t.DisplayText); err != nil {
				return err
			}
		}
		for _, t := range out.Updated {
			if err := w.Update(ctx, t.Link, t.DisplayText); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		o.fail(ctx, logger, &out, &PhaseError{Phase: PhasePersist, Msg: "Exception while updating the database", Err: err})
		return out
	}
	logger.Debug("persisted trips", slog.Int("inserts", len(out.New)), slog.Int("updates", len(out.Updated)))
	return out
}

// notify sends every new trip, then every updated trip, stopping at the first
// failed send.
func (o *Orchestrator) notify(ctx context.Context, out *Outcome) error {
	send := func(text string) error {
		sendCtx, cancel := withTimeout(ctx, o.cfg.NotifyTimeout)
		defer cancel()
		if err := o.notifier.Send(sendCtx, o.cfg.Destination, text); err != nil {
			return err
		}
		out.Notified++
		return nil
	}
	for _, t := range out.New {
		if err := send(message.NewTrip(t)); err != nil {
			return fmt.Errorf("send new trip %s: %w", t.Link, err)
		}
	}
	for _, t := range out.Updated {
		if err := send(message.UpdatedTrip(t)); err != nil {
			return fmt.Errorf("send updated trip %s: %w", t.Link, err)
		}
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, out *Outcome, pe *PhaseError) {
	out.Failure = pe
	logger.Error("cycle failed",
		slog.String("phase", string(pe.Phase)),
		slog.String("kind", pe.Kind()),
		slog.String("error", pe.Error()))
	o.reporter.Report(ctx, pe.Kind(), pe.Err, pe.Msg)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func linksOf(trips []models.Trip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = t.Link
	}
	return out
}
