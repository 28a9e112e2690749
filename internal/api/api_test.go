package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/store"
	"github.com/starford/tripwatch/internal/tripservice"
)

type staticSource struct {
	trips   []models.Trip
	release chan struct{}
	started chan struct{}
}

func (s *staticSource) Fetch(ctx context.Context) ([]models.Trip, error) {
	if s.release != nil {
		close(s.started)
		<-s.release
	}
	return s.trips, nil
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string) error { return nil }

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, error, string) {}

type env struct {
	router http.Handler
	store  *store.Memory
	source *staticSource
	orch   *cycle.Orchestrator
}

func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *env {
	t.Helper()
	st := store.NewMemory()
	src := &staticSource{trips: []models.Trip{
		{Link: "https://voc.example/trip/1", DisplayText: "Hike · Jan 1 (January)"},
		{Link: "https://voc.example/trip/2", DisplayText: "Ski · Jan 2 (January)"},
	}}
	orch := cycle.New(cycle.Config{Destination: "@trips"}, src, st, gate.New(3), nopNotifier{}, nopReporter{})
	svc := tripservice.New(st, orch)

	r := chi.NewRouter()
	MountHealth(r, svc)
	r.Mount("/api", NewRouter(svc, authToken != "", authToken, sseHandler))
	return &env{router: r, store: st, source: src, orch: orch}
}

func (e *env) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	e := testEnv(t, "secret")
	for _, path := range []string{"/health/live", "/health/ready"} {
		if w := e.do(t, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, w.Code)
		}
	}
}

type downStore struct{ *store.Memory }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthReadyStoreDown(t *testing.T) {
	svc := tripservice.New(downStore{store.NewMemory()}, nil)
	r := chi.NewRouter()
	MountHealth(r, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with store down = %d, want 503", w.Code)
	}
}

func TestRunCycleThenListAndLookup(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/api/cycles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("run cycle = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		ID  string        `json:"id"`
		New []models.Trip `json:"new"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.ID == "" || len(out.New) != 2 {
		t.Errorf("outcome = %+v", out)
	}

	w = e.do(t, http.MethodGet, "/api/trips?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list tripservice.TripList
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 || len(list.Trips) != 1 {
		t.Errorf("list total=%d len=%d, want 2 and 1", list.Total, len(list.Trips))
	}

	w = e.do(t, http.MethodGet, "/api/trips/lookup?link="+url.QueryEscape("https://voc.example/trip/2"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup = %d", w.Code)
	}
	var kt models.KnownTrip
	_ = json.Unmarshal(w.Body.Bytes(), &kt)
	if kt.DisplayText != "Ski · Jan 2 (January)" {
		t.Errorf("display text = %q", kt.DisplayText)
	}

	w = e.do(t, http.MethodGet, "/api/cycles/last", "")
	if w.Code != http.StatusOK {
		t.Errorf("last cycle = %d", w.Code)
	}
}

func TestLookupTrip_NotFound(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodGet, "/api/trips/lookup?link=https%3A%2F%2Fnope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing trip = %d, want 404", w.Code)
	}
}

func TestLookupTrip_MissingLink(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/api/trips/lookup", ""); w.Code != http.StatusBadRequest {
		t.Errorf("lookup without link = %d, want 400", w.Code)
	}
}

func TestLastCycle_NoneYet(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/api/cycles/last", ""); w.Code != http.StatusNotFound {
		t.Errorf("last cycle before any = %d, want 404", w.Code)
	}
}

func TestRunCycle_ConflictWhileRunning(t *testing.T) {
	e := testEnv(t, "")
	e.source.started = make(chan struct{})
	e.source.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.orch.TryRun(context.Background())
	}()
	<-e.source.started

	w := e.do(t, http.MethodPost, "/api/cycles", "")
	close(e.source.release)
	<-done
	if w.Code != http.StatusConflict {
		t.Errorf("concurrent run = %d, want 409", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/api/trips", "secret123"); w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodPost, "/api/cycles", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/api/trips", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/api/trips", ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, "secret", blockingSSE())
	if w := e.do(t, http.MethodGet, "/api/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
