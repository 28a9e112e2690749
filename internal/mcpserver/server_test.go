package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tripwatch/internal/cycle"
	"github.com/starford/tripwatch/internal/gate"
	"github.com/starford/tripwatch/internal/models"
	"github.com/starford/tripwatch/internal/store"
	"github.com/starford/tripwatch/internal/tripservice"
)

type fixedSource []models.Trip

func (f fixedSource) Fetch(context.Context) ([]models.Trip, error) { return f, nil }

type countingNotifier struct{ n int }

func (c *countingNotifier) Send(context.Context, string, string) error {
	c.n++
	return nil
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, error, string) {}

func testServer(t *testing.T) (*Server, *store.Memory, *countingNotifier) {
	t.Helper()
	st := store.NewMemory()
	n := &countingNotifier{}
	src := fixedSource{
		{Link: "https://voc.example/trip/1", DisplayText: "Hike · Jan 1 (January)"},
		{Link: "https://voc.example/trip/2", DisplayText: "Ski · Jan 2 (January)"},
	}
	orch := cycle.New(cycle.Config{Destination: "@trips"}, src, st, gate.New(3), n, nopReporter{})
	return New(tripservice.New(st, orch)), st, n
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// Handlers are called directly; mcp-go has no in-process call helper.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_known_trips":
		result, err = srv.listKnownTrips(ctx, req)
	case "lookup_trip":
		result, err = srv.lookupTrip(ctx, req)
	case "run_cycle":
		result, err = srv.runCycle(ctx, req)
	case "last_cycle":
		result, err = srv.lastCycle(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestRunCycleAndLastCycle(t *testing.T) {
	srv, _, n := testServer(t)

	r := callTool(t, srv, "last_cycle", nil)
	if text := resultText(r); text != "no cycle has finished yet" {
		t.Errorf("last_cycle before run = %q", text)
	}

	r = callTool(t, srv, "run_cycle", nil)
	if r.IsError {
		t.Fatalf("run_cycle error: %s", resultText(r))
	}
	var out cycle.Outcome
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if len(out.New) != 2 || n.n != 2 {
		t.Errorf("new = %d, sent = %d, want 2 and 2", len(out.New), n.n)
	}

	r = callTool(t, srv, "last_cycle", nil)
	if !strings.Contains(resultText(r), out.ID) {
		t.Errorf("last_cycle does not mention %s", out.ID)
	}
}

func TestListKnownTrips(t *testing.T) {
	srv, st, _ := testServer(t)
	_ = st.Insert(context.Background(), "https://voc.example/trip/9", "Climb · Mar 3 (March)")

	r := callTool(t, srv, "list_known_trips", map[string]interface{}{"limit": float64(10)})
	var list tripservice.TripList
	if err := json.Unmarshal([]byte(resultText(r)), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Trips[0].Link != "https://voc.example/trip/9" {
		t.Errorf("list = %+v", list)
	}
}

func TestLookupTrip(t *testing.T) {
	srv, st, _ := testServer(t)
	_ = st.Insert(context.Background(), "https://voc.example/trip/9", "Climb · Mar 3 (March)")

	r := callTool(t, srv, "lookup_trip", map[string]interface{}{"link": "https://voc.example/trip/9"})
	if r.IsError || !strings.Contains(resultText(r), "Climb · Mar 3 (March)") {
		t.Errorf("lookup = %q", resultText(r))
	}

	r = callTool(t, srv, "lookup_trip", map[string]interface{}{"link": "https://voc.example/nope"})
	if !r.IsError {
		t.Error("expected error for unknown trip")
	}

	r = callTool(t, srv, "lookup_trip", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing link")
	}
}

func TestMessageFormatResource(t *testing.T) {
	srv, _, _ := testServer(t)
	contents, err := srv.readMessageFormat(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "New Trip: Ski touring at Brandywine · Sat Jan 4 (January)") {
		t.Errorf("message format missing example:\n%s", text)
	}
}
