package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/runcap/internal/api"
	"github.com/Paintersrp/runcap/internal/metrics"
)

type testController struct{}

func (t *testController) Status(stdcontext.Context, int) (*api.RunStatus, error) {
	return nil, nil
}

func (t *testController) Cancel(stdcontext.Context) (*api.CancelResult, error) {
	return nil, nil
}

func TestNewServerRejectsTypedNilController(t *testing.T) {
	var ctrl api.Controller = (*testController)(nil)
	_, err := NewServer(Config{Controller: ctrl})
	if err == nil {
		t.Fatalf("expected error when controller is typed nil")
	}
	if !strings.Contains(err.Error(), "testController") {
		t.Fatalf("expected error to describe typed nil controller, got %v", err)
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           defaultAddr,
		":80":        "127.0.0.1:80",
		"0.0.0.0:80": "0.0.0.0:80",
		"[::]:80":    "[::]:80",
		"host:9000":  "host:9000",
		"[::1]:443":  "[::1]:443",
	}

	for input, expected := range tests {
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	var gotTail int
	ctrl := &mockController{
		statusFn: func(_ stdcontext.Context, tail int) (*api.RunStatus, error) {
			gotTail = tail
			return &api.RunStatus{RunID: "run-1", State: "running", Tail: []string{"b", "c"}}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status?tail=2", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	if gotTail != 2 {
		t.Fatalf("expected tail 2 passed to controller, got %d", gotTail)
	}

	var body api.RunStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if body.RunID != "run-1" || len(body.Tail) != 2 {
		t.Fatalf("unexpected status body %+v", body)
	}
}

func TestHandleStatusInvalidTail(t *testing.T) {
	server := newTestServer(t, &mockController{})

	for _, raw := range []string{"abc", "-1", "100000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status?tail="+raw, nil)
		rec := httptest.NewRecorder()
		server.handleStatus(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("tail=%s: expected 400, got %d", raw, rec.Code)
		}
		var body errorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if body.Code != "invalid_params" {
			t.Fatalf("tail=%s: expected invalid_params, got %q", raw, body.Code)
		}
	}
}

func TestHandleStatusError(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context, int) (*api.RunStatus, error) {
			return nil, errors.New("boom")
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "internal_error" {
		t.Fatalf("expected internal_error code, got %q", body.Code)
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockController{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()

	server.handleStatus(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow GET, got %q", allow)
	}
}

func TestHandleCancel(t *testing.T) {
	called := false
	ctrl := &mockController{
		cancelFn: func(stdcontext.Context) (*api.CancelResult, error) {
			called = true
			return &api.CancelResult{RunID: "run-1", RequestedAt: time.Unix(10, 0)}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cancel", nil)
	rec := httptest.NewRecorder()

	server.handleCancel(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !called {
		t.Fatalf("expected controller cancel to be invoked")
	}
	var body struct {
		Cancel api.CancelResult `json:"cancel"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cancel.RunID != "run-1" {
		t.Fatalf("unexpected cancel body %+v", body)
	}
}

func TestHandleCancelFinishedRun(t *testing.T) {
	ctrl := &mockController{
		cancelFn: func(stdcontext.Context) (*api.CancelResult, error) {
			return nil, fmt.Errorf("cancel run-1: %w", api.ErrRunFinished)
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cancel", nil)
	rec := httptest.NewRecorder()

	server.handleCancel(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "run_finished" {
		t.Fatalf("expected run_finished code, got %q", body.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockController{})
	metrics.ObserveRun("api_test", "completed", 150*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `runcap_runs_total{outcome="completed",runtime="api_test"}`) {
		t.Fatalf("expected run counter for api_test runtime, got:\n%s", body)
	}
	if !strings.Contains(body, `runcap_run_duration_seconds_count{runtime="api_test"}`) {
		t.Fatalf("expected duration histogram for api_test runtime, got:\n%s", body)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctrl := &mockController{
		statusFn: func(stdcontext.Context, int) (*api.RunStatus, error) {
			return &api.RunStatus{RunID: "live"}, nil
		},
	}
	server, err := NewServer(Config{Controller: ctrl, Listener: ln})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	resp, err := http.Get("http://" + server.Addr() + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"run_id":"live"`) {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, data)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

type mockController struct {
	statusFn func(stdcontext.Context, int) (*api.RunStatus, error)
	cancelFn func(stdcontext.Context) (*api.CancelResult, error)
}

func (m *mockController) Status(ctx stdcontext.Context, tail int) (*api.RunStatus, error) {
	if m.statusFn == nil {
		return &api.RunStatus{}, nil
	}
	return m.statusFn(ctx, tail)
}

func (m *mockController) Cancel(ctx stdcontext.Context) (*api.CancelResult, error) {
	if m.cancelFn == nil {
		return &api.CancelResult{}, nil
	}
	return m.cancelFn(ctx)
}

func newTestServer(t *testing.T, ctrl api.Controller) *Server {
	t.Helper()
	server, err := NewServer(Config{Controller: ctrl})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}
