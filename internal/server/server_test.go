package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/auth"
	"github.com/johannestang/llamaxing/internal/dispatch"
	"github.com/johannestang/llamaxing/internal/provider"
	"github.com/johannestang/llamaxing/internal/relay"
	"github.com/johannestang/llamaxing/internal/telemetry"
)

func newTestDeps(t *testing.T, modelsJSON string, upstream *httptest.Server) Deps {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	body := strings.ReplaceAll(modelsJSON, "$UPSTREAM_URL", upstream.URL)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := dispatch.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	providers := provider.NewRegistry()
	providers.Register("ollama", provider.Ollama{})

	return Deps{
		Auth:           auth.NewNoneHandler(),
		Dispatcher:     dispatch.New(reg, providers),
		Relay:          relay.New(upstream.Client(), nil, nil, nil, false),
		AppName:        "llamaxing",
		RequestTimeout: 5 * time.Second,
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Deps{AppName: "llamaxing"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestAuthenticate_Failure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be reached")
	}))
	defer upstream.Close()

	deps := newTestDeps(t, `[]`, upstream)
	deps.Auth = rejectingAuth{}
	h := New(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"x"}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

type rejectingAuth struct{}

func (rejectingAuth) Authenticate(*http.Request) (*llamaxing.Identity, error) {
	return nil, llamaxing.ErrUnauthorized
}

// TestUnknownModel exercises spec §8 S1: POST with an unregistered model
// returns 404 and {"detail":"Model not found"}.
func TestUnknownModel(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be reached")
	}))
	defer upstream.Close()

	h := New(newTestDeps(t, `[]`, upstream))

	rec := httptest.NewRecorder()
	body := `{"model":"nonexistent","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"detail":"Model not found"`) {
		t.Errorf("body = %s, want detail Model not found", rec.Body.String())
	}
}

// TestCapabilityGate exercises spec §8 S2: a model without the requested
// endpoint's capability returns 405.
func TestCapabilityGate(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be reached")
	}))
	defer upstream.Close()

	models := `[
		{"id": "gpt-4", "capabilities": ["chat_completions"], "instances": [{"provider": "ollama", "base_url": "$UPSTREAM_URL"}], "aliases": []}
	]`
	h := New(newTestDeps(t, models, upstream))

	rec := httptest.NewRecorder()
	body := `{"model":"gpt-4","input":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405; body = %s", rec.Code, rec.Body.String())
	}
}

// TestListModels_Anonymous exercises spec §8 S3: with auth_method=none,
// GET /v1/models returns the registry with proxied_by set to the app name.
func TestListModels_Anonymous(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream should not be reached")
	}))
	defer upstream.Close()

	models := `[
		{"id": "gpt-4", "capabilities": ["chat_completions"], "instances": [{"provider": "ollama", "base_url": "$UPSTREAM_URL"}], "aliases": []}
	]`
	h := New(newTestDeps(t, models, upstream))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	wantSubstrings := []string{`"object":"list"`, `"id":"gpt-4"`, `"proxied_by":"llamaxing"`}
	for _, want := range wantSubstrings {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("body = %s, want substring %q", rec.Body.String(), want)
		}
	}
}

// TestChatCompletion_Unary_Success exercises the dual /x and /v1/x mounts
// against a real dispatch+relay path into a fake upstream.
func TestChatCompletion_Unary_Success(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if strings.Contains(string(b), "observation_metadata") {
			t.Error("observation_metadata should have been stripped before upstream forwarding")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"chat.completion","choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer upstream.Close()

	models := `[
		{"id": "gpt-4", "capabilities": ["chat_completions"], "instances": [{"provider": "ollama", "base_url": "$UPSTREAM_URL"}], "aliases": []}
	]`
	h := New(newTestDeps(t, models, upstream))

	for _, path := range []string{"/chat/completions", "/v1/chat/completions"} {
		rec := httptest.NewRecorder()
		body := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}],"observation_metadata":{"trace_id":"t1"}}`
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", path, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "hi") {
			t.Errorf("%s: body = %s, want content hi", path, rec.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	deps := newTestDeps(t, `[]`, upstream)
	deps.Metrics = metrics
	deps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	h := New(deps)

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "llamaxing_requests_total") {
		t.Error("metrics body should contain llamaxing_requests_total")
	}
}
