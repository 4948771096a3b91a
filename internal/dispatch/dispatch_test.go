package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/provider"
)

func newTestDispatcher(t *testing.T, body string) *Dispatcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	providers := provider.NewRegistry()
	providers.Register("openai", provider.OpenAI{})
	providers.Register("azure", provider.Azure{})
	providers.Register("ollama", provider.Ollama{})
	return New(reg, providers)
}

func TestDispatch_MissingModel(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[]`)
	_, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{})
	if !errors.Is(err, llamaxing.ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestDispatch_UnknownModel(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[]`)
	_, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{"model": "nope"})
	if !errors.Is(err, llamaxing.ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestDispatch_CapabilityGate(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[
		{"id": "gpt-4", "capabilities": ["embeddings"], "instances": [{"provider": "openai", "openai_api_key": "k"}], "aliases": []}
	]`)
	_, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{"model": "gpt-4"})
	if !errors.Is(err, llamaxing.ErrCapabilityGate) {
		t.Errorf("err = %v, want ErrCapabilityGate", err)
	}
}

func TestDispatch_Success(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[
		{"id": "gpt-4", "capabilities": ["chat_completions"], "instances": [{"provider": "openai", "openai_api_key": "sk-test"}], "aliases": []}
	]`)
	upstream, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{"model": "gpt-4"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if upstream.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("URL = %q", upstream.URL)
	}
	if upstream.Header["Authorization"] != "Bearer sk-test" {
		t.Errorf("Authorization header = %q", upstream.Header["Authorization"])
	}
}

func TestDispatch_UniformlyRandomAcrossInstances(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[
		{
			"id": "gpt-4",
			"capabilities": ["chat_completions"],
			"instances": [
				{"provider": "openai", "openai_api_key": "key-a", "base_url": "https://a.example.com"},
				{"provider": "openai", "openai_api_key": "key-b", "base_url": "https://b.example.com"}
			],
			"aliases": []
		}
	]`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		upstream, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{"model": "gpt-4"})
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		seen[upstream.Header["Authorization"]] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both instances to be selected over 100 draws, saw %v", seen)
	}
}

func TestDispatch_UnregisteredProvider(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[
		{"id": "m", "capabilities": ["chat_completions"], "instances": [{"provider": "bedrock"}], "aliases": []}
	]`)
	_, err := d.Dispatch(llamaxing.EndpointChatCompletions, map[string]any{"model": "m"})
	if err == nil {
		t.Error("expected error for unregistered provider")
	}
}

func TestDispatch_Models(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher(t, `[
		{"id": "gpt-4", "capabilities": ["chat_completions"], "instances": [{"provider": "openai", "openai_api_key": "k"}], "aliases": ["gpt-4-alias"]}
	]`)
	models := d.Models()
	if len(models) != 2 {
		t.Fatalf("Models() len = %d, want 2", len(models))
	}
}
