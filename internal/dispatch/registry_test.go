package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRegistry_BasicAndAliases(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-expanded")

	path := writeRegistry(t, `[
		{
			"id": "gpt-4",
			"capabilities": ["chat_completions", "completions"],
			"instances": [{"provider": "openai", "openai_api_key": "$TEST_OPENAI_KEY"}],
			"aliases": ["gpt-4-latest"]
		}
	]`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	primary, ok := reg.Get("gpt-4")
	if !ok {
		t.Fatal("expected primary model to be registered")
	}
	if primary.Instances[0].APIKey != "sk-expanded" {
		t.Errorf("APIKey = %q, want expanded value", primary.Instances[0].APIKey)
	}
	if !primary.HasCapability(llamaxing.EndpointChatCompletions) {
		t.Error("expected chat_completions capability")
	}
	if primary.HasCapability(llamaxing.EndpointEmbeddings) {
		t.Error("did not expect embeddings capability")
	}

	alias, ok := reg.Get("gpt-4-latest")
	if !ok {
		t.Fatal("expected alias to be registered")
	}
	if alias.ID != "gpt-4-latest" {
		t.Errorf("alias.ID = %q, want gpt-4-latest", alias.ID)
	}
	if len(reg.List()) != 2 {
		t.Errorf("List() len = %d, want 2", len(reg.List()))
	}
}

func TestLoadRegistry_DuplicateIDErrors(t *testing.T) {
	t.Parallel()
	path := writeRegistry(t, `[
		{"id": "dup", "capabilities": [], "instances": [{"provider": "openai"}], "aliases": []},
		{"id": "dup", "capabilities": [], "instances": [{"provider": "openai"}], "aliases": []}
	]`)
	if _, err := LoadRegistry(path); err == nil {
		t.Error("expected error for duplicate model id")
	}
}

func TestLoadRegistry_AliasCollidesWithIDErrors(t *testing.T) {
	t.Parallel()
	path := writeRegistry(t, `[
		{"id": "a", "capabilities": [], "instances": [{"provider": "openai"}], "aliases": []},
		{"id": "b", "capabilities": [], "instances": [{"provider": "openai"}], "aliases": ["a"]}
	]`)
	if _, err := LoadRegistry(path); err == nil {
		t.Error("expected error for alias colliding with an existing id")
	}
}

func TestLoadRegistry_UnknownCapabilityErrors(t *testing.T) {
	t.Parallel()
	path := writeRegistry(t, `[
		{"id": "x", "capabilities": ["not_a_real_endpoint"], "instances": [{"provider": "openai"}], "aliases": []}
	]`)
	if _, err := LoadRegistry(path); err == nil {
		t.Error("expected error for unknown capability tag")
	}
}

func TestLoadRegistry_AzureInstanceFields(t *testing.T) {
	t.Parallel()
	path := writeRegistry(t, `[
		{
			"id": "gpt-4-azure",
			"capabilities": ["chat_completions"],
			"instances": [{
				"provider": "azure",
				"azure_endpoint": "https://example.openai.azure.com",
				"azure_deployment": "gpt-4-deployment",
				"azure_api_version": "2024-02-01",
				"azure_api_key": "azure-key"
			}],
			"aliases": []
		}
	]`)
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	model, _ := reg.Get("gpt-4-azure")
	inst := model.Instances[0]
	if inst.AzureDeployment != "gpt-4-deployment" || inst.AzureAPIKey != "azure-key" {
		t.Errorf("azure fields not populated correctly: %+v", inst)
	}
}
