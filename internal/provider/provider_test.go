package provider

import (
	"testing"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

func TestOpenAI_Build(t *testing.T) {
	t.Parallel()
	p := OpenAI{}
	instance := llamaxing.InstanceDescriptor{APIKey: "sk-1", Organization: "org-1"}

	req, err := p.Build(llamaxing.EndpointChatCompletions, instance)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("url = %q", req.URL)
	}
	if req.Header["Authorization"] != "Bearer sk-1" {
		t.Errorf("authorization = %q", req.Header["Authorization"])
	}
	if req.Header["OpenAI-Organization"] != "org-1" {
		t.Errorf("organization header missing")
	}
}

func TestOpenAI_Build_MissingKey(t *testing.T) {
	t.Parallel()
	p := OpenAI{}
	if _, err := p.Build(llamaxing.EndpointChatCompletions, llamaxing.InstanceDescriptor{}); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestOpenAI_Build_UnsupportedEndpoint(t *testing.T) {
	t.Parallel()
	p := OpenAI{}
	if _, err := p.Build("bogus", llamaxing.InstanceDescriptor{APIKey: "sk-1"}); err == nil {
		t.Error("expected error for unsupported endpoint")
	}
}

func TestAzure_Build(t *testing.T) {
	t.Parallel()
	p := Azure{}
	instance := llamaxing.InstanceDescriptor{
		AzureEndpoint:   "https://my-resource.openai.azure.com",
		AzureDeployment: "gpt-4o-dep",
		AzureAPIVersion: "2024-06-01",
		AzureAPIKey:     "az-key",
	}

	req, err := p.Build(llamaxing.EndpointImagesGeneration, instance)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "https://my-resource.openai.azure.com/openai/deployments/gpt-4o-dep/images/generations?api-version=2024-06-01"
	if req.URL != want {
		t.Errorf("url = %q, want %q", req.URL, want)
	}
	if req.Header["api-key"] != "az-key" {
		t.Errorf("api-key header = %q", req.Header["api-key"])
	}
}

func TestAzure_Build_IncompleteDescriptor(t *testing.T) {
	t.Parallel()
	p := Azure{}
	if _, err := p.Build(llamaxing.EndpointChatCompletions, llamaxing.InstanceDescriptor{}); err == nil {
		t.Error("expected error for incomplete descriptor")
	}
}

func TestOllama_Build_DefaultsAndNoAuth(t *testing.T) {
	t.Parallel()
	p := Ollama{}
	req, err := p.Build(llamaxing.EndpointChatCompletions, llamaxing.InstanceDescriptor{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.URL != "http://localhost:11434/v1/chat/completions" {
		t.Errorf("url = %q", req.URL)
	}
	if _, ok := req.Header["Authorization"]; ok {
		t.Error("expected no Authorization header when apiKey is empty")
	}
}

func TestOllama_Build_CustomBaseURLAndAuth(t *testing.T) {
	t.Parallel()
	p := Ollama{}
	req, err := p.Build(llamaxing.EndpointEmbeddings, llamaxing.InstanceDescriptor{
		BaseURL: "http://gpu-box:11434/",
		APIKey:  "tok",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.URL != "http://gpu-box:11434/v1/embeddings" {
		t.Errorf("url = %q", req.URL)
	}
	if req.Header["Authorization"] != "Bearer tok" {
		t.Errorf("authorization = %q", req.Header["Authorization"])
	}
}

func TestRegistry_RegisterGetList(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register("openai", OpenAI{})
	r.Register("azure", Azure{})

	p, err := r.Get("openai")
	if err != nil || p.Name() != "openai" {
		t.Fatalf("Get(openai) = %v, %v", p, err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for unregistered provider")
	}
	if got := r.List(); len(got) != 2 || got[0] != "azure" || got[1] != "openai" {
		t.Errorf("List() = %v", got)
	}
}
