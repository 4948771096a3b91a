package provider

import (
	"fmt"
	"strings"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama builds upstream requests for a local or self-hosted Ollama
// instance via its OpenAI-compatible API surface. Not part of the
// original distillation -- a supplemented provider tag grounded on the
// teacher's internal/provider/ollama/client.go (spec expansion,
// SPEC_FULL.md's SUPPLEMENTED FEATURES).
type Ollama struct{}

func (Ollama) Name() string { return "ollama" }

func (Ollama) Build(endpoint llamaxing.Endpoint, instance llamaxing.InstanceDescriptor) (llamaxing.UpstreamRequest, error) {
	path, err := openAIPath(endpoint) // Ollama's OpenAI-compatible API shares the same per-endpoint paths.
	if err != nil {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("provider ollama: %w", err)
	}
	base := defaultOllamaBaseURL
	if instance.BaseURL != "" {
		base = strings.TrimRight(instance.BaseURL, "/")
	}

	header := map[string]string{"Content-Type": "application/json"}
	if instance.APIKey != "" {
		header["Authorization"] = "Bearer " + instance.APIKey
	}

	return llamaxing.UpstreamRequest{URL: base + "/v1" + path, Header: header}, nil
}
