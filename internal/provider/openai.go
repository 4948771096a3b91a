package provider

import (
	"fmt"
	"strings"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI builds upstream requests for the OpenAI API. It never sees the
// request or response body -- only URL and header construction, per
// spec §4.E.
type OpenAI struct{}

func (OpenAI) Name() string { return "openai" }

func (OpenAI) Build(endpoint llamaxing.Endpoint, instance llamaxing.InstanceDescriptor) (llamaxing.UpstreamRequest, error) {
	if instance.APIKey == "" {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("provider openai: missing openai_api_key")
	}
	path, err := openAIPath(endpoint)
	if err != nil {
		return llamaxing.UpstreamRequest{}, err
	}
	base := defaultOpenAIBaseURL
	if instance.BaseURL != "" {
		base = strings.TrimRight(instance.BaseURL, "/")
	}

	header := map[string]string{
		"Authorization": "Bearer " + instance.APIKey,
		"Content-Type":  "application/json",
	}
	if instance.Organization != "" {
		header["OpenAI-Organization"] = instance.Organization
	}

	return llamaxing.UpstreamRequest{URL: base + path, Header: header}, nil
}

func openAIPath(endpoint llamaxing.Endpoint) (string, error) {
	switch endpoint {
	case llamaxing.EndpointChatCompletions:
		return "/chat/completions", nil
	case llamaxing.EndpointCompletions:
		return "/completions", nil
	case llamaxing.EndpointEmbeddings:
		return "/embeddings", nil
	case llamaxing.EndpointImagesGeneration:
		return "/images/generations", nil
	default:
		return "", fmt.Errorf("provider openai: unsupported endpoint %q", endpoint)
	}
}
