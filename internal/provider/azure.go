package provider

import (
	"fmt"
	"net/url"
	"strings"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// Azure builds upstream requests for Azure OpenAI deployments.
type Azure struct{}

func (Azure) Name() string { return "azure" }

func (Azure) Build(endpoint llamaxing.Endpoint, instance llamaxing.InstanceDescriptor) (llamaxing.UpstreamRequest, error) {
	if instance.AzureEndpoint == "" || instance.AzureDeployment == "" || instance.AzureAPIVersion == "" || instance.AzureAPIKey == "" {
		return llamaxing.UpstreamRequest{}, fmt.Errorf("provider azure: incomplete instance descriptor")
	}
	opPath, err := azureOpPath(endpoint)
	if err != nil {
		return llamaxing.UpstreamRequest{}, err
	}

	base := strings.TrimRight(instance.AzureEndpoint, "/")
	path := fmt.Sprintf("/openai/deployments/%s%s", instance.AzureDeployment, opPath)
	u := base + path + "?api-version=" + url.QueryEscape(instance.AzureAPIVersion)

	header := map[string]string{
		"api-key":      instance.AzureAPIKey,
		"Content-Type": "application/json",
	}
	return llamaxing.UpstreamRequest{URL: u, Header: header}, nil
}

// azureOpPath mirrors the vendor's canonical per-deployment operation
// paths. Unlike the images_generations path this gateway was distilled
// from, the path here is a clean single "/images/generations" segment --
// the source's double-slash artifact (an accidental trailing slash on the
// preceding f-string) is not reproduced; see SPEC_FULL.md's supplemented
// features note.
func azureOpPath(endpoint llamaxing.Endpoint) (string, error) {
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
		return "", fmt.Errorf("provider azure: unsupported endpoint %q", endpoint)
	}
}
