// Package llamaxing defines the domain types and interfaces shared across
// the gateway. This package has no project imports -- it is the dependency
// root.
package llamaxing

import (
	"context"
	"encoding/json"
)

// --- Endpoint tags ---

// Endpoint identifies one of the four proxied LLM operations. It both
// selects the HTTP route and names the Provider method to invoke.
type Endpoint string

const (
	EndpointChatCompletions  Endpoint = "chat_completions"
	EndpointCompletions      Endpoint = "completions"
	EndpointEmbeddings       Endpoint = "embeddings"
	EndpointImagesGeneration Endpoint = "images_generations"
)

// ObjectType returns the SSE chunk "object" field expected for this
// endpoint's streaming responses, used during reassembly (see
// internal/relay). Only chat and text completions stream.
func (e Endpoint) ObjectType() string {
	switch e {
	case EndpointChatCompletions:
		return "chat.completion.chunk"
	case EndpointCompletions:
		return "text_completion"
	default:
		return ""
	}
}

// RequestPeek is the subset of an inbound request body the gateway itself
// interprets: the model selector, the streaming flag, and the out-of-band
// observation_metadata extension (spec §6). The body is forwarded upstream
// as the client's raw bytes; only when observation_metadata is present is
// it re-encoded, from a generic map with that one field removed. The
// gateway never constructs or re-marshals a full OpenAI request struct,
// which would risk silently dropping fields a client sent.
type RequestPeek struct {
	Model             string          `json:"model"`
	Stream            bool            `json:"stream"`
	ObservationMeta   json.RawMessage `json:"observation_metadata,omitempty"`
}

// Usage represents token usage statistics attached to a completion response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// --- Identity ---

// ObservabilityCreds carries per-tenant Langfuse credentials. Both fields
// are secret and must never appear in an external serialization.
type ObservabilityCreds struct {
	PublicKey string
	SecretKey string
}

// Identity is the authenticated caller attached to a request's context.
// Constructed by an auth.Handler; immutable thereafter; dropped when the
// request completes.
type Identity struct {
	ID            string
	Name          string
	Info          map[string]any
	AuthKey       string               // sealed: never serialized externally
	Observability *ObservabilityCreds  // sealed: never serialized externally
}

// identityView is the external serialization shape: only id/name/info.
type identityView struct {
	ID   string         `json:"id"`
	Name string         `json:"name,omitempty"`
	Info map[string]any `json:"info,omitempty"`
}

// MarshalJSON implements json.Marshaler, sealing AuthKey and Observability
// from external serialization regardless of future field additions.
func (id *Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityView{ID: id.ID, Name: id.Name, Info: id.Info})
}

// --- Model registry ---

// ModelDescriptor describes a logical model exposed by the gateway.
type ModelDescriptor struct {
	ID           string
	Capabilities map[Endpoint]struct{}
	Instances    []InstanceDescriptor
	Aliases      []string
}

// HasCapability reports whether the model supports the given endpoint.
func (m *ModelDescriptor) HasCapability(e Endpoint) bool {
	_, ok := m.Capabilities[e]
	return ok
}

// InstanceDescriptor is a concrete upstream deployment of a logical model,
// tagged by provider. Fields not relevant to Provider are left zero.
type InstanceDescriptor struct {
	Provider string // "openai", "azure", "ollama"

	// openai / ollama payload
	APIKey       string
	Organization string // openai only
	BaseURL      string // openai and ollama; openai defaults to the public API when empty

	// azure payload
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string
	AzureAPIKey     string
}

// --- Provider adapter ---

// UpstreamRequest is the result of a Provider adapter resolving an instance:
// the fully-formed upstream URL and headers. The request body is forwarded
// by the relay (see internal/relay) unchanged apart from the removal of
// observation_metadata -- Provider never sees or alters it.
type UpstreamRequest struct {
	URL    string
	Header map[string]string
}

// Provider builds upstream requests for a tagged InstanceDescriptor. It
// never transforms the request or response body: only URL and header
// construction are provider-specific (spec §4.E).
type Provider interface {
	// Name returns the provider tag ("openai", "azure", "ollama").
	Name() string
	// Build returns the upstream URL and headers for the given endpoint and
	// instance. The caller issues the HTTP request with the client-supplied
	// body, minus any observation_metadata field.
	Build(endpoint Endpoint, instance InstanceDescriptor) (UpstreamRequest, error)
}

// --- Logging record ---

// LoggingRecord is the shape persisted by a logsink.Sink (spec §3/§4.C).
type LoggingRecord struct {
	Endpoint Endpoint
	Metadata map[string]any
	Request  json.RawMessage
	Response json.RawMessage
}

// --- Context keys ---

type contextKey int

const (
	ctxKeyIdentity contextKey = iota
	ctxKeyRequestID
)

// IdentityFromContext extracts the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return id
}

// ContextWithIdentity returns a context carrying the given identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// RequestIDFromContext extracts the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
