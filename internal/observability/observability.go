// Package observability implements the Observability sink (spec §4.D):
// per-tenant emission of a trace + generation to a Langfuse-compatible
// ingestion endpoint, derived from the out-of-band observation_metadata
// extension of a request body plus the completed request/response pair.
package observability

import (
	"context"
	"time"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// Sink emits one trace+generation pair per completed call. Implementations
// must never let emission failures affect the response already sent to the
// caller -- callers invoke Emit after the response has been written.
type Sink interface {
	Emit(ctx context.Context, call Call)
	Shutdown(ctx context.Context) error
}

// Call carries everything a Sink needs to construct a trace/generation.
// Request and Response are the decoded request and response bodies as the
// relay hands them over (trimmed copies; for a stream, the reassembled
// response); Metadata is the caller-supplied observation_metadata object
// (may be nil).
type Call struct {
	Identity        *llamaxing.Identity
	Endpoint        llamaxing.Endpoint
	Metadata        map[string]any
	Request         map[string]any
	Response        map[string]any
	Start           time.Time
	End             time.Time
	CompletionStart *time.Time // first streamed chunk, nil for unary calls
}

// modelParamKeys lists, per endpoint, the request fields forwarded as
// Langfuse "model_parameters". In the embeddings and images lists the
// source joined two adjacent string literals without a comma into one
// concatenated key; here both keys are listed separately, since those are
// the keys a caller actually sends.
var modelParamKeys = map[llamaxing.Endpoint][]string{
	llamaxing.EndpointCompletions: {
		"best_of", "echo", "frequency_penalty", "logprobs", "max_tokens",
		"n", "presence_penalty", "seed", "stop", "stream", "suffix",
		"temperature", "top_p",
	},
	llamaxing.EndpointChatCompletions: {
		"max_tokens", "temperature", "n", "stream", "frequency_penalty",
		"logprobs", "top_logprobs", "presence_penalty", "seed", "stop", "top_p",
	},
	llamaxing.EndpointEmbeddings: {
		"encoding_format", "dimensions",
	},
	llamaxing.EndpointImagesGeneration: {
		"n", "quality", "response_format", "size", "style",
	},
}

// modelParameters extracts the subset of request present in
// modelParamKeys[endpoint], plus response_format.type when nested under
// "response" -- mirroring pydash.get(request, "response.format.type").
func modelParameters(endpoint llamaxing.Endpoint, request map[string]any) map[string]any {
	out := map[string]any{}
	for _, key := range modelParamKeys[endpoint] {
		if v, ok := request[key]; ok && v != nil {
			out[key] = v
		}
	}
	if resp, ok := request["response"].(map[string]any); ok {
		if format, ok := resp["format"].(map[string]any); ok {
			if t, ok := format["type"]; ok && t != nil {
				out["response_format"] = t
			}
		}
	}
	return out
}

// NoneSink is a no-op Observability sink variant.
type NoneSink struct{}

func (NoneSink) Emit(context.Context, Call)     {}
func (NoneSink) Shutdown(context.Context) error { return nil }
