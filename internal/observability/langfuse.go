package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// LangfuseSink posts a trace+generation pair per call to a Langfuse-
// compatible ingestion endpoint. All tenants share one http.Client; the
// per-identity tenantClient (the tenant's key pair) is built lazily and
// cached indefinitely -- the tenant population is small and
// long-lived, so no TTL or eviction is needed (unlike the API-key lookup
// cache in internal/auth, which sees unbounded per-request churn).
type LangfuseSink struct {
	host   string
	client *http.Client

	clients sync.Map // identity ID -> *tenantClient
}

type tenantClient struct {
	publicKey string
	secretKey string
}

// NewLangfuseSink returns a Sink posting to the ingestion API rooted at
// host (e.g. "https://cloud.langfuse.com").
func NewLangfuseSink(host string) *LangfuseSink {
	return &LangfuseSink{
		host:   host,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *LangfuseSink) tenant(id *llamaxing.Identity) *tenantClient {
	v, _ := s.clients.LoadOrStore(id.ID, &tenantClient{
		publicKey: id.Observability.PublicKey,
		secretKey: id.Observability.SecretKey,
	})
	return v.(*tenantClient)
}

// Emit builds and posts a trace+generation ingestion batch. Identities
// without observability credentials are silently skipped, matching the
// source's "if identity.observability is not None" guard. Failures are
// logged and never propagated -- this runs after the response has already
// been sent to the caller.
func (s *LangfuseSink) Emit(ctx context.Context, call Call) {
	if call.Identity == nil || call.Identity.Observability == nil {
		return
	}
	tenant := s.tenant(call.Identity)

	metadata := call.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	pop := func(key string) any {
		v, ok := metadata[key]
		if ok {
			delete(metadata, key)
		}
		return v
	}

	traceID, _ := pop("trace_id").(string)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	generationID, _ := pop("generation_id").(string)
	if generationID == "" {
		generationID = uuid.NewString()
	}
	traceName, _ := pop("trace_name").(string)
	name, _ := pop("name").(string)
	statusMessage, _ := pop("status_message").(string)
	tags := pop("trace_tags")
	traceMetadata := pop("trace_metadata")

	input, output, usage := observationIO(call)

	batch := map[string]any{
		"batch": []map[string]any{
			{
				"id":        uuid.NewString(),
				"type":      "trace-create",
				"timestamp": call.Start.UTC().Format(time.RFC3339Nano),
				"body": map[string]any{
					"id":       traceID,
					"name":     nilIfEmpty(traceName),
					"tags":     tags,
					"metadata": traceMetadata,
					"userId":   call.Identity.ID,
				},
			},
			{
				"id":        uuid.NewString(),
				"type":      "generation-create",
				"timestamp": call.Start.UTC().Format(time.RFC3339Nano),
				"body": map[string]any{
					"id":                  generationID,
					"traceId":             traceID,
					"startTime":           call.Start.UTC().Format(time.RFC3339Nano),
					"endTime":             call.End.UTC().Format(time.RFC3339Nano),
					"completionStartTime": completionStartTime(call.CompletionStart),
					"model":               call.Request["model"],
					"modelParameters":     modelParameters(call.Endpoint, call.Request),
					"input":               input,
					"output":              output,
					"usage":               usage,
					"name":                nilIfEmpty(name),
					"statusMessage":       nilIfEmpty(statusMessage),
					"metadata":            metadata,
				},
			},
		},
	}

	if err := s.post(ctx, tenant, batch); err != nil {
		slog.Warn("observability: emit failed", "identity", call.Identity.ID, "error", err)
	}
}

func (s *LangfuseSink) post(ctx context.Context, tenant *tenantClient, batch map[string]any) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/public/ingestion", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(tenant.publicKey, tenant.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingestion returned status %d", resp.StatusCode)
	}
	return nil
}

// Shutdown is a no-op: each call is posted synchronously at Emit time, so
// there is no background state to flush.
func (s *LangfuseSink) Shutdown(context.Context) error { return nil }

// observationIO extracts the per-endpoint input/output/usage triple the
// source passes to trace.generation(...).
func observationIO(call Call) (input, output, usage any) {
	switch call.Endpoint {
	case llamaxing.EndpointChatCompletions:
		input = call.Request["messages"]
		output = firstChoiceMessage(call.Response)
		usage = call.Response["usage"]
	case llamaxing.EndpointCompletions:
		input = call.Request["messages"]
		output = firstChoiceMessage(call.Response)
		usage = call.Response["usage"]
	case llamaxing.EndpointEmbeddings:
		input = call.Request["input"]
		usage = call.Response["usage"]
	case llamaxing.EndpointImagesGeneration:
		input = call.Request["prompt"]
		output = call.Response["data"]
		count := 0
		if data, ok := call.Response["data"].([]any); ok {
			count = len(data)
		}
		usage = map[string]any{"total": count, "unit": "IMAGES"}
	}
	return input, output, usage
}

func firstChoiceMessage(response map[string]any) any {
	choices, ok := response["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return nil
	}
	return choice["message"]
}

func completionStartTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
