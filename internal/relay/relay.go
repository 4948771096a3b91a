package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	llamaxing "github.com/johannestang/llamaxing/internal"
	"github.com/johannestang/llamaxing/internal/logsink"
	"github.com/johannestang/llamaxing/internal/observability"
	"github.com/johannestang/llamaxing/internal/provider"
	"github.com/johannestang/llamaxing/internal/tokencount"
)

// Relay issues the upstream call for a dispatched request and relays the
// response to the downstream client, in both unary and streaming modes
// (spec §4.F, §4.G). It owns no provider- or tenant-specific state; all of
// that arrives per call as arguments to DoUnary and DoStream.
type Relay struct {
	client  *http.Client
	logSink logsink.Sink
	obs     observability.Sink
	counter tokencount.Counter
	debug   bool
}

// New returns a Relay posting through client and emitting completed calls
// to logSink and obs. debug enables the embeddings-vector debug log line
// (spec §4.F's third bullet, `debug_level` config field) -- it never
// affects what is persisted to logSink or obs, only an ephemeral
// process-log copy.
func New(client *http.Client, logSink logsink.Sink, obs observability.Sink, counter tokencount.Counter, debug bool) *Relay {
	return &Relay{client: client, logSink: logSink, obs: obs, counter: counter, debug: debug}
}

// stripObservationMetadata decodes rawBody, extracts and removes the
// out-of-band "observation_metadata" field (spec §4.E), and returns the
// body to forward upstream plus the extracted metadata (nil if absent).
// Without that field rawBody is returned unchanged; with it, the body is
// re-encoded without the field.
func stripObservationMetadata(rawBody []byte) (forward []byte, metadata map[string]any, err error) {
	var decoded map[string]any
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, nil, fmt.Errorf("relay: decode request body: %w", err)
	}
	raw, ok := decoded["observation_metadata"]
	if !ok {
		return rawBody, nil, nil
	}
	metadata, _ = raw.(map[string]any)
	delete(decoded, "observation_metadata")
	forward, err = json.Marshal(decoded)
	if err != nil {
		return nil, nil, fmt.Errorf("relay: re-encode request body: %w", err)
	}
	return forward, metadata, nil
}

// estimatePromptTokens precomputes prompt_tokens before a streaming
// request is sent, per spec §4.G. A counting failure (unparseable body,
// unexpected shape, nil counter) must not fail the request -- it yields 0,
// which callers treat as "absent".
func (r *Relay) estimatePromptTokens(endpoint llamaxing.Endpoint, forward []byte) int {
	if r.counter == nil {
		return 0
	}
	var decoded map[string]any
	if err := json.Unmarshal(forward, &decoded); err != nil {
		return 0
	}
	model, _ := decoded["model"].(string)

	switch endpoint {
	case llamaxing.EndpointChatCompletions:
		messages, _ := decoded["messages"].([]any)
		return r.counter.EstimateChatTokens(model, messages)
	case llamaxing.EndpointCompletions:
		prompt, _ := decoded["prompt"].(string)
		return r.counter.EstimateTextTokens(model, prompt)
	default:
		return 0
	}
}

func (r *Relay) newUpstreamRequest(ctx context.Context, upstream llamaxing.UpstreamRequest, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstream.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("relay: build upstream request: %w", err)
	}
	for k, v := range upstream.Header {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DoUnary issues a single POST, waits for the full JSON response, and
// copies it to w. Background log/observability emission is scheduled
// after the response has been sent.
func (r *Relay) DoUnary(ctx context.Context, w http.ResponseWriter, endpoint llamaxing.Endpoint, upstream llamaxing.UpstreamRequest, rawBody []byte, identity *llamaxing.Identity) error {
	start := time.Now()
	forward, metadata, err := stripObservationMetadata(rawBody)
	if err != nil {
		return err
	}

	req, err := r.newUpstreamRequest(ctx, upstream, forward)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("relay: read upstream response: %w", err)
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
	end := time.Now()

	var requestMap, responseMap map[string]any
	json.Unmarshal(forward, &requestMap)
	json.Unmarshal(body, &responseMap)

	go r.emit(endpoint, metadata, requestMap, responseMap, identity, start, end, nil)
	return nil
}

// DoStream issues the upstream call in streaming mode and relays raw
// bytes to w chunk-for-chunk while simultaneously buffering a copy for
// reassembly. Two cooperating tasks run under a single cancellation
// scope: the chunk pump and a disconnect watcher; whichever finishes
// first cancels the scope, terminating the other (spec §4.F's
// "concurrency contract").
//
// Only errors that occur before the response headers are written (request
// build, client.Do) are returned to the caller. Once w.WriteHeader has
// fired, the response has already started -- a disconnected client or a
// broken pump can no longer be reported via a rewritten status/body
// without corrupting the bytes already flushed, so those failures are
// logged here and DoStream returns nil (spec §7's "any failure ... does
// not affect the response").
func (r *Relay) DoStream(ctx context.Context, w http.ResponseWriter, endpoint llamaxing.Endpoint, upstream llamaxing.UpstreamRequest, rawBody []byte, identity *llamaxing.Identity) error {
	start := time.Now()
	forward, metadata, err := stripObservationMetadata(rawBody)
	if err != nil {
		return err
	}
	promptTokens := r.estimatePromptTokens(endpoint, forward)

	scopeCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := r.newUpstreamRequest(scopeCtx, upstream, forward)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	completionStart := time.Now()
	flusher, _ := w.(http.Flusher)

	var buf bytes.Buffer
	g := &errgroup.Group{}

	g.Go(func() error {
		defer cancel()
		return pumpChunks(w, flusher, resp.Body, &buf)
	})
	g.Go(func() error {
		defer cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scopeCtx.Done():
			return nil
		}
	})
	if pumpErr := g.Wait(); pumpErr != nil {
		slog.Warn("relay: stream pump ended early", "endpoint", endpoint, "error", pumpErr)
	}
	end := time.Now()

	merged, err := Reassemble(buf.Bytes(), endpoint.ObjectType())
	if err != nil {
		slog.Warn("relay: stream reassembly failed", "endpoint", endpoint, "error", err)
		return nil
	}
	if usage, ok := merged["usage"].(map[string]any); ok && promptTokens > 0 {
		completionTokens, _ := usage["completion_tokens"].(int)
		usage["prompt_tokens"] = promptTokens
		usage["total_tokens"] = completionTokens + promptTokens
	}

	var requestMap map[string]any
	json.Unmarshal(forward, &requestMap)

	go r.emit(endpoint, metadata, requestMap, merged, identity, start, end, &completionStart)
	return nil
}

// pumpChunks relays upstream bytes to the downstream client while
// simultaneously buffering a copy into buf for post-stream reassembly.
func pumpChunks(w http.ResponseWriter, flusher http.Flusher, upstream io.Reader, buf *bytes.Buffer) error {
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := upstream.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if _, writeErr := w.Write(chunk[:n]); writeErr != nil {
				return fmt.Errorf("relay: write downstream chunk: %w", writeErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// emit trims the request/response for logging, then invokes the logging
// and observability sinks. Runs on a background goroutine after the
// response has already been written, matching spec §4.F/§4.G's
// "schedules background tasks" requirement.
func (r *Relay) emit(endpoint llamaxing.Endpoint, metadata, requestMap, responseMap map[string]any, identity *llamaxing.Identity, start, end time.Time, completionStart *time.Time) {
	trimmedRequest, _ := Trim(requestMap).(map[string]any)
	trimmedResponse, _ := Trim(responseMap).(map[string]any)

	if r.debug {
		debugResponse, _ := TrimEmbeddings(trimmedResponse).(map[string]any)
		slog.Debug("relay: response", "endpoint", endpoint, "response", debugResponse)
	}

	if r.logSink != nil {
		reqBytes, _ := json.Marshal(trimmedRequest)
		respBytes, _ := json.Marshal(trimmedResponse)
		callerMeta := map[string]any{"caller": identity}
		r.logSink.Log(endpoint, callerMeta, reqBytes, respBytes)
	}
	if r.obs != nil {
		r.obs.Emit(context.Background(), observability.Call{
			Identity:        identity,
			Endpoint:        endpoint,
			Metadata:        metadata,
			Request:         trimmedRequest,
			Response:        trimmedResponse,
			Start:           start,
			End:             end,
			CompletionStart: completionStart,
		})
	}
}

func copyHeaders(dst http.Header, src http.Header) {
	for k, vals := range src {
		if _, hop := provider.HopByHopHeaders[k]; hop {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}
