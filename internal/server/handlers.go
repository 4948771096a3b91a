package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// maxRequestBody caps the inbound request body (4 MB), matching the
// teacher's limit for the same reason: an LLM request body (messages,
// prompts, base64 image payloads) can be large but is never unbounded.
const maxRequestBody = 4 << 20

// readRequestBody reads the full request body, enforcing maxRequestBody.
// The raw bytes are needed twice downstream: parsed into a map for
// dispatch (to read "model" and "stream") and passed unmodified to the
// relay, which forwards them as-is unless observation_metadata has to be
// stripped (spec §4.E).
func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Input not valid JSON")
		return nil, false
	}
	return data, true
}

// handleEndpoint returns the handler for one of the four proxied
// operations: decode just enough of the body to dispatch, then hand the
// raw bytes to the relay for unary or streaming forwarding (spec §4.F-H).
func (s *server) handleEndpoint(endpoint llamaxing.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := readRequestBody(w, r)
		if !ok {
			return
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Input not valid JSON")
			return
		}

		upstream, err := s.deps.Dispatcher.Dispatch(endpoint, body)
		if err != nil {
			s.writeDispatchError(w, err)
			return
		}

		identity := llamaxing.IdentityFromContext(r.Context())
		ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
		defer cancel()

		streaming, _ := body["stream"].(bool)
		if streaming {
			err = s.deps.Relay.DoStream(ctx, w, endpoint, upstream, raw, identity)
		} else {
			err = s.deps.Relay.DoUnary(ctx, w, endpoint, upstream, raw, identity)
		}
		if err != nil {
			s.writeRelayError(w, r, endpoint, err)
		}
	}
}

type modelEntry struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	Object       string   `json:"object"`
	ProxiedBy    string   `json:"proxied_by"`
}

// handleListModels renders the registry as the OpenAI-shaped list response
// required by spec §6 and §8 S3.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.deps.Dispatcher.Models()
	data := make([]modelEntry, len(models))
	for i, m := range models {
		caps := make([]string, 0, len(m.Capabilities))
		for c := range m.Capabilities {
			caps = append(caps, string(c))
		}
		sort.Strings(caps)
		data[i] = modelEntry{
			ID:           m.ID,
			Capabilities: caps,
			Object:       "model",
			ProxiedBy:    s.deps.AppName,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}
