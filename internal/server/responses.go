package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

// jsonCT is a pre-allocated header value slice. Direct map assignment
// avoids the []string{v} alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

// errorBody matches the shape the source this gateway was distilled from
// returns for every HTTPException: a bare "detail" string, not the nested
// OpenAI error.{message,type} envelope (spec §7, §8 S1).
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeDispatchError maps a dispatch.Dispatcher.Dispatch error to the exact
// status/detail pair raised by original_source/llamaxing/llm/dispatcher.py.
func (s *server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llamaxing.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, llamaxing.ErrCapabilityGate):
		writeError(w, http.StatusMethodNotAllowed, "Model not valid for this endpoint")
	case errors.Is(err, llamaxing.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "No model specified in request")
	default:
		slog.Error("dispatch error", "error", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// writeRelayError maps a relay.Relay.DoUnary/DoStream error to a status
// code. Only reachable before the response has started (a client.Do
// failure or a request-build failure); once headers are written the relay
// forwards upstream bytes best-effort and failures are process-log-only
// (spec §7's "any failure ... does not affect the response").
func (s *server) writeRelayError(w http.ResponseWriter, r *http.Request, endpoint llamaxing.Endpoint, err error) {
	status := http.StatusInternalServerError
	if isTimeout(err) {
		status = http.StatusRequestTimeout
	}
	slog.LogAttrs(r.Context(), slog.LevelError, "relay error",
		slog.String("endpoint", string(endpoint)),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	if s.deps.Metrics != nil {
		s.deps.Metrics.UpstreamErrors.WithLabelValues(string(endpoint), statusText[status]).Inc()
	}
	writeError(w, status, http.StatusText(status))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
