// Package logsink implements the Logging sink (spec §4.C): asynchronous,
// best-effort persistence of completed API calls. Emission never blocks
// request completion; failures are caught and logged, never propagated.
package logsink

import (
	"context"
	"encoding/json"
	"log/slog"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

const chanSize = 1000

// Sink records completed API calls out-of-band.
type Sink interface {
	// Log enqueues a record for asynchronous persistence. It never blocks
	// and never returns an error to the caller -- failures are logged
	// internally.
	Log(endpoint llamaxing.Endpoint, metadata map[string]any, request, response json.RawMessage)
	// Shutdown flushes any buffered records and releases resources.
	Shutdown(ctx context.Context) error
}

// Store is the persistence contract a concrete Sink variant writes through.
type Store interface {
	InsertCall(ctx context.Context, rec llamaxing.LoggingRecord) error
}

// AsyncSink buffers records on a channel and persists them one at a time on
// a background goroutine, matching spec §4.C's "must not block" and
// "caught and swallowed with a warning" requirements. A full channel drops
// the record (with a warning) rather than blocking the caller.
type AsyncSink struct {
	store Store
	ch    chan llamaxing.LoggingRecord
	done  chan struct{}
}

// NewAsyncSink starts a background worker persisting records into store.
func NewAsyncSink(store Store) *AsyncSink {
	s := &AsyncSink{
		store: store,
		ch:    make(chan llamaxing.LoggingRecord, chanSize),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.ch {
		if err := s.store.InsertCall(context.Background(), rec); err != nil {
			slog.Warn("logsink: persist failed", "endpoint", rec.Endpoint, "error", err)
		}
	}
}

// Log enqueues a record. Non-blocking: drops with a warning if the
// background worker has fallen behind.
func (s *AsyncSink) Log(endpoint llamaxing.Endpoint, metadata map[string]any, request, response json.RawMessage) {
	rec := llamaxing.LoggingRecord{Endpoint: endpoint, Metadata: metadata, Request: request, Response: response}
	select {
	case s.ch <- rec:
	default:
		slog.Warn("logsink: record dropped, channel full", "endpoint", endpoint)
	}
}

// Shutdown closes the input channel and waits for the background worker to
// drain, or for ctx to expire.
func (s *AsyncSink) Shutdown(ctx context.Context) error {
	close(s.ch)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return nil
}

// NoneSink is a no-op Logging sink variant.
type NoneSink struct{}

func (NoneSink) Log(llamaxing.Endpoint, map[string]any, json.RawMessage, json.RawMessage) {}
func (NoneSink) Shutdown(context.Context) error                                           { return nil }
