package logsink

import (
	"context"
	"encoding/json"
	"testing"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := t.TempDir() + "/test.db"
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_InsertCall(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := llamaxing.LoggingRecord{
		Endpoint: llamaxing.EndpointChatCompletions,
		Metadata: map[string]any{"trace_id": "t-1"},
		Request:  json.RawMessage(`{"model":"gpt-4o"}`),
		Response: json.RawMessage(`{"id":"resp-1"}`),
	}
	if err := s.InsertCall(ctx, rec); err != nil {
		t.Fatalf("InsertCall: %v", err)
	}

	var count int
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_calls`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	var endpoint string
	if err := s.read.QueryRowContext(ctx, `SELECT endpoint FROM api_calls`).Scan(&endpoint); err != nil {
		t.Fatal(err)
	}
	if endpoint != "chat_completions" {
		t.Errorf("endpoint = %q", endpoint)
	}
}

func TestSQLiteStore_InsertCall_NilMetadata(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := llamaxing.LoggingRecord{
		Endpoint: llamaxing.EndpointCompletions,
		Request:  json.RawMessage(`{}`),
		Response: json.RawMessage(`{}`),
	}
	if err := s.InsertCall(ctx, rec); err != nil {
		t.Fatalf("InsertCall: %v", err)
	}
}

func TestAsyncSink_PersistsThroughStore(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	sink := NewAsyncSink(s)

	sink.Log(llamaxing.EndpointEmbeddings, nil, json.RawMessage(`{}`), json.RawMessage(`{}`))

	if err := sink.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	var count int
	if err := s.read.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM api_calls`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
