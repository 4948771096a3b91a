package logsink

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	llamaxing "github.com/johannestang/llamaxing/internal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store by persisting records into a single
// "api_calls" table -- the document-collection variant named by spec §4.C.
// Connection shape and migration plumbing follow the same write/read split
// used elsewhere in this codebase for SQLite-backed stores.
type SQLiteStore struct {
	write *sql.DB // single-writer connection
	read  *sql.DB // multi-reader pool
}

// NewSQLiteStore opens a SQLite database at dsn, runs migrations, and
// returns a SQLiteStore.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	write, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("logsink: open write db: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("logsink: open read db: %w", err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	if err := runMigrations(write); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("logsink: migrations: %w", err)
	}

	return &SQLiteStore{write: write, read: read}, nil
}

// runMigrations applies embedded SQL migrations using goose. fs.Sub strips
// the "migrations/" prefix so goose sees files at the FS root.
func runMigrations(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// InsertCall persists a single completed call. Each call gets its own
// row; unlike a usage-rollup store there is no batching requirement here
// since the async sink already serializes writes onto one goroutine.
func (s *SQLiteStore) InsertCall(ctx context.Context, rec llamaxing.LoggingRecord) error {
	id := uuid.Must(uuid.NewV7()).String()
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return fmt.Errorf("logsink: marshal metadata: %w", err)
	}

	_, err = s.write.ExecContext(ctx, `INSERT INTO api_calls
		(id, endpoint, metadata, request, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(rec.Endpoint), metadata, []byte(rec.Request), []byte(rec.Response),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.read.PingContext(ctx)
}

// Close closes both database connections.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
