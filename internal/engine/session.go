package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
)

// Session owns one DuckDB database handle plus the per-run state scoped to
// it: bound input views, scratch tables and registered enum types. A
// Session is not safe for concurrent use; runs execute sequentially on a
// single connection so temp objects stay visible.
type Session struct {
	db *sql.DB
	// conn pins one connection for the session's lifetime. DuckDB temp
	// views, temp tables and prepared enum types are connection-scoped.
	conn *sql.Conn
	// runID stamps log lines so interleaved runs can be told apart.
	runID string
}

// Options configures Open.
type Options struct {
	// Path is the database file. Empty opens an in-memory database, which
	// is what tests and debug sessions use.
	Path string

	// Settings holds DuckDB configuration applied at open, e.g.
	// "threads" or "memory_limit". Keys are SET names.
	Settings map[string]string
}

// Open opens a DuckDB database and pins a connection for the session.
func Open(ctx context.Context, opts Options) (*Session, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single pinned connection: everything the engine creates (temp
	// views, temp tables, enum types) must stay visible for the whole
	// session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	for key, value := range opts.Settings {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", key, value)); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("apply setting %s: %w", key, err)
		}
	}

	s := &Session{
		db:    db,
		conn:  conn,
		runID: uuid.Must(uuid.NewV7()).String(),
	}
	slog.Debug("session opened", "run_id", s.runID, "path", displayPath(opts.Path))
	return s, nil
}

// MustOpenMemory opens an in-memory session, panicking on failure. Test
// and example helper.
func MustOpenMemory(ctx context.Context) *Session {
	s, err := Open(ctx, Options{})
	if err != nil {
		panic(err)
	}
	return s
}

// Close releases the pinned connection and the database handle.
func (s *Session) Close() error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunID identifies this session in logs.
func (s *Session) RunID() string { return s.runID }

// Exec runs a statement on the session's pinned connection.
func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.conn.ExecContext(ctx, query, args...)
	return err
}

// Query runs a query on the session's pinned connection. Callers are
// responsible for closing the returned rows.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}
