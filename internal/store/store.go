// Package store opens read-only connections to an Envelope Index database
// and answers introspection queries against the store's own catalog.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Connection-level errors. Each is fatal to the single call that hit it and
// is surfaced to the caller with a remediation hint attached by the wrapper.
var (
	ErrStoreNotFound   = errors.New("envelope database not found")
	ErrStorePermission = errors.New("envelope database not readable")
	ErrStoreLocked     = errors.New("envelope database locked")
	ErrUnknownTable    = errors.New("no such table")
)

const roParams = "?mode=ro&_busy_timeout=5000"

// isSQLiteError checks if err is a sqlite3.Error with a message containing
// substr. Type-asserting via errors.As is more robust than matching on the
// flattened err.Error() text. Handles both value and pointer forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Provider opens per-call read-only handles to the database at a fixed path.
// Handles are never pooled or shared between calls; the live mail client may
// hold its own connection concurrently, which read-only mode tolerates.
type Provider struct {
	path string
}

// NewProvider creates a provider for the Envelope Index at path.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Path returns the configured database path.
func (p *Provider) Path() string {
	return p.path
}

// Acquire opens a fresh read-only connection and verifies it is usable.
// The caller owns the returned Conn and must Close it on every path.
func (p *Provider) Acquire(ctx context.Context) (*Conn, error) {
	if _, err := os.Stat(p.path); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w at %s; check the mail_dir and mail_version configuration", ErrStoreNotFound, p.path)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("%w at %s; check file permissions (on macOS grant Full Disk Access)", ErrStorePermission, p.path)
		default:
			return nil, fmt.Errorf("stat %s: %w", p.path, err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+p.path+roParams)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.path, err)
	}
	// One handle per call, released as a unit on Close.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, p.classify(err)
	}

	// Ping can succeed on files that are not SQLite databases; force a read.
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		return nil, p.classify(err)
	}

	return &Conn{db: db}, nil
}

// classify maps driver errors onto the connection error taxonomy.
func (p *Provider) classify(err error) error {
	switch {
	case isSQLiteError(err, "database is locked"):
		return fmt.Errorf("%w at %s; the mail client may hold an exclusive lock, retry shortly", ErrStoreLocked, p.path)
	case isSQLiteError(err, "unable to open database"):
		return fmt.Errorf("%w at %s; check file permissions (on macOS grant Full Disk Access)", ErrStorePermission, p.path)
	case isSQLiteError(err, "not a database"):
		return fmt.Errorf("%w: %s is not an SQLite database; check the mail_version configuration", ErrStoreNotFound, p.path)
	default:
		return fmt.Errorf("open %s: %w", p.path, err)
	}
}

// Conn is a single-call database handle. It is not safe for concurrent use
// and must not outlive the operation that acquired it.
type Conn struct {
	db *sql.DB
}

// DB exposes the underlying handle for query execution.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// Close releases the handle. Safe to call exactly once, from a defer.
func (c *Conn) Close() error {
	return c.db.Close()
}
