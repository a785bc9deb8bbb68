package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const schemaVersion = 1

// Entry is one distinct failure in the index.
type Entry struct {
	ID       string
	Target   string
	Kind     string
	Location string
	Message  string

	// Input is the smallest reproducer recorded for this failure.
	Input []byte

	// Path is where the reproducer was written, if anywhere.
	Path string

	Seed uint64

	// Count is how many times the failure was recorded.
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Index is a SQLite database of failures seen across runs.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index at path.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	if path == "" {
		return nil, errors.New("open index: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err == nil {
		err = migrate(ctx, db)
	}

	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Index{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version == schemaVersion {
		return nil
	}

	if version != 0 {
		return fmt.Errorf("index schema version %d, want %d", version, schemaVersion)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS failures (
			id         TEXT PRIMARY KEY,
			target     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			location   TEXT NOT NULL,
			message    TEXT NOT NULL,
			input      BLOB NOT NULL,
			path       TEXT NOT NULL,
			seed       INTEGER NOT NULL,
			count      INTEGER NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen  INTEGER NOT NULL,
			UNIQUE (target, kind, location)
		)`,
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}

	for _, stmt := range statements {
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// Record stores e. It reports true if the failure was not known before.
// For a known failure the count and last-seen time are bumped, and the
// reproducer is replaced when e.Input is smaller. The upsert is a single
// statement, so concurrent writers of the same failure only bump the count.
func (x *Index) Record(ctx context.Context, e Entry) (bool, error) {
	now := time.Now()
	if !e.LastSeen.IsZero() {
		now = e.LastSeen
	}

	// Matches shrink.Less: shorter first, then bytewise. SQLite compares
	// equal-length blobs with memcmp.
	const smaller = `(length(excluded.input) < length(input) OR
		(length(excluded.input) = length(input) AND excluded.input < input))`

	var count int

	err := x.db.QueryRowContext(ctx, `
		INSERT INTO failures (id, target, kind, location, message, input, path, seed, count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (target, kind, location) DO UPDATE SET
			count     = count + 1,
			last_seen = excluded.last_seen,
			message   = CASE WHEN `+smaller+` THEN excluded.message ELSE message END,
			path      = CASE WHEN `+smaller+` THEN excluded.path ELSE path END,
			seed      = CASE WHEN `+smaller+` THEN excluded.seed ELSE seed END,
			input     = CASE WHEN `+smaller+` THEN excluded.input ELSE input END
		RETURNING count`,
		uuid.NewString(), e.Target, e.Kind, e.Location, e.Message, nonNil(e.Input), e.Path,
		int64(e.Seed), now.UnixNano(), now.UnixNano()).Scan(&count) //nolint:gosec // seed is stored bit-for-bit
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}

	return count == 1, nil
}

// List returns the failures of target, or of all targets when target is
// empty, most recently seen first.
func (x *Index) List(ctx context.Context, target string) ([]Entry, error) {
	query := `SELECT id, target, kind, location, message, input, path, seed, count, first_seen, last_seen
		FROM failures`

	var args []any

	if target != "" {
		query += ` WHERE target = ?`

		args = append(args, target)
	}

	query += ` ORDER BY last_seen DESC, target, id`

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var entries []Entry

	for rows.Next() {
		var (
			e           Entry
			seed        int64
			first, last int64
		)

		err = rows.Scan(&e.ID, &e.Target, &e.Kind, &e.Location, &e.Message, &e.Input, &e.Path,
			&seed, &e.Count, &first, &last)
		if err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}

		e.Seed = uint64(seed) //nolint:gosec // stored bit-for-bit
		e.FirstSeen = time.Unix(0, first)
		e.LastSeen = time.Unix(0, last)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
