package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on jobs.deleted_at for orphan lookups
const currentSchemaVersion = 1

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a job id has never been recorded.
var ErrNotFound = errors.New("job not recorded")

// Clock supplies wall time for the ledger columns.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Entry is one recorded job.
type Entry struct {
	ID           string
	Seq          int64
	DeploymentID string
	State        string
	SubmittedAt  time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Deleted reports whether the job was deleted on the remote side.
func (e Entry) Deleted() bool { return e.DeletedAt != nil }

// Journal is a SQLite-backed job ledger. It satisfies job.Recorder.
type Journal struct {
	db    *sql.DB
	clock Clock
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(j *Journal) { j.clock = c }
}

// Open creates or opens the ledger at path.
// It is idempotent - safe to call on an existing file.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db, clock: systemClock{}}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) now() string {
	return j.clock.Now().UTC().Format(timeLayout)
}

// RecordSubmitted inserts a queued job.
// Recording the same id twice is a no-op.
func (j *Journal) RecordSubmitted(ctx context.Context, id, deploymentID string) error {
	now := j.now()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO jobs (id, seq, deployment_id, state, submitted_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM jobs), ?, 'queued', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, deploymentID, now, now)
	if err != nil {
		return fmt.Errorf("record submitted %s: %w", id, err)
	}
	return nil
}

// RecordState stores the last observed state of a job.
func (j *Journal) RecordState(ctx context.Context, id, state string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?
	`, state, j.now(), id)
	if err != nil {
		return fmt.Errorf("record state %s: %w", id, err)
	}
	return requireRow(res, id)
}

// RecordDeleted marks a job as deleted. The first deletion time wins.
func (j *Journal) RecordDeleted(ctx context.Context, id string) error {
	now := j.now()
	res, err := j.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'deleted', updated_at = ?, deleted_at = COALESCE(deleted_at, ?)
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("record deleted %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns the entry for id, or ErrNotFound.
func (j *Journal) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, selectEntries+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", id, err)
	}
	return e, nil
}

// List returns every recorded job in submission order.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, selectEntries+` ORDER BY seq ASC, id ASC COLLATE BINARY`)
}

// Orphans returns the jobs that were never deleted, in submission order.
func (j *Journal) Orphans(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, selectEntries+` WHERE deleted_at IS NULL ORDER BY seq ASC, id ASC COLLATE BINARY`)
}

// Prune removes deleted entries recorded before cutoff and returns how
// many rows went away. Orphans are always kept.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE deleted_at IS NOT NULL AND deleted_at < ?
	`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

const selectEntries = `
	SELECT id, seq, deployment_id, state, submitted_at, updated_at, deleted_at
	FROM jobs`

func (j *Journal) query(ctx context.Context, q string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                  Entry
		submitted, updated string
		deleted            sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Seq, &e.DeploymentID, &e.State, &submitted, &updated, &deleted); err != nil {
		return Entry{}, err
	}
	var err error
	if e.SubmittedAt, err = time.Parse(timeLayout, submitted); err != nil {
		return Entry{}, fmt.Errorf("submitted_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return Entry{}, fmt.Errorf("updated_at: %w", err)
	}
	if deleted.Valid {
		t, err := time.Parse(timeLayout, deleted.String)
		if err != nil {
			return Entry{}, fmt.Errorf("deleted_at: %w", err)
		}
		e.DeletedAt = &t
	}
	return e, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_deleted_at ON jobs(deleted_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (j *Journal) verifyPragma(name, expected string) error {
	var value string
	if err := j.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
