// ABOUTME: SQLite implementation of the Journal interface using modernc.org/sqlite
// ABOUTME: Provides call journaling with automatic schema creation and idempotent migrations

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Journal interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			call_id        TEXT PRIMARY KEY,
			direction      TEXT NOT NULL,
			service        TEXT NOT NULL,
			operation      TEXT NOT NULL DEFAULT '',
			pattern        TEXT NOT NULL,
			outcome        TEXT NOT NULL,
			correlation_id TEXT,
			error          TEXT,
			duration_ms    INTEGER NOT NULL,
			created_at     TEXT NOT NULL,

			CHECK (direction IN ('inbound', 'outbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at);
		CREATE INDEX IF NOT EXISTS idx_calls_service_outcome ON calls(service, outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check  string
		apply  string
		column string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('calls') WHERE name = 'fault_code'`,
			apply:  `ALTER TABLE calls ADD COLUMN fault_code TEXT`,
			column: "fault_code",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to calls: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "calls")
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// RecordCall appends a call to the journal.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) RecordCall(ctx context.Context, rec *CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO calls (call_id, direction, service, operation, pattern, outcome,
			correlation_id, fault_code, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Direction),
		rec.Service,
		rec.Operation,
		rec.Pattern,
		rec.Outcome,
		nullString(rec.CorrelationID),
		nullString(rec.FaultCode),
		nullString(rec.Error),
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}

	s.logger.Debug("journaled call",
		"id", rec.ID,
		"direction", rec.Direction,
		"service", rec.Service,
		"outcome", rec.Outcome,
	)
	return nil
}

const callColumns = `call_id, direction, service, operation, pattern, outcome,
	correlation_id, fault_code, error, duration_ms, created_at`

// GetCall retrieves a call by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = ?`, id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

const listCallsQuery = `
	SELECT ` + callColumns + `
	FROM calls
	WHERE (? IS NULL OR created_at >= ?)
	  AND (? IS NULL OR direction = ?)
	  AND (? IS NULL OR service = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListCalls returns calls matching the filter, newest first.
func (s *SQLiteStore) ListCalls(ctx context.Context, f CallFilter) ([]*CallRecord, error) {
	var since, direction *string
	if f.Since != nil {
		v := f.Since.UTC().Format(timeFormat)
		since = &v
	}
	if f.Direction != nil {
		v := string(*f.Direction)
		direction = &v
	}

	rows, err := s.db.QueryContext(ctx, listCallsQuery,
		since, since,
		direction, direction,
		f.Service, f.Service,
		f.Outcome, f.Outcome,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []*CallRecord{}
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calls: %w", err)
	}
	return calls, nil
}

// CountByOutcome returns call counts grouped by outcome. An empty service
// counts every call.
func (s *SQLiteStore) CountByOutcome(ctx context.Context, service string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM calls
		WHERE (? = '' OR service = ?)
		GROUP BY outcome
	`, service, service)
	if err != nil {
		return nil, fmt.Errorf("counting calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning call count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call counts: %w", err)
	}
	return counts, nil
}

// PruneBefore deletes calls older than cutoff and returns how many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE created_at < ?`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("pruning calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned calls: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned call journal", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}

func scanCall(scanner interface{ Scan(dest ...any) error }) (*CallRecord, error) {
	var rec CallRecord
	var direction, createdAt string
	var correlationID, faultCode, errText sql.NullString
	var durationMS int64

	if err := scanner.Scan(
		&rec.ID,
		&direction,
		&rec.Service,
		&rec.Operation,
		&rec.Pattern,
		&rec.Outcome,
		&correlationID,
		&faultCode,
		&errText,
		&durationMS,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning call: %w", err)
	}

	rec.Direction = Direction(direction)
	rec.CorrelationID = correlationID.String
	rec.FaultCode = faultCode.String
	rec.Error = errText.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &rec, nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// nullString converts empty strings to NULL for optional columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
