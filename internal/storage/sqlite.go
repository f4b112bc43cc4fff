// Package storage persists the orchestrator's call audit trail in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/perfdesk/perfai/internal/orchestrator"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the service call audit trail.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "perfai.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// InsertCallRecord persists one orchestrator call record. It satisfies
// orchestrator.RecordSink.
func (s *Store) InsertCallRecord(rec orchestrator.CallRecord) error {
	params := "{}"
	if rec.Params != nil {
		raw, err := json.Marshal(rec.Params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		params = string(raw)
	}

	cached := 0
	if rec.Cached {
		cached = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO service_calls (id, service, method, params, user_id, created_at, status, duration_ms, error, cached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Service, rec.Method, params, rec.UserID,
		rec.Timestamp.UTC().Format(time.RFC3339), rec.Status, rec.Duration, rec.Error, cached,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

// GetCall returns one persisted call by ID.
func (s *Store) GetCall(id string) (CallRow, error) {
	row := s.db.QueryRow(`
		SELECT id, service, method, params, user_id, created_at, status, duration_ms, error, cached
		FROM service_calls WHERE id = ?`, id)
	c, err := scanCall(row)
	if err == sql.ErrNoRows {
		return CallRow{}, ErrNotFound
	}
	return c, err
}

// ListCalls returns persisted calls, newest first, narrowed by the filter.
func (s *Store) ListCalls(f CallFilter) ([]CallRow, error) {
	query := `
		SELECT id, service, method, params, user_id, created_at, status, duration_ms, error, cached
		FROM service_calls WHERE 1=1`
	var args []any

	if f.Service != "" {
		query += " AND service = ?"
		args = append(args, f.Service)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRow
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// StatsByService aggregates the persisted trail per service.
func (s *Store) StatsByService() ([]ServiceStats, error) {
	rows, err := s.db.Query(`
		SELECT service,
		       COUNT(*),
		       SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM service_calls
		GROUP BY service
		ORDER BY service`)
	if err != nil {
		return nil, fmt.Errorf("aggregating calls: %w", err)
	}
	defer rows.Close()

	var stats []ServiceStats
	for rows.Next() {
		var st ServiceStats
		if err := rows.Scan(&st.Service, &st.Calls, &st.Failures, &st.AvgDurationMS); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// PurgeOlderThan deletes persisted calls created before the cutoff and
// returns how many were removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM service_calls WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purging calls: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (CallRow, error) {
	var c CallRow
	var createdAt string
	var cached int
	err := r.Scan(&c.ID, &c.Service, &c.Method, &c.Params, &c.UserID,
		&createdAt, &c.Status, &c.Duration, &c.Error, &cached)
	if err != nil {
		return CallRow{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return CallRow{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	c.Cached = cached != 0
	return c, nil
}

var _ orchestrator.RecordSink = (*Store)(nil)
