package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It records run history in a single-file database. Designed for:
//   - Local experiments that want history without any database setup
//   - Comparing convergence behavior across runs of one process
//
// WAL mode is enabled so a reader (e.g. a plotting script) can follow a
// database while a run is writing it.
//
// Schema:
//   - run_samples: per-round total-variation measurements
//   - run_results: final per-node iterates, vectors stored as JSON
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path specifies the database file location; ":memory:" gives an
// in-memory database that disappears on Close. The database file and
// schema are created on first use.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	st := &SQLiteStore{db: db, path: path}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	samplesTable := `
		CREATE TABLE IF NOT EXISTS run_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			iter INTEGER NOT NULL,
			delta REAL NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, samplesTable); err != nil {
		return fmt.Errorf("failed to create run_samples table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_samples_run_id ON run_samples(run_id, iter)"); err != nil {
		return fmt.Errorf("failed to create idx_samples_run_id: %w", err)
	}

	resultsTable := `
		CREATE TABLE IF NOT EXISTS run_results (
			run_id TEXT NOT NULL,
			node INTEGER NOT NULL,
			x TEXT NOT NULL,
			v TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, node)
		)
	`
	if _, err := s.db.ExecContext(ctx, resultsTable); err != nil {
		return fmt.Errorf("failed to create run_results table: %w", err)
	}

	return nil
}

// SaveSample records one variation sample.
func (s *SQLiteStore) SaveSample(ctx context.Context, runID string, iter int, delta float64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_samples (run_id, iter, delta) VALUES (?, ?, ?)",
		runID, iter, delta)
	if err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}
	return nil
}

// SaveResult records the final iterates of one node. Re-saving a node for
// the same run replaces the earlier record.
func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, node int, x, v []float64) error {
	xJSON, err := json.Marshal(x)
	if err != nil {
		return fmt.Errorf("failed to marshal x: %w", err)
	}
	vJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal v: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO run_results (run_id, node, x, v) VALUES (?, ?, ?, ?)",
		runID, node, string(xJSON), string(vJSON))
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// LoadSamples retrieves a run's variation samples in iteration order.
func (s *SQLiteStore) LoadSamples(ctx context.Context, runID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT iter, delta FROM run_samples WHERE run_id = ? ORDER BY iter", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Iter, &sm.Delta); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, ErrNotFound
	}
	return samples, nil
}

// LoadResults retrieves a run's final node records ordered by node index.
func (s *SQLiteStore) LoadResults(ctx context.Context, runID string) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT node, x, v FROM run_results WHERE run_id = ? ORDER BY node", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []NodeRecord
	for rows.Next() {
		var rec NodeRecord
		var xJSON, vJSON string
		if err := rows.Scan(&rec.Node, &xJSON, &vJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(xJSON), &rec.X); err != nil {
			return nil, fmt.Errorf("failed to unmarshal x: %w", err)
		}
		if err := json.Unmarshal([]byte(vJSON), &rec.V); err != nil {
			return nil, fmt.Errorf("failed to unmarshal v: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
