package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// It records run history in a relational database. Designed for:
//   - Collecting runs from many processes into one place
//   - Long-lived experiment archives queried by external tooling
//
// MySQLStore uses connection pooling; writes from the monitor and driver
// are independent statements, so no cross-statement transaction is needed.
//
// Schema:
//   - run_samples: per-round total-variation measurements
//   - run_results: final per-node iterates, vectors stored as JSON
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example:
//
//	store, err := store.NewMySQLStore("user:pass@tcp(localhost:3306)/runs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Never hardcode credentials; read the DSN from the environment.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{db: db}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	samplesTable := `
		CREATE TABLE IF NOT EXISTS run_samples (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			iter INT NOT NULL,
			delta DOUBLE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_samples_run (run_id, iter)
		)
	`
	if _, err := m.db.ExecContext(ctx, samplesTable); err != nil {
		return fmt.Errorf("failed to create run_samples table: %w", err)
	}

	resultsTable := `
		CREATE TABLE IF NOT EXISTS run_results (
			run_id VARCHAR(255) NOT NULL,
			node INT NOT NULL,
			x JSON NOT NULL,
			v JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, node)
		)
	`
	if _, err := m.db.ExecContext(ctx, resultsTable); err != nil {
		return fmt.Errorf("failed to create run_results table: %w", err)
	}

	return nil
}

// SaveSample records one variation sample.
func (m *MySQLStore) SaveSample(ctx context.Context, runID string, iter int, delta float64) error {
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO run_samples (run_id, iter, delta) VALUES (?, ?, ?)",
		runID, iter, delta)
	if err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}
	return nil
}

// SaveResult records the final iterates of one node. Re-saving a node for
// the same run replaces the earlier record.
func (m *MySQLStore) SaveResult(ctx context.Context, runID string, node int, x, v []float64) error {
	xJSON, err := json.Marshal(x)
	if err != nil {
		return fmt.Errorf("failed to marshal x: %w", err)
	}
	vJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal v: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`INSERT INTO run_results (run_id, node, x, v) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE x = VALUES(x), v = VALUES(v)`,
		runID, node, string(xJSON), string(vJSON))
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// LoadSamples retrieves a run's variation samples in iteration order.
func (m *MySQLStore) LoadSamples(ctx context.Context, runID string) ([]Sample, error) {
	rows, err := m.db.QueryContext(ctx,
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
func (m *MySQLStore) LoadResults(ctx context.Context, runID string) ([]NodeRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT node, x, v FROM run_results WHERE run_id = ? ORDER BY node", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []NodeRecord
	for rows.Next() {
		var rec NodeRecord
		var xJSON, vJSON []byte
		if err := rows.Scan(&rec.Node, &xJSON, &vJSON); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(xJSON, &rec.X); err != nil {
			return nil, fmt.Errorf("failed to unmarshal x: %w", err)
		}
		if err := json.Unmarshal(vJSON, &rec.V); err != nil {
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
func (m *MySQLStore) Close() error {
	return m.db.Close()
}
