// Package sqlite persists teardown reports in a SQLite journal.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"chartengine/internal/chart"
)

const defaultKeep = 50

// Config configures the journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/reports.db"
	Keep   int    // reports retained; older ones are pruned on every save
}

// Journal stores reports keyed by ULID, so id order is save order.
type Journal struct {
	db   *sql.DB
	keep int
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open opens the database with WAL mode and creates the schema.
func Open(cfg Config) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = defaultKeep
	}
	log.Printf("[sqlite] opened report journal at %s (keep %d)", cfg.DBPath, keep)
	return &Journal{db: db, keep: keep}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id         TEXT    PRIMARY KEY,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER NOT NULL,
			loads      INTEGER NOT NULL,
			last_phase TEXT    NOT NULL,
			errors     INTEGER NOT NULL,
			data       TEXT    NOT NULL
		);
	`)
	return err
}

// Save stores r under a new ULID and prunes the journal to the configured
// size. It returns the id.
func (j *Journal) Save(ctx context.Context, r chart.Report) (string, error) {
	r.ID = ulid.Make().String()
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO reports (id, started_at, ended_at, loads, last_phase, errors, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(), r.Loads, r.LastPhase, len(r.Errors), string(data))
	if err != nil {
		return "", fmt.Errorf("sqlite insert report: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `DELETE FROM reports WHERE id NOT IN (SELECT id FROM reports ORDER BY id DESC LIMIT ?)`, j.keep)
	if err != nil {
		log.Printf("[sqlite] prune reports warning: %v", err)
	}
	return r.ID, nil
}

// Recent returns up to n reports, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]chart.Report, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT data FROM reports ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query reports: %w", err)
	}
	defer rows.Close()

	var out []chart.Report
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan report: %w", err)
		}
		var r chart.Report
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get loads one report by id.
func (j *Journal) Get(ctx context.Context, id string) (chart.Report, bool, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT data FROM reports WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return chart.Report{}, false, nil
	}
	if err != nil {
		return chart.Report{}, false, fmt.Errorf("sqlite read report: %w", err)
	}
	var r chart.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return chart.Report{}, false, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, true, nil
}

// Count returns the number of stored reports.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
