package framestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS frames (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	path         TEXT    NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	elapsed_ms   INTEGER NOT NULL,
	width        INTEGER NOT NULL,
	height       INTEGER NOT NULL,
	created_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_frames_run_seq ON frames(run_id, seq);
`

// catalog is the SQLite index of saved frames
type catalog struct {
	db *sql.DB
}

func openCatalog(ctx context.Context, path string) (*catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("mkdir catalog: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec catalog schema: %w", err)
	}
	return &catalog{db: db}, nil
}

func (c *catalog) insert(ctx context.Context, rec Record) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO frames (run_id, seq, path, timestamp_ms, elapsed_ms, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Sequence, rec.Path, rec.Timestamp, rec.Elapsed.Milliseconds(), rec.Width, rec.Height)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

func (c *catalog) latest(ctx context.Context, runID string) (Record, error) {
	var (
		rec       Record
		elapsedMs int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT run_id, seq, path, timestamp_ms, elapsed_ms, width, height
		FROM frames WHERE run_id = ?
		ORDER BY seq DESC LIMIT 1`, runID).
		Scan(&rec.RunID, &rec.Sequence, &rec.Path, &rec.Timestamp, &elapsedMs, &rec.Width, &rec.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoFrames
	}
	if err != nil {
		return Record{}, fmt.Errorf("query latest frame: %w", err)
	}
	rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	return rec, nil
}

func (c *catalog) count(ctx context.Context, runID string) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}

func (c *catalog) close() error {
	return c.db.Close()
}
