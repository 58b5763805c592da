package storage

import (
	"context"
	"database/sql"
	"fmt"
)

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_ns INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	const latest = 1

	cur, err := currentVersion(ctx, d.DB)
	if err != nil {
		return err
	}
	for v := cur + 1; v <= latest; v++ {
		if err := apply(ctx, d.DB, v); err != nil {
			return err
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations;`).Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func apply(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	switch version {
	case 1:
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS drops (
  drop_id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  total_stock INTEGER NOT NULL,
  claimed_stock INTEGER NOT NULL DEFAULT 0,
  start_ns INTEGER NOT NULL,
  claim_start_ns INTEGER NOT NULL,
  claim_end_ns INTEGER NOT NULL,
  end_ns INTEGER NOT NULL,
  created_at_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS waitlist_entries (
  entry_id TEXT PRIMARY KEY,
  drop_id TEXT NOT NULL REFERENCES drops(drop_id),
  user_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  priority_score REAL NOT NULL,
  joined_at_ns INTEGER NOT NULL,
  UNIQUE(drop_id, user_id)
);

CREATE TABLE IF NOT EXISTS claims (
  claim_id TEXT PRIMARY KEY,
  drop_id TEXT NOT NULL REFERENCES drops(drop_id),
  user_id TEXT NOT NULL,
  claim_code TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at_ns INTEGER NOT NULL,
  expires_at_ns INTEGER NOT NULL,
  completed_at_ns INTEGER,
  UNIQUE(drop_id, user_id)
);

CREATE TABLE IF NOT EXISTS users (
  user_id TEXT PRIMARY KEY,
  first_seen_ns INTEGER NOT NULL,
  completed_claims INTEGER NOT NULL DEFAULT 0,
  recent_actions INTEGER NOT NULL DEFAULT 0,
  recent_window_start_ns INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_claims_expiry ON claims(status, expires_at_ns);
CREATE INDEX IF NOT EXISTS idx_waitlist_drop ON waitlist_entries(drop_id, position);
`); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at_ns) VALUES(?, strftime('%s','now')*1000000000);`, version); err != nil {
		return err
	}
	return tx.Commit()
}
