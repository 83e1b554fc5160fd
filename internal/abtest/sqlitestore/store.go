// Package sqlitestore keeps abtest client storage in a SQLite file so
// assignments and counters survive between abctl runs.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    client_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (client_id, key)
);

CREATE INDEX IF NOT EXISTS idx_kv_client ON kv(client_id);
`

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrap(err, "open database")
	}
	// one writer; concurrent writers would just see SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, "enable WAL mode")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(err, "apply schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Client returns the storage space of one client.
func (s *Store) Client(id string) abtest.Storage {
	return &clientStorage{db: s.db, clientID: id}
}

// Clients lists every client id with at least one stored key.
func (s *Store) Clients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT client_id FROM kv ORDER BY client_id`)
	if err != nil {
		return nil, xerrors.Wrap(err, "list clients")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, xerrors.Wrap(err, "scan client")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type clientStorage struct {
	db       *sql.DB
	clientID string
}

func (c *clientStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE client_id = ? AND key = ?`, c.clientID, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "get %s", key)
	}
	return v, nil
}

func (c *clientStorage) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (client_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		c.clientID, key, value, time.Now().Unix(),
	)
	if err != nil {
		return xerrors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (c *clientStorage) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM kv WHERE client_id = ? AND key = ?`, c.clientID, key,
	); err != nil {
		return xerrors.Wrapf(err, "delete %s", key)
	}
	return nil
}
