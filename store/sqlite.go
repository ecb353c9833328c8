package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps actor blobs in a single actor_state table.
type SQLiteStore struct {
	db     *sql.DB
	prefix string
}

// NewSQLiteStore opens (or creates) the database file at path in WAL mode.
func NewSQLiteStore(ctx context.Context, path, prefix string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db, prefix: prefix}
	if err := store.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `create table if not exists actor_state(
		name text primary key,
		blob blob not null,
		updated_at datetime not null
	);`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`select blob from actor_state where name = ?`, qualified(s.prefix, name),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return blob, err
}

func (s *SQLiteStore) Save(ctx context.Context, name string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`insert into actor_state (name, blob, updated_at) values (?, ?, ?)
		on conflict(name) do update set blob = excluded.blob, updated_at = excluded.updated_at`,
		qualified(s.prefix, name), blob, time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
