package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps actor blobs in an actor_state table through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	prefix string
}

func NewPostgresStore(ctx context.Context, dsn, prefix string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store := &PostgresStore{pool: pool, prefix: prefix}
	if _, err := pool.Exec(ctx, `create table if not exists actor_state (
		name       text primary key,
		blob       bytea not null,
		updated_at timestamptz not null
	)`); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`select blob from actor_state where name = $1`, qualified(s.prefix, name),
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return blob, err
}

func (s *PostgresStore) Save(ctx context.Context, name string, blob []byte) error {
	_, err := s.pool.Exec(ctx,
		`insert into actor_state (name, blob, updated_at) values ($1, $2, $3)
		on conflict (name) do update set blob = excluded.blob, updated_at = excluded.updated_at`,
		qualified(s.prefix, name), blob, time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
