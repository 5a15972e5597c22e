package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RuneRubble/rs-proxy/pkg/player"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS player_records (
		username TEXT PRIMARY KEY,
		doc      JSONB NOT NULL,
		version  BIGINT NOT NULL,
		deleted  BOOLEAN NOT NULL DEFAULT FALSE
	)`

// PostgresStore implements Store on a single JSONB document table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds the connection settings for the Postgres backend
type PostgresConfig struct {
	URI      string
	MinConns int32
	MaxConns int32
}

// NewPostgresStore opens the connection pool and ensures the document
// table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*player.PlayerRecord, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM player_records WHERE username = $1`,
		username).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var rec player.PlayerRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record document: %w", err)
	}
	rec.Version = version
	return &rec, nil
}

// Save inserts new records and updates existing ones with a
// compare-and-swap on the stored version, mirroring the Mongo backend.
func (s *PostgresStore) Save(ctx context.Context, rec *player.PlayerRecord) error {
	prev := rec.Version
	rec.Version = prev + 1

	doc, err := json.Marshal(rec)
	if err != nil {
		rec.Version = prev
		return fmt.Errorf("failed to encode record document: %w", err)
	}

	if prev == 0 {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO player_records (username, doc, version, deleted)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (username) DO NOTHING`,
			rec.Username, doc, rec.Version, rec.Deleted)
		if err != nil {
			rec.Version = prev
			return fmt.Errorf("failed to insert record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			rec.Version = prev
			return ErrVersionConflict
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE player_records
		 SET doc = $2, version = $3, deleted = $4
		 WHERE username = $1 AND version = $5`,
		rec.Username, doc, rec.Version, rec.Deleted, prev)
	if err != nil {
		rec.Version = prev
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		rec.Version = prev
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username FROM player_records WHERE NOT deleted ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active players: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating active players: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) MarkInactive(ctx context.Context, username string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE player_records
		 SET deleted = TRUE,
		     doc = jsonb_set(doc, '{deleted}', 'true'),
		     version = version + 1
		 WHERE username = $1 AND NOT deleted`,
		username)
	if err != nil {
		return 0, fmt.Errorf("failed to mark record inactive: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
