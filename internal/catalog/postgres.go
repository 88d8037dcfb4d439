package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soundjacket/metapub/internal/models"
)

const createCatalogSQL = `
	CREATE TABLE IF NOT EXISTS catalog_metadata (
		meta_hash     TEXT NOT NULL,
		item_index    INTEGER NOT NULL,
		run_id        TEXT NOT NULL,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL,
		image         TEXT NOT NULL,
		animation_url TEXT NOT NULL,
		indexed_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (meta_hash, item_index)
	)`

const upsertCatalogSQL = `
	INSERT INTO catalog_metadata (meta_hash, item_index, run_id, name, description, image, animation_url, indexed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (meta_hash, item_index) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		image = EXCLUDED.image,
		animation_url = EXCLUDED.animation_url,
		indexed_at = EXCLUDED.indexed_at`

const selectCatalogSQL = `
	SELECT run_id, item_index, name, description, image, animation_url, meta_hash, indexed_at
	FROM catalog_metadata
	WHERE meta_hash = $1
	ORDER BY item_index`

// pgxDB is the part of *pgxpool.Pool the store uses
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PostgresStore struct {
	db    pgxDB
	close func()
}

// NewPostgresStore opens a pool on databaseURL and creates the table if needed
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewPostgresStoreWithPool(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithPool(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, close: db.Close}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createCatalogSQL); err != nil {
		return fmt.Errorf("create catalog table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, e models.CatalogEntry) error {
	_, err := s.db.Exec(ctx, upsertCatalogSQL, e.MetaHash, e.Index, e.RunID, e.Name, e.Description, e.Image, e.AnimationURL, e.IndexedAt)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, metaHash string) ([]models.CatalogEntry, error) {
	rows, err := s.db.Query(ctx, selectCatalogSQL, metaHash)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CatalogEntry, error) {
		var e models.CatalogEntry
		err := row.Scan(&e.RunID, &e.Index, &e.Name, &e.Description, &e.Image, &e.AnimationURL, &e.MetaHash, &e.IndexedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	return entries, nil
}

// Flush is a no-op; Save writes through
func (s *PostgresStore) Flush(ctx context.Context) error {
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	if s.close != nil {
		s.close()
	}
	return nil
}
