package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/Radia-Labs/radia-collectibles/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ArtistRow is one entry in the global artist directory. The directory is
// shared analytics state across all users; per-user state stays in the
// document store.
type ArtistRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Genres    []string  `db:"genres"`
	Followers int       `db:"followers"`
	ImageURL  string    `db:"image_url"`
	LastSeen  time.Time `db:"last_seen"`
}

// Directory defines the interface for the artist directory in PostgreSQL
type Directory interface {
	// UpsertBatch writes a batch of artist rows.
	// Uses COPY protocol for large batches, row-wise upserts for small batches.
	UpsertBatch(ctx context.Context, rows []ArtistRow) error

	// MarkCollectible increments an artist's earned-collectible counter.
	MarkCollectible(ctx context.Context, artistID string) error

	// Close closes the database connection pool
	Close() error
}

// PGDirectory implements Directory using pgxpool
type PGDirectory struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URI      string
	MinConns int32
	MaxConns int32
}

// NewPGDirectory creates a new PGDirectory instance
func NewPGDirectory(ctx context.Context, cfg PostgresConfig, l *logger.Logger) (*PGDirectory, error) {
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

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PGDirectory{pool: pool, logger: l}, nil
}

// UpsertBatch writes the rows using the best available protocol
func (d *PGDirectory) UpsertBatch(ctx context.Context, rows []ArtistRow) error {
	if len(rows) == 0 {
		return nil
	}

	if len(rows) >= 100 {
		return d.upsertCopy(ctx, rows)
	}
	return d.upsertInsert(ctx, rows)
}

// upsertInsert uses standard INSERT with UPSERT logic for smaller batches
func (d *PGDirectory) upsertInsert(ctx context.Context, rows []ArtistRow) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO artists (id, name, genres, followers, image_url, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			genres = EXCLUDED.genres,
			followers = EXCLUDED.followers,
			image_url = EXCLUDED.image_url,
			last_seen = EXCLUDED.last_seen
		RETURNING (xmax = 0) AS inserted
	`
	for _, r := range rows {
		var inserted bool
		err := tx.QueryRow(ctx, query, r.ID, r.Name, r.Genres, r.Followers, r.ImageURL, r.LastSeen).Scan(&inserted)
		if err != nil {
			return err
		}

		status := "updated"
		if inserted {
			status = "inserted"
		}
		d.logger.Debug("artist upsert complete", zap.String("id", r.ID), zap.String("status", status))
	}
	return tx.Commit(ctx)
}

// upsertCopy uses the COPY protocol for large sweeps.
func (d *PGDirectory) upsertCopy(ctx context.Context, rows []ArtistRow) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "CREATE TEMP TABLE artists_temp (LIKE artists) ON COMMIT DROP")
	if err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	copyRows := make([][]interface{}, len(rows))
	for i, r := range rows {
		copyRows[i] = []interface{}{r.ID, r.Name, r.Genres, r.Followers, r.ImageURL, r.LastSeen, r.LastSeen, 0}
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"artists_temp"},
		[]string{"id", "name", "genres", "followers", "image_url", "first_seen", "last_seen", "collectible_count"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return fmt.Errorf("copy from failed: %w", err)
	}

	// first_seen and collectible_count survive conflicts; everything else
	// takes the fresher value.
	const upsertQuery = `
		INSERT INTO artists SELECT * FROM artists_temp
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			genres = EXCLUDED.genres,
			followers = EXCLUDED.followers,
			image_url = EXCLUDED.image_url,
			last_seen = EXCLUDED.last_seen
	`
	_, err = tx.Exec(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("upsert from temp table failed: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkCollectible bumps the earned-collectible counter for an artist.
func (d *PGDirectory) MarkCollectible(ctx context.Context, artistID string) error {
	const query = `
		UPDATE artists SET collectible_count = collectible_count + 1
		WHERE id = $1
	`
	_, err := d.pool.Exec(ctx, query, artistID)
	if err != nil {
		return fmt.Errorf("mark collectible: %w", err)
	}
	return nil
}

// Close closes the pool
func (d *PGDirectory) Close() error {
	d.pool.Close()
	return nil
}

// Exported for testing protocol selection
func (d *PGDirectory) ShouldUseCopy(rows []ArtistRow) bool {
	return len(rows) >= 100
}
