package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/btcplaces/btcplaces/internal/db"
	"github.com/btcplaces/btcplaces/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// API and the sync job share a database server instead of a local file.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id         BIGINT PRIMARY KEY,
	type       TEXT NOT NULL,
	lat        DOUBLE PRECISION,
	lon        DOUBLE PRECISION,
	tags       JSONB NOT NULL DEFAULT '{}',
	node_refs  JSONB,
	source     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_passes (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	overpass_received INTEGER NOT NULL DEFAULT 0,
	overpass_upserted INTEGER NOT NULL DEFAULT 0,
	btcmap_received   INTEGER NOT NULL DEFAULT 0,
	btcmap_upserted   INTEGER NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_locations_type ON locations(type);
CREATE INDEX IF NOT EXISTS idx_sync_passes_finished_at ON sync_passes(finished_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertLocation(ctx context.Context, loc model.Location) error {
	tagsJSON, refsJSON, err := encodeLocation(loc)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO locations (id, type, lat, lon, tags, node_refs, source, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			tags = EXCLUDED.tags,
			node_refs = EXCLUDED.node_refs,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at`,
		loc.ID, string(loc.Type), loc.Lat, loc.Lon, tagsJSON, refsJSON, string(loc.Source), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert location %d", loc.ID)
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, lat, lon, tags, node_refs, source, updated_at
		 FROM locations WHERE lat IS NOT NULL AND lon IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		loc, err := scanPgLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, *loc)
	}
	return locs, eris.Wrap(rows.Err(), "postgres: list locations iterate")
}

func (s *PostgresStore) ListCoordinates(ctx context.Context) ([]model.Coordinate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, lat, lon FROM locations
		 WHERE lat IS NOT NULL AND lon IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list coordinates")
	}
	defer rows.Close()

	var coords []model.Coordinate
	for rows.Next() {
		var c model.Coordinate
		if err := rows.Scan(&c.ID, &c.Type, &c.Lat, &c.Lon); err != nil {
			return nil, eris.Wrap(err, "postgres: scan coordinate")
		}
		coords = append(coords, c)
	}
	return coords, eris.Wrap(rows.Err(), "postgres: list coordinates iterate")
}

func (s *PostgresStore) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, type, lat, lon, tags, node_refs, source, updated_at
		 FROM locations WHERE id = $1`,
		id,
	)
	loc, err := scanPgLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return loc, err
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT type, tags, updated_at FROM locations`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var typ model.LocationType
		var tagsJSON []byte
		var updatedAt time.Time
		if err := rows.Scan(&typ, &tagsJSON, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats row")
		}
		acc.add(typ, tagsJSON, updatedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats iterate")
	}
	return acc.result(), nil
}

func (s *PostgresStore) RecordSyncPass(ctx context.Context, pass model.SyncPass) error {
	if pass.ID == "" {
		pass.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_passes
			(id, status, overpass_received, overpass_upserted, btcmap_received, btcmap_upserted, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pass.ID, string(pass.Status),
		pass.OverpassReceived, pass.OverpassUpserted,
		pass.BTCMapReceived, pass.BTCMapUpserted,
		pass.Error, pass.StartedAt.UTC(), pass.FinishedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: record sync pass")
}

func (s *PostgresStore) LastCompletedPass(ctx context.Context) (*model.SyncPass, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, overpass_received, overpass_upserted, btcmap_received, btcmap_upserted, error, started_at, finished_at
		 FROM sync_passes WHERE status = $1 ORDER BY finished_at DESC LIMIT 1`,
		string(model.PassStatusComplete),
	)

	var p model.SyncPass
	var errText *string
	err := row.Scan(&p.ID, &p.Status,
		&p.OverpassReceived, &p.OverpassUpserted,
		&p.BTCMapReceived, &p.BTCMapUpserted,
		&errText, &p.StartedAt, &p.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last completed pass")
	}
	if errText != nil {
		p.Error = *errText
	}
	return &p, nil
}

func scanPgLocation(row scannable) (*model.Location, error) {
	var loc model.Location
	var tagsJSON []byte
	var refsJSON []byte

	err := row.Scan(&loc.ID, &loc.Type, &loc.Lat, &loc.Lon, &tagsJSON, &refsJSON, &loc.Source, &loc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan location")
	}

	if err := json.Unmarshal(tagsJSON, &loc.Tags); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal tags for %d", loc.ID)
	}
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &loc.NodeRefs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal node refs for %d", loc.ID)
		}
	}
	return &loc, nil
}
