package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/btcplaces/btcplaces/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. This is the
// default driver: a single file-backed database at a fixed local path.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id         INTEGER PRIMARY KEY,
	type       TEXT NOT NULL,
	lat        REAL,
	lon        REAL,
	tags       TEXT NOT NULL DEFAULT '{}',
	node_refs  TEXT,
	source     TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_passes (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	overpass_received INTEGER NOT NULL DEFAULT 0,
	overpass_upserted INTEGER NOT NULL DEFAULT 0,
	btcmap_received   INTEGER NOT NULL DEFAULT 0,
	btcmap_upserted   INTEGER NOT NULL DEFAULT 0,
	error             TEXT,
	started_at        DATETIME NOT NULL,
	finished_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_locations_type ON locations(type);
CREATE INDEX IF NOT EXISTS idx_sync_passes_finished_at ON sync_passes(finished_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertLocation(ctx context.Context, loc model.Location) error {
	tagsJSON, refsJSON, err := encodeLocation(loc)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO locations (id, type, lat, lon, tags, node_refs, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			lat = excluded.lat,
			lon = excluded.lon,
			tags = excluded.tags,
			node_refs = excluded.node_refs,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		loc.ID, string(loc.Type), loc.Lat, loc.Lon, tagsJSON, refsJSON, string(loc.Source), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert location %d", loc.ID)
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, lat, lon, tags, node_refs, source, updated_at
		 FROM locations WHERE lat IS NOT NULL AND lon IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, *loc)
	}
	return locs, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) ListCoordinates(ctx context.Context) ([]model.Coordinate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, lat, lon FROM locations
		 WHERE lat IS NOT NULL AND lon IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list coordinates")
	}
	defer rows.Close()

	var coords []model.Coordinate
	for rows.Next() {
		var c model.Coordinate
		if err := rows.Scan(&c.ID, &c.Type, &c.Lat, &c.Lon); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coordinate")
		}
		coords = append(coords, c)
	}
	return coords, eris.Wrap(rows.Err(), "sqlite: list coordinates iterate")
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, lat, lon, tags, node_refs, source, updated_at
		 FROM locations WHERE id = ?`,
		id,
	)
	loc, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return loc, err
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, tags, updated_at FROM locations`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var typ model.LocationType
		var tagsJSON []byte
		var updatedAt time.Time
		if err := rows.Scan(&typ, &tagsJSON, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats row")
		}
		acc.add(typ, tagsJSON, updatedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats iterate")
	}
	return acc.result(), nil
}

func (s *SQLiteStore) RecordSyncPass(ctx context.Context, pass model.SyncPass) error {
	if pass.ID == "" {
		pass.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_passes
			(id, status, overpass_received, overpass_upserted, btcmap_received, btcmap_upserted, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.ID, string(pass.Status),
		pass.OverpassReceived, pass.OverpassUpserted,
		pass.BTCMapReceived, pass.BTCMapUpserted,
		pass.Error, pass.StartedAt.UTC(), pass.FinishedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: record sync pass")
}

func (s *SQLiteStore) LastCompletedPass(ctx context.Context) (*model.SyncPass, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, overpass_received, overpass_upserted, btcmap_received, btcmap_upserted, error, started_at, finished_at
		 FROM sync_passes WHERE status = ? ORDER BY finished_at DESC LIMIT 1`,
		string(model.PassStatusComplete),
	)

	var p model.SyncPass
	var errText sql.NullString
	err := row.Scan(&p.ID, &p.Status,
		&p.OverpassReceived, &p.OverpassUpserted,
		&p.BTCMapReceived, &p.BTCMapUpserted,
		&errText, &p.StartedAt, &p.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last completed pass")
	}
	p.Error = errText.String
	return &p, nil
}

// helpers

func encodeLocation(loc model.Location) (tagsJSON string, refsJSON any, err error) {
	tags := loc.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", nil, eris.Wrapf(err, "store: marshal tags for %d", loc.ID)
	}

	if loc.NodeRefs == nil {
		return string(b), nil, nil
	}
	r, err := json.Marshal(loc.NodeRefs)
	if err != nil {
		return "", nil, eris.Wrapf(err, "store: marshal node refs for %d", loc.ID)
	}
	return string(b), string(r), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLocation(row scannable) (*model.Location, error) {
	var loc model.Location
	var lat, lon sql.NullFloat64
	var tagsJSON string
	var refsJSON sql.NullString

	err := row.Scan(&loc.ID, &loc.Type, &lat, &lon, &tagsJSON, &refsJSON, &loc.Source, &loc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan location")
	}

	if lat.Valid {
		loc.Lat = &lat.Float64
	}
	if lon.Valid {
		loc.Lon = &lon.Float64
	}
	if err := json.Unmarshal([]byte(tagsJSON), &loc.Tags); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal tags for %d", loc.ID)
	}
	if refsJSON.Valid {
		if err := json.Unmarshal([]byte(refsJSON.String), &loc.NodeRefs); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal node refs for %d", loc.ID)
		}
	}
	return &loc, nil
}
