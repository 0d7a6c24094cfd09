package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/btcplaces/btcplaces/internal/model"
)

// ErrNotFound is returned by GetLocation when no row matches the id.
var ErrNotFound = eris.New("location not found")

// Store is the canonical location store. One row per OSM entity id;
// UpsertLocation replaces the whole row, last writer wins.
type Store interface {
	// UpsertLocation inserts or fully overwrites the row for loc.ID and
	// stamps updated_at. The write is atomic per row.
	UpsertLocation(ctx context.Context, loc model.Location) error

	// ListLocations returns every row with resolvable coordinates,
	// tags decoded.
	ListLocations(ctx context.Context) ([]model.Location, error)

	// ListCoordinates returns the {id,type,lat,lon} projection for every
	// row with resolvable coordinates.
	ListCoordinates(ctx context.Context) ([]model.Coordinate, error)

	// GetLocation returns the row for id, or ErrNotFound.
	GetLocation(ctx context.Context, id int64) (*model.Location, error)

	// Stats aggregates row counts, geometry-type counts and the
	// addr:country distribution.
	Stats(ctx context.Context) (*model.Stats, error)

	// Sync pass audit log.
	RecordSyncPass(ctx context.Context, pass model.SyncPass) error
	LastCompletedPass(ctx context.Context) (*model.SyncPass, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
