package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcplaces/btcplaces/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr(v float64) *float64 { return &v }

func testLocation(id int64) model.Location {
	return model.Location{
		ID:     id,
		Type:   model.TypeNode,
		Lat:    ptr(52.52),
		Lon:    ptr(13.405),
		Tags:   map[string]string{"name": "Room 77", "payment:bitcoin": "yes"},
		Source: model.SourceBTCMap,
	}
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteUpsertAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertLocation(ctx, testLocation(1)))

	got, err := s.GetLocation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, model.TypeNode, got.Type)
	assert.Equal(t, 52.52, *got.Lat)
	assert.Equal(t, "Room 77", got.Tags["name"])
	assert.Equal(t, model.SourceBTCMap, got.Source)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSQLiteUpsertIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	loc := testLocation(1)
	require.NoError(t, s.UpsertLocation(ctx, loc))
	require.NoError(t, s.UpsertLocation(ctx, loc))

	locs, err := s.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, loc.Tags, locs[0].Tags)
}

func TestSQLiteUpsertReplacesWholeRow(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testLocation(42)
	first.Tags = map[string]string{"name": "old", "phone": "+1", "payment:bitcoin": "yes"}
	require.NoError(t, s.UpsertLocation(ctx, first))

	// Re-sync of the same entity as a way from the other source. No
	// field of the old row may survive.
	second := model.Location{
		ID:       42,
		Type:     model.TypeWay,
		Lat:      ptr(40.0),
		Lon:      ptr(-74.0),
		Tags:     map[string]string{"name": "new"},
		NodeRefs: []int64{7, 8, 9},
		Source:   model.SourceOverpass,
	}
	require.NoError(t, s.UpsertLocation(ctx, second))

	got, err := s.GetLocation(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.TypeWay, got.Type)
	assert.Equal(t, model.SourceOverpass, got.Source)
	assert.Equal(t, 40.0, *got.Lat)
	assert.Equal(t, map[string]string{"name": "new"}, got.Tags)
	assert.Equal(t, []int64{7, 8, 9}, got.NodeRefs)
	_, stale := got.Tags["phone"]
	assert.False(t, stale)
}

func TestSQLiteGetLocationNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetLocation(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListFiltersUnresolvedCoordinates(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertLocation(ctx, testLocation(1)))

	noCoords := model.Location{ID: 2, Type: model.TypeWay, Source: model.SourceBTCMap}
	require.NoError(t, s.UpsertLocation(ctx, noCoords))

	locs, err := s.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, int64(1), locs[0].ID)

	coords, err := s.ListCoordinates(ctx)
	require.NoError(t, err)
	require.Len(t, coords, 1)
	assert.Equal(t, int64(1), coords[0].ID)
	assert.Equal(t, 52.52, coords[0].Lat)

	// The row itself is still stored and retrievable by id.
	got, err := s.GetLocation(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got.Lat)
}

func TestSQLiteListOrderedByID(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, s.UpsertLocation(ctx, testLocation(id)))
	}

	locs, err := s.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, int64(10), locs[0].ID)
	assert.Equal(t, int64(20), locs[1].ID)
	assert.Equal(t, int64(30), locs[2].ID)
}

func TestSQLiteStats(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	add := func(id int64, typ model.LocationType, country string) {
		loc := testLocation(id)
		loc.Type = typ
		loc.Tags = map[string]string{"addr:country": country}
		require.NoError(t, s.UpsertLocation(ctx, loc))
	}
	add(1, model.TypeNode, "US")
	add(2, model.TypeNode, "us")
	add(3, model.TypeWay, "DE")

	noCountry := testLocation(4)
	noCountry.Tags = map[string]string{"name": "nowhere"}
	require.NoError(t, s.UpsertLocation(ctx, noCountry))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalLocations)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 1, stats.Ways)
	assert.Equal(t, map[string]int{"US": 2, "DE": 1}, stats.Countries)
	require.NotNil(t, stats.LastUpdated)
}

func TestSQLiteStatsEmpty(t *testing.T) {
	s := newTestSQLiteStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalLocations)
	assert.Empty(t, stats.Countries)
	assert.Nil(t, stats.LastUpdated)
}

func TestSQLiteSyncPasses(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	last, err := s.LastCompletedPass(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordSyncPass(ctx, model.SyncPass{
		Status:     model.PassStatusFailed,
		Error:      "overpass fetch: status 504",
		StartedAt:  now.Add(-3 * time.Minute),
		FinishedAt: now.Add(-2 * time.Minute),
	}))
	require.NoError(t, s.RecordSyncPass(ctx, model.SyncPass{
		Status:           model.PassStatusComplete,
		OverpassReceived: 10,
		OverpassUpserted: 9,
		BTCMapReceived:   5,
		BTCMapUpserted:   5,
		StartedAt:        now.Add(-time.Minute),
		FinishedAt:       now,
	}))

	last, err = s.LastCompletedPass(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.PassStatusComplete, last.Status)
	assert.Equal(t, 9, last.OverpassUpserted)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, now, last.FinishedAt.UTC())
}
