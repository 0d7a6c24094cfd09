package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcplaces/btcplaces/internal/model"
	"github.com/btcplaces/btcplaces/internal/source/btcmap"
	"github.com/btcplaces/btcplaces/internal/source/overpass"
)

func f64(v float64) *float64 { return &v }

func TestBTCMapPlace_Node(t *testing.T) {
	p := btcmap.Place{
		ID: 123,
		OSMJSON: btcmap.OSMJSON{
			Type: "node",
			ID:   123,
			Lat:  f64(52.52),
			Lon:  f64(13.405),
			Tags: map[string]string{"name": "Room 77", "payment:bitcoin": "yes"},
		},
	}

	loc := BTCMapPlace(p)
	assert.Equal(t, int64(123), loc.ID)
	assert.Equal(t, model.TypeNode, loc.Type)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 52.52, *loc.Lat)
	assert.Equal(t, 13.405, *loc.Lon)
	assert.Equal(t, model.SourceBTCMap, loc.Source)
	assert.Equal(t, "Room 77", loc.Tags["name"])
}

func TestBTCMapPlace_OuterTagsWinOnCollision(t *testing.T) {
	p := btcmap.Place{
		OSMJSON: btcmap.OSMJSON{
			Type: "node",
			ID:   1,
			Tags: map[string]string{"name": "inner", "phone": "111"},
		},
		Tags: map[string]string{"name": "outer"},
	}

	loc := BTCMapPlace(p)
	assert.Equal(t, "outer", loc.Tags["name"])
	assert.Equal(t, "111", loc.Tags["phone"])
}

func TestBTCMapPlace_PaymentRecomputation(t *testing.T) {
	tests := []struct {
		name  string
		inner map[string]string
		outer map[string]string
		want  string
	}{
		{"outer onchain yes", nil, map[string]string{"payment:onchain": "yes"}, "yes"},
		{"inner bitcoin yes", map[string]string{"payment:bitcoin": "yes"}, nil, "yes"},
		{"outer XBT yes", nil, map[string]string{"currency:XBT": "yes"}, "yes"},
		{"neither", nil, nil, "no"},
		{"inner bitcoin no", map[string]string{"payment:bitcoin": "no"}, nil, "no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := BTCMapPlace(btcmap.Place{
				OSMJSON: btcmap.OSMJSON{Type: "node", ID: 1, Tags: tt.inner},
				Tags:    tt.outer,
			})
			assert.Equal(t, tt.want, loc.Tags["payment:bitcoin"])
		})
	}
}

func TestBTCMapPlace_LightningRecomputation(t *testing.T) {
	loc := BTCMapPlace(btcmap.Place{
		OSMJSON: btcmap.OSMJSON{Type: "node", ID: 1},
		Tags:    map[string]string{"payment:lightning": "yes"},
	})
	assert.Equal(t, "yes", loc.Tags["payment:lightning"])

	loc = BTCMapPlace(btcmap.Place{
		OSMJSON: btcmap.OSMJSON{Type: "node", ID: 1, Tags: map[string]string{"payment:lightning": "yes"}},
	})
	assert.Equal(t, "yes", loc.Tags["payment:lightning"])

	loc = BTCMapPlace(btcmap.Place{OSMJSON: btcmap.OSMJSON{Type: "node", ID: 1}})
	assert.Equal(t, "no", loc.Tags["payment:lightning"])
}

func TestBTCMapPlace_PaymentFlagsAlwaysPresent(t *testing.T) {
	loc := BTCMapPlace(btcmap.Place{OSMJSON: btcmap.OSMJSON{Type: "way", ID: 9}})
	assert.Equal(t, "no", loc.Tags["payment:bitcoin"])
	assert.Equal(t, "no", loc.Tags["payment:lightning"])
}

func TestBTCMapPlace_WayFirstGeometryPoint(t *testing.T) {
	p := btcmap.Place{
		OSMJSON: btcmap.OSMJSON{
			Type:     "way",
			ID:       10,
			Nodes:    []int64{100, 101, 102},
			Geometry: []btcmap.Point{{Lat: 40.1, Lon: -74.2}, {Lat: 40.2, Lon: -74.3}},
		},
	}

	loc := BTCMapPlace(p)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 40.1, *loc.Lat)
	assert.Equal(t, -74.2, *loc.Lon)
	assert.Equal(t, []int64{100, 101, 102}, loc.NodeRefs)
}

func TestBTCMapPlace_WayEmptyGeometryDegradesToNil(t *testing.T) {
	loc := BTCMapPlace(btcmap.Place{OSMJSON: btcmap.OSMJSON{Type: "way", ID: 11}})
	assert.Nil(t, loc.Lat)
	assert.Nil(t, loc.Lon)
	assert.False(t, loc.HasCoordinates())
}

func TestBTCMapPlace_RelationBoundsMidpoint(t *testing.T) {
	p := btcmap.Place{
		OSMJSON: btcmap.OSMJSON{
			Type:   "relation",
			ID:     12,
			Bounds: &btcmap.Bounds{MinLat: 40.0, MaxLat: 41.0, MinLon: -74.0, MaxLon: -73.0},
		},
	}

	loc := BTCMapPlace(p)
	require.True(t, loc.HasCoordinates())
	assert.InDelta(t, 40.5, *loc.Lat, 1e-9)
	assert.InDelta(t, -73.5, *loc.Lon, 1e-9)
}

func TestBTCMapPlace_RelationWithoutBounds(t *testing.T) {
	loc := BTCMapPlace(btcmap.Place{OSMJSON: btcmap.OSMJSON{Type: "relation", ID: 13}})
	assert.False(t, loc.HasCoordinates())
}

func TestBTCMapPlace_FallsBackToOuterID(t *testing.T) {
	loc := BTCMapPlace(btcmap.Place{ID: 77, OSMJSON: btcmap.OSMJSON{Type: "node"}})
	assert.Equal(t, int64(77), loc.ID)
}

func TestOverpassElement_Node(t *testing.T) {
	el := overpass.Element{
		Type: "node",
		ID:   200,
		Lat:  f64(48.86),
		Lon:  f64(2.35),
		Tags: map[string]string{"payment:onchain": "yes"},
	}

	loc := OverpassElement(el)
	assert.Equal(t, int64(200), loc.ID)
	assert.Equal(t, model.TypeNode, loc.Type)
	assert.Equal(t, model.SourceOverpass, loc.Source)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 48.86, *loc.Lat)

	// Tags from the query source pass through untouched: no payment
	// flag synthesis.
	assert.Equal(t, "yes", loc.Tags["payment:onchain"])
	_, ok := loc.Tags["payment:bitcoin"]
	assert.False(t, ok)
}

func TestOverpassElement_WayUsesCenter(t *testing.T) {
	el := overpass.Element{
		Type:   "way",
		ID:     201,
		Center: &overpass.Center{Lat: 51.5, Lon: -0.12},
		Nodes:  []int64{1, 2, 3},
	}

	loc := OverpassElement(el)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 51.5, *loc.Lat)
	assert.Equal(t, []int64{1, 2, 3}, loc.NodeRefs)
}

func TestOverpassElement_WayWithoutCenter(t *testing.T) {
	loc := OverpassElement(overpass.Element{Type: "way", ID: 202})
	assert.False(t, loc.HasCoordinates())
	assert.NotNil(t, loc.Tags)
}
