package model

import "time"

// LocationType is the OSM geometry class of a location.
type LocationType string

const (
	TypeNode     LocationType = "node"
	TypeWay      LocationType = "way"
	TypeRelation LocationType = "relation"
)

// Source identifies which upstream feed last wrote a row.
type Source string

const (
	SourceBTCMap   Source = "btcmap"
	SourceOverpass Source = "overpass"
)

// Location is the canonical row for one OSM entity. Both upstreams share
// the same id space, so id alone keys the store.
type Location struct {
	ID        int64             `json:"id"`
	Type      LocationType      `json:"type"`
	Lat       *float64          `json:"lat"`
	Lon       *float64          `json:"lon"`
	Tags      map[string]string `json:"tags"`
	NodeRefs  []int64           `json:"node_refs,omitempty"`
	Source    Source            `json:"source"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// HasCoordinates reports whether the row is visible to spatial listings.
// Rows without resolvable coordinates stay in storage but are excluded
// from location and coordinate queries.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// Name returns the display name tag, if any.
func (l Location) Name() string {
	return l.Tags["name"]
}

// Coordinate is the cheap projection served to map renderers.
type Coordinate struct {
	ID   int64        `json:"id"`
	Type LocationType `json:"type"`
	Lat  float64      `json:"lat"`
	Lon  float64      `json:"lon"`
}

// Stats aggregates the store for the stats endpoint.
type Stats struct {
	TotalLocations int            `json:"total_locations"`
	Nodes          int            `json:"nodes"`
	Ways           int            `json:"ways"`
	Countries      map[string]int `json:"countries"`
	LastUpdated    *time.Time     `json:"last_updated,omitempty"`
}

// SyncPassStatus is the terminal state of a sync pass.
type SyncPassStatus string

const (
	PassStatusComplete SyncPassStatus = "complete"
	PassStatusFailed   SyncPassStatus = "failed"
)

// SyncPass records one complete fetch-normalize-upsert run across both
// sources. Passes are append-only; the newest complete pass drives the
// last_updated value exposed by the API.
type SyncPass struct {
	ID               string         `json:"id"`
	Status           SyncPassStatus `json:"status"`
	OverpassReceived int            `json:"overpass_received"`
	OverpassUpserted int            `json:"overpass_upserted"`
	BTCMapReceived   int            `json:"btcmap_received"`
	BTCMapUpserted   int            `json:"btcmap_upserted"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}
