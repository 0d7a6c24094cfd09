// Package btcmap fetches the BTC Map aggregator snapshot feed: one GET,
// the full element set as a JSON array, no paging and no deltas.
package btcmap

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/btcplaces/btcplaces/internal/fetcher"
	"github.com/btcplaces/btcplaces/internal/source"
)

const (
	defaultBaseURL = "https://api.btcmap.org"
	defaultTimeout = 120 * time.Second

	sourceName = "btcmap"
)

// Point is one vertex of a way geometry.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is the bounding box reported for relations.
type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// OSMJSON is the nested OSM-style object inside a feed record.
type OSMJSON struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Geometry []Point           `json:"geometry,omitempty"`
	Bounds   *Bounds           `json:"bounds,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Place is the outer feed envelope. The outer tag map may duplicate or
// extend the inner OSM tags; the normalizer resolves collisions.
type Place struct {
	ID        int64             `json:"id"`
	OSMJSON   OSMJSON           `json:"osm_json"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt string            `json:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
	DeletedAt string            `json:"deleted_at,omitempty"`
}

// Deleted reports whether the feed has tombstoned this place.
func (p Place) Deleted() bool {
	return p.DeletedAt != ""
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default feed base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client fetches the aggregator feed.
type Client struct {
	baseURL string
	timeout time.Duration
	fetcher fetcher.Fetcher
}

// NewClient creates a BTC Map feed client.
func NewClient(f fetcher.Fetcher, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		fetcher: f,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch retrieves the full snapshot. The fetch is atomic: any HTTP
// failure or top-level schema violation returns a FetchError and no
// partial data.
func (c *Client) Fetch(ctx context.Context) ([]Place, error) {
	log := zap.L().With(zap.String("component", "source.btcmap"))
	log.Info("fetching aggregator snapshot", zap.String("url", c.baseURL))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.fetcher.Get(ctx, c.baseURL+"/v2/elements")
	if err != nil {
		return nil, fetchError(err)
	}
	defer body.Close() //nolint:errcheck

	dec := json.NewDecoder(body)
	tok, err := dec.Token()
	if err != nil {
		return nil, &source.FetchError{Source: sourceName, Err: eris.Wrap(err, "btcmap: read opening token")}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, &source.FetchError{Source: sourceName, Err: eris.Errorf("btcmap: expected JSON array, got %v", tok)}
	}

	var places []Place
	for dec.More() {
		var p Place
		if err := dec.Decode(&p); err != nil {
			return nil, &source.FetchError{Source: sourceName, Err: eris.Wrap(err, "btcmap: decode element")}
		}
		places = append(places, p)
	}

	log.Info("aggregator snapshot fetched", zap.Int("places", len(places)))
	return places, nil
}

func fetchError(err error) *source.FetchError {
	fe := &source.FetchError{Source: sourceName, Err: err}
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		fe.Status = se.StatusCode
		fe.Body = se.Body
	}
	return fe
}
