// Package overpass builds and executes OverpassQL queries for the fixed
// payment:bitcoin=yes predicate against a remote query interpreter.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/btcplaces/btcplaces/internal/fetcher"
	"github.com/btcplaces/btcplaces/internal/source"
)

const (
	defaultBaseURL = "https://overpass-api.de"

	// DefaultTimeoutSecs and DefaultMaxSizeBytes are the interpreter-side
	// budgets embedded in the query when the caller sets none.
	DefaultTimeoutSecs  = 180
	DefaultMaxSizeBytes = 1 << 30

	predicate  = `["payment:bitcoin"="yes"]`
	sourceName = "overpass"
)

// BBox restricts a query to a bounding box.
type BBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

// Query configures one interpreter run. Zero values mean defaults; a nil
// BBox queries globally.
type Query struct {
	TimeoutSecs  int
	MaxSizeBytes int64
	BBox         *BBox
}

// Center is the representative point the interpreter reports for ways and
// relations when the query ends in "out center".
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is one OSM element in an interpreter response.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Nodes  []int64           `json:"nodes,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Response is the interpreter's top-level payload.
type Response struct {
	Version   float64 `json:"version"`
	Generator string  `json:"generator"`
	OSM3S     struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
		Copyright        string `json:"copyright"`
	} `json:"osm3s"`
	Elements []Element `json:"elements"`
}

// BuildQuery renders the OverpassQL text for q: budgets in the header,
// all three geometry classes for the fixed predicate, "out center" so
// ways and relations carry a representative point.
func BuildQuery(q Query) string {
	if q.TimeoutSecs <= 0 {
		q.TimeoutSecs = DefaultTimeoutSecs
	}
	if q.MaxSizeBytes <= 0 {
		q.MaxSizeBytes = DefaultMaxSizeBytes
	}

	bbox := ""
	if q.BBox != nil {
		bbox = fmt.Sprintf("(%g,%g,%g,%g)", q.BBox.South, q.BBox.West, q.BBox.North, q.BBox.East)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d][maxsize:%d];\n(\n", q.TimeoutSecs, q.MaxSizeBytes)
	for _, class := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&b, "  %s%s%s;\n", class, predicate, bbox)
	}
	b.WriteString(");\nout center;")
	return b.String()
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the default interpreter base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// Client executes queries against one interpreter endpoint.
type Client struct {
	baseURL string
	fetcher fetcher.Fetcher
}

// NewClient creates an Overpass interpreter client.
func NewClient(f fetcher.Fetcher, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		fetcher: f,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch runs one query. The request deadline mirrors the interpreter-side
// timeout budget. Every failure carries the query string and, where
// available, the HTTP status and body, so operators can replay it.
func (c *Client) Fetch(ctx context.Context, q Query) (*Response, error) {
	query := BuildQuery(q)
	timeout := q.TimeoutSecs
	if timeout <= 0 {
		timeout = DefaultTimeoutSecs
	}

	log := zap.L().With(zap.String("component", "source.overpass"))
	log.Info("executing overpass query",
		zap.String("url", c.baseURL),
		zap.Int("timeout_secs", timeout),
		zap.Bool("bounded", q.BBox != nil),
	)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout*1000)*time.Millisecond)
	defer cancel()

	reqURL := c.baseURL + "/api/interpreter?data=" + url.QueryEscape(query)
	body, err := c.fetcher.Get(ctx, reqURL)
	if err != nil {
		return nil, fetchError(err, query)
	}
	defer body.Close() //nolint:errcheck

	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, &source.FetchError{
			Source: sourceName,
			Query:  query,
			Err:    eris.Wrap(err, "overpass: decode response"),
		}
	}

	log.Info("overpass query complete",
		zap.Int("elements", len(resp.Elements)),
		zap.String("osm_base", resp.OSM3S.TimestampOSMBase),
	)
	return &resp, nil
}

func fetchError(err error, query string) *source.FetchError {
	fe := &source.FetchError{Source: sourceName, Query: query, Err: err}
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		fe.Status = se.StatusCode
		fe.Body = se.Body
	}
	return fe
}
