package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/btcplaces/btcplaces/internal/model"
)

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"US", "US"},
		{"us", "US"},
		{" de ", "DE"},
		{"USA", "USA"},
		{"Germany", "Germany"},
		{"united states", "United States"},
		{"UNITED STATES", "United States"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeCountry(tt.in), "input %q", tt.in)
	}
}

func TestStatsAccumulatorSkipsMalformedTags(t *testing.T) {
	acc := newStatsAccumulator()
	acc.add(model.TypeNode, []byte(`{"addr:country":"US"}`), time.Now())
	acc.add(model.TypeNode, []byte(`not json`), time.Now())

	stats := acc.result()
	assert.Equal(t, 2, stats.TotalLocations)
	assert.Equal(t, map[string]int{"US": 1}, stats.Countries)
}

func TestStatsAccumulatorTracksNewestUpdate(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	acc := newStatsAccumulator()
	acc.add(model.TypeWay, []byte(`{}`), newer)
	acc.add(model.TypeNode, []byte(`{}`), older)

	stats := acc.result()
	assert.Equal(t, newer, *stats.LastUpdated)
	assert.Equal(t, 1, stats.Nodes)
	assert.Equal(t, 1, stats.Ways)
}
