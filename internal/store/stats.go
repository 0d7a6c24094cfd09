package store

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/btcplaces/btcplaces/internal/model"
)

// countryTag is the tag key the country distribution is grouped by.
const countryTag = "addr:country"

var countryTitle = cases.Title(language.English)

// normalizeCountry canonicalizes an addr:country value for display.
// Short codes ("us", "DE") stay uppercase; full names are title-cased so
// "united states" and "United States" count as one bucket.
func normalizeCountry(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	if len(name) <= 3 {
		return strings.ToUpper(name)
	}
	return countryTitle.String(strings.ToLower(name))
}

// statsAccumulator folds per-row (type, tags, updated_at) triples into a
// model.Stats. Both store drivers feed it from their own scan loops.
type statsAccumulator struct {
	stats model.Stats
	last  time.Time
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{stats: model.Stats{Countries: map[string]int{}}}
}

func (a *statsAccumulator) add(typ model.LocationType, tagsJSON []byte, updatedAt time.Time) {
	a.stats.TotalLocations++
	switch typ {
	case model.TypeNode:
		a.stats.Nodes++
	case model.TypeWay:
		a.stats.Ways++
	}

	if updatedAt.After(a.last) {
		a.last = updatedAt
	}

	var tags map[string]string
	if err := json.Unmarshal(tagsJSON, &tags); err != nil {
		return // malformed tags never fail the aggregate
	}
	if country := normalizeCountry(tags[countryTag]); country != "" {
		a.stats.Countries[country]++
	}
}

func (a *statsAccumulator) result() *model.Stats {
	if !a.last.IsZero() {
		last := a.last
		a.stats.LastUpdated = &last
	}
	return &a.stats
}
