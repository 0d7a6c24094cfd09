// Package normalize turns raw upstream records into canonical locations.
// Normalization is pure and never fails: unresolvable fields degrade to
// nil rather than blocking the record from being stored.
package normalize

import (
	"github.com/twpayne/go-geom"

	"github.com/btcplaces/btcplaces/internal/model"
	"github.com/btcplaces/btcplaces/internal/source/btcmap"
	"github.com/btcplaces/btcplaces/internal/source/overpass"
)

const (
	tagBitcoin   = "payment:bitcoin"
	tagLightning = "payment:lightning"
	tagOnchain   = "payment:onchain"
	tagXBT       = "currency:XBT"
)

// BTCMapPlace normalizes an aggregator feed record. Inner OSM tags are
// merged with the outer envelope tags (outer wins on collision), and the
// payment flags are recomputed so consumers only ever check the two
// canonical keys regardless of which vocabulary the upstream used.
func BTCMapPlace(p btcmap.Place) model.Location {
	osm := p.OSMJSON

	id := osm.ID
	if id == 0 {
		id = p.ID
	}

	typ := model.LocationType(osm.Type)
	if typ == "" {
		typ = model.TypeNode
	}

	tags := make(map[string]string, len(osm.Tags)+len(p.Tags))
	for k, v := range osm.Tags {
		tags[k] = v
	}
	for k, v := range p.Tags {
		tags[k] = v
	}
	tags[tagBitcoin] = yesNo(
		osm.Tags[tagBitcoin] == "yes" ||
			p.Tags[tagOnchain] == "yes" ||
			p.Tags[tagXBT] == "yes")
	tags[tagLightning] = yesNo(
		osm.Tags[tagLightning] == "yes" ||
			p.Tags[tagLightning] == "yes")

	loc := model.Location{
		ID:       id,
		Type:     typ,
		Tags:     tags,
		NodeRefs: osm.Nodes,
		Source:   model.SourceBTCMap,
	}

	switch typ {
	case model.TypeNode:
		loc.Lat = copyFloat(osm.Lat)
		loc.Lon = copyFloat(osm.Lon)
	case model.TypeWay:
		if len(osm.Geometry) > 0 {
			first := osm.Geometry[0]
			loc.Lat = &first.Lat
			loc.Lon = &first.Lon
		}
	case model.TypeRelation:
		if osm.Bounds != nil {
			lat, lon := boundsMidpoint(*osm.Bounds)
			loc.Lat = &lat
			loc.Lon = &lon
		}
	}

	return loc
}

// OverpassElement normalizes a query interpreter element. Tags pass
// through unmodified; ways and relations use the interpreter's reported
// center point when present.
func OverpassElement(el overpass.Element) model.Location {
	typ := model.LocationType(el.Type)
	if typ == "" {
		typ = model.TypeNode
	}

	loc := model.Location{
		ID:       el.ID,
		Type:     typ,
		Tags:     el.Tags,
		NodeRefs: el.Nodes,
		Source:   model.SourceOverpass,
	}
	if loc.Tags == nil {
		loc.Tags = map[string]string{}
	}

	switch {
	case typ == model.TypeNode:
		loc.Lat = copyFloat(el.Lat)
		loc.Lon = copyFloat(el.Lon)
	case el.Center != nil:
		loc.Lat = &el.Center.Lat
		loc.Lon = &el.Center.Lon
	}

	return loc
}

// boundsMidpoint returns the center of a relation's bounding box.
func boundsMidpoint(b btcmap.Bounds) (lat, lon float64) {
	bounds := geom.NewBounds(geom.XY)
	bounds.Set(b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	lat = (bounds.Min(1) + bounds.Max(1)) / 2
	lon = (bounds.Min(0) + bounds.Max(0)) / 2
	return lat, lon
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
