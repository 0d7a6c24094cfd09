package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestLocation_HasCoordinates(t *testing.T) {
	loc := Location{ID: 1, Type: TypeNode, Lat: f64(52.5), Lon: f64(13.4)}
	assert.True(t, loc.HasCoordinates())

	assert.False(t, Location{ID: 2, Type: TypeWay}.HasCoordinates())
	assert.False(t, Location{ID: 3, Type: TypeWay, Lat: f64(1)}.HasCoordinates())
	assert.False(t, Location{ID: 4, Type: TypeWay, Lon: f64(1)}.HasCoordinates())
}

func TestLocation_Name(t *testing.T) {
	loc := Location{Tags: map[string]string{"name": "Room 77"}}
	assert.Equal(t, "Room 77", loc.Name())
	assert.Empty(t, Location{}.Name())
}
