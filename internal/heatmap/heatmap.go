// Package heatmap aggregates point features into H3 cells so dense layers
// ship one weighted point per hexagon instead of one per incident.
package heatmap

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/opendata-map/internal/geojson"
)

const PropCell = "cell"

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// CellOf returns the cell containing lng/lat at res.
func CellOf(lng, lat float64, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell: %w", err)
	}
	return c, nil
}

// Bin replaces the features of fc with one Point per occupied cell, placed at
// the cell centre. The incidents property is the sum of the incidents of the
// features in the cell. Output is sorted by cell id.
func Bin(fc geojson.FeatureCollection, res int) (geojson.FeatureCollection, error) {
	if err := validateRes(res); err != nil {
		return geojson.FeatureCollection{}, err
	}
	counts := make(map[h3.Cell]int)
	for _, f := range fc.Features {
		c, err := CellOf(f.Geometry.Coordinates[0], f.Geometry.Coordinates[1], res)
		if err != nil {
			return geojson.FeatureCollection{}, err
		}
		counts[c] += incidents(f)
	}

	cells := make([]h3.Cell, 0, len(counts))
	for c := range counts {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	out := make([]geojson.Feature, 0, len(cells))
	for _, c := range cells {
		ll, err := c.LatLng()
		if err != nil {
			return geojson.FeatureCollection{}, fmt.Errorf("h3 centre: %w", err)
		}
		out = append(out, geojson.NewPoint(ll.Lng, ll.Lat, geojson.Properties{
			geojson.PropIncidents: counts[c],
			PropCell:              c.String(),
		}))
	}
	return geojson.NewFeatureCollection(out), nil
}

func incidents(f geojson.Feature) int {
	switch v := f.Properties[geojson.PropIncidents].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 1
}
