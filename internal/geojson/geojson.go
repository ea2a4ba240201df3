// Package geojson turns validated records into Point FeatureCollections for
// the map client.
package geojson

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/opendata-map/internal/dataset"
	"github.com/mohammed-shakir/opendata-map/internal/schema"
)

// Property keys every feature carries.
const (
	PropIncidents   = "incidents"
	PropCreatedDate = "created_date"
	PropAddress     = "address"
	PropBorough     = "borough"

	PropName   = "name"
	PropIcon   = "icon"
	PropColor  = "color"
	PropStatus = "status"
)

type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Properties values are JSON scalars; absent values are nil and encode as null.
type Properties map[string]any

type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

func NewPoint(lng, lat float64, props Properties) Feature {
	return Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: [2]float64{lng, lat}},
		Properties: props,
	}
}

// Stats counts what Transform kept and what it dropped for lack of a usable
// coordinate.
type Stats struct {
	Built   int
	Dropped int
}

// Transform builds one Point feature per record with a usable coordinate.
func Transform(records []schema.Record, d *dataset.Descriptor) FeatureCollection {
	fc, _ := TransformStats(records, d)
	return fc
}

func TransformStats(records []schema.Record, d *dataset.Descriptor) (FeatureCollection, Stats) {
	features := make([]Feature, 0, len(records))
	var st Stats
	for _, rec := range records {
		lng, lat, ok := Coordinate(rec, d.Coordinates)
		if !ok {
			st.Dropped++
			continue
		}
		features = append(features, NewPoint(lng, lat, properties(rec, d)))
	}
	st.Built = len(features)
	return NewFeatureCollection(features), st
}

func properties(rec schema.Record, d *dataset.Descriptor) Properties {
	p := Properties{
		PropIncidents:   1,
		PropCreatedDate: nil,
		PropAddress:     stringOrNil(rec, d.Address),
		PropBorough:     stringOrNil(rec, d.Region),
	}
	if t, ok := rec.Time(d.Timestamp); ok {
		p[PropCreatedDate] = t.UTC().Format(time.RFC3339)
	}
	if m := d.Layer.Marker; m != nil {
		category, _ := rec.String(m.Category)
		status, _ := rec.String(m.Status)
		icon, color := m.Resolve(category, status)
		p[PropName] = stringOrNil(rec, m.Name)
		p[PropStatus] = stringOrNil(rec, m.Status)
		p[PropIcon] = icon
		p[PropColor] = color
	}
	return p
}

func stringOrNil(rec schema.Record, field string) any {
	if field == "" {
		return nil
	}
	if s, ok := rec.String(field); ok {
		return s
	}
	return nil
}

// Coordinate applies the rules in order and returns the first usable
// longitude/latitude pair.
func Coordinate(rec schema.Record, rules []dataset.CoordinateRule) (lng, lat float64, ok bool) {
	for _, r := range rules {
		switch r.Kind {
		case dataset.CoordFields:
			lng, lat, ok = fromFields(rec, r.Lng, r.Lat)
		case dataset.CoordNested:
			if obj, found := rec.Object(r.Field); found {
				lng, lat, ok = fromFields(obj, r.Lng, r.Lat)
			}
		case dataset.CoordPoint:
			lng, lat, ok = fromPoint(rec, r.Field)
		}
		if ok {
			return lng, lat, true
		}
	}
	return 0, 0, false
}

func fromFields(rec schema.Record, lngField, latField string) (float64, float64, bool) {
	lng, ok := number(rec[lngField])
	if !ok {
		return 0, 0, false
	}
	lat, ok := number(rec[latField])
	if !ok {
		return 0, 0, false
	}
	return lng, lat, Valid(lng, lat)
}

func fromPoint(rec schema.Record, field string) (float64, float64, bool) {
	switch v := rec[field].(type) {
	case schema.Point:
		return v.Lng, v.Lat, Valid(v.Lng, v.Lat)
	case string:
		p, err := schema.ParseWKT(v)
		if err != nil {
			return 0, 0, false
		}
		return p.Lng, p.Lat, Valid(p.Lng, p.Lat)
	}
	return 0, 0, false
}

// number also accepts numeric strings, which survive in objects declared
// without nested fields.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Valid reports a finite, in-range coordinate that is not the 0,0
// placeholder some records carry in place of a location.
func Valid(lng, lat float64) bool {
	switch {
	case math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0):
		return false
	case lng < -180 || lng > 180 || lat < -90 || lat > 90:
		return false
	case lng == 0 && lat == 0:
		return false
	}
	return true
}
