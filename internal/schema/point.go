package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Point is a longitude/latitude pair as carried by georeference columns.
type Point struct {
	Lng float64
	Lat float64
}

type pointJSON struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(pointJSON{Type: "Point", Coordinates: [2]float64{p.Lng, p.Lat}})
}

var wktPoint = regexp.MustCompile(`POINT \(([-\d.]+) ([-\d.]+)\)`)

// ParseWKT extracts the point from a "POINT (lng lat)" string.
func ParseWKT(s string) (Point, error) {
	m := wktPoint.FindStringSubmatch(s)
	if m == nil {
		return Point{}, fmt.Errorf("not a WKT point: %q", s)
	}
	lng, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse latitude: %w", err)
	}
	return Point{Lng: lng, Lat: lat}, nil
}

// parsePoint accepts a GeoJSON Point object or a WKT string.
func parsePoint(v any) (Point, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			var obj map[string]any
			if err := sonic.UnmarshalString(s, &obj); err != nil {
				return Point{}, fmt.Errorf("parse point object: %w", err)
			}
			return pointFromObject(obj)
		}
		return ParseWKT(s)
	case map[string]any:
		return pointFromObject(t)
	default:
		return Point{}, fmt.Errorf("expected point, got %s", kindOf(v))
	}
}

func pointFromObject(obj map[string]any) (Point, error) {
	if typ, _ := obj["type"].(string); typ != "Point" {
		return Point{}, fmt.Errorf("geometry type %q is not Point", obj["type"])
	}
	coords, ok := obj["coordinates"].([]any)
	if !ok || len(coords) != 2 {
		return Point{}, errors.New("point coordinates must be [lng, lat]")
	}
	lng, err := toNumber(coords[0])
	if err != nil {
		return Point{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := toNumber(coords[1])
	if err != nil {
		return Point{}, fmt.Errorf("latitude: %w", err)
	}
	return Point{Lng: lng, Lat: lat}, nil
}
