package layers

import (
	"github.com/mohammed-shakir/opendata-map/internal/dataset"
)

// MapSettings are the client-side map parameters served by /api/map.
type MapSettings struct {
	AccessToken string
	StyleURL    string
	CenterLng   float64
	CenterLat   float64
	Zoom        float64
}

type Map struct {
	AccessToken string       `json:"access_token"`
	StyleURL    string       `json:"style_url"`
	Center      [2]float64   `json:"center"`
	Zoom        float64      `json:"zoom"`
	Layers      []LayerStyle `json:"layers"`
}

// LayerStyle is one layer as the map client adds it. Heatmaps carry a
// Mapbox GL paint object; marker layers carry the icon rules.
type LayerStyle struct {
	ID      string            `json:"id"`
	Dataset string            `json:"dataset"`
	Title   string            `json:"title"`
	Type    dataset.LayerKind `json:"type"`
	Source  string            `json:"source"`
	Visible bool              `json:"visible"`
	Paint   map[string]any    `json:"paint,omitempty"`
	Marker  *dataset.Marker   `json:"marker,omitempty"`
}

// NewMap assembles the map description for every dataset in the catalog.
// Layers start hidden; the client toggles them.
func NewMap(settings MapSettings, catalog *dataset.Catalog) Map {
	m := Map{
		AccessToken: settings.AccessToken,
		StyleURL:    settings.StyleURL,
		Center:      [2]float64{settings.CenterLng, settings.CenterLat},
		Zoom:        settings.Zoom,
		Layers:      make([]LayerStyle, 0, len(catalog.Names())),
	}
	for _, d := range catalog.All() {
		ls := LayerStyle{
			ID:      d.Name + "-" + string(d.Layer.Kind),
			Dataset: d.Name,
			Title:   d.Title,
			Type:    d.Layer.Kind,
			Source:  "/api/datasets/" + d.Name + "/geojson",
		}
		switch d.Layer.Kind {
		case dataset.LayerHeatmap:
			ls.Paint = HeatmapPaint(d.Layer.Ramp)
		case dataset.LayerMarker:
			ls.Marker = d.Layer.Marker
		}
		m.Layers = append(m.Layers, ls)
	}
	return m
}

// HeatmapPaint weights points by their incidents property and spreads ramp
// evenly across heatmap density 0..1.
func HeatmapPaint(ramp []string) map[string]any {
	color := []any{"interpolate", []any{"linear"}, []any{"heatmap-density"}}
	for i, c := range ramp {
		stop := 0.0
		if len(ramp) > 1 {
			stop = float64(i) / float64(len(ramp)-1)
		}
		color = append(color, stop, c)
	}
	return map[string]any{
		"heatmap-weight":    []any{"interpolate", []any{"linear"}, []any{"get", "incidents"}, 0, 0, 10, 1},
		"heatmap-intensity": []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 1, 15, 3},
		"heatmap-color":     color,
		"heatmap-radius":    []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 2, 15, 20},
		"heatmap-opacity":   0.6,
	}
}
