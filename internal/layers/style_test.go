package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/opendata-map/internal/dataset"
)

func TestNewMap_LayersFollowCatalog(t *testing.T) {
	m := NewMap(MapSettings{
		AccessToken: "pk.test",
		StyleURL:    "mapbox://styles/tanksalif/cm1c4amlx00o301qkd5racncv",
		CenterLng:   -73.9919618,
		CenterLat:   40.7485519,
		Zoom:        12.5,
	}, dataset.Default())

	assert.Equal(t, [2]float64{-73.9919618, 40.7485519}, m.Center)
	require.Len(t, m.Layers, 4)

	out := m.Layers[0]
	assert.Equal(t, "outages-heatmap", out.ID)
	assert.Equal(t, "/api/datasets/outages/geojson", out.Source)
	assert.False(t, out.Visible)
	color := out.Paint["heatmap-color"].([]any)
	assert.Equal(t, "rgba(0,0,255,0)", color[4])
	assert.Equal(t, 1.0, color[len(color)-2])
	assert.Equal(t, "rgb(255,0,0)", color[len(color)-1])

	proj := m.Layers[2]
	assert.Equal(t, dataset.LayerMarker, proj.Type)
	require.NotNil(t, proj.Marker)
	assert.Nil(t, proj.Paint)
}

func TestHeatmapPaint_SingleColour(t *testing.T) {
	p := HeatmapPaint([]string{"red"})
	assert.Equal(t, []any{"interpolate", []any{"linear"}, []any{"heatmap-density"}, 0.0, "red"}, p["heatmap-color"])
	assert.Equal(t, 0.6, p["heatmap-opacity"])
}
