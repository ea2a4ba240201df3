package heatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/opendata-map/internal/geojson"
)

func point(lng, lat float64) geojson.Feature {
	return geojson.NewPoint(lng, lat, geojson.Properties{geojson.PropIncidents: 1})
}

func TestBin_CountsPerCell(t *testing.T) {
	fc := geojson.NewFeatureCollection([]geojson.Feature{
		point(-73.98570, 40.74840),
		point(-73.98571, 40.74841),
		point(-73.98569, 40.74839),
		point(-73.94420, 40.67820),
	})
	binned, err := Bin(fc, 9)
	require.NoError(t, err)
	require.Len(t, binned.Features, 2)

	total := 0
	for _, f := range binned.Features {
		total += f.Properties[geojson.PropIncidents].(int)
		assert.NotEmpty(t, f.Properties[PropCell])
		assert.True(t, geojson.Valid(f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]))
	}
	assert.Equal(t, 4, total)
}

func TestBin_CentreLiesInSameCell(t *testing.T) {
	binned, err := Bin(geojson.NewFeatureCollection([]geojson.Feature{point(-73.9919618, 40.7485519)}), 7)
	require.NoError(t, err)
	require.Len(t, binned.Features, 1)
	f := binned.Features[0]

	c, err := CellOf(f.Geometry.Coordinates[0], f.Geometry.Coordinates[1], 7)
	require.NoError(t, err)
	assert.Equal(t, c.String(), f.Properties[PropCell])
}

func TestBin_InvalidResolution(t *testing.T) {
	_, err := Bin(geojson.NewFeatureCollection(nil), 16)
	assert.Error(t, err)
	_, err = CellOf(0, 0, -1)
	assert.Error(t, err)
}

func TestBin_Empty(t *testing.T) {
	binned, err := Bin(geojson.NewFeatureCollection(nil), 9)
	require.NoError(t, err)
	assert.Empty(t, binned.Features)
	assert.Equal(t, "FeatureCollection", binned.Type)
}
