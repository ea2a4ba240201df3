// Package dataset declares the open-data sources the pipeline knows about.
// Each Descriptor carries everything the fetch, validate and transform stages
// need, so a new dataset is a catalog entry rather than new code.
package dataset

import (
	"strings"

	"github.com/mohammed-shakir/opendata-map/internal/schema"
)

// CoordinateKind selects how a coordinate rule reads a record.
type CoordinateKind string

const (
	// CoordFields reads two scalar fields.
	CoordFields CoordinateKind = "fields"
	// CoordNested reads lat/lng members of an object field.
	CoordNested CoordinateKind = "nested"
	// CoordPoint reads a GeoJSON Point or WKT field.
	CoordPoint CoordinateKind = "point"
)

type CoordinateRule struct {
	Kind  CoordinateKind `yaml:"kind" json:"kind" validate:"oneof=fields nested point"`
	Field string         `yaml:"field,omitempty" json:"field,omitempty" validate:"required_unless=Kind fields"`
	Lat   string         `yaml:"lat,omitempty" json:"lat,omitempty" validate:"required_unless=Kind point"`
	Lng   string         `yaml:"lng,omitempty" json:"lng,omitempty" validate:"required_unless=Kind point"`
}

// Query holds the default SoQL clauses sent with every page.
type Query struct {
	Select string `yaml:"select,omitempty" json:"select,omitempty"`
	Where  string `yaml:"where,omitempty" json:"where,omitempty"`
	Order  string `yaml:"order,omitempty" json:"order,omitempty"`
}

type LayerKind string

const (
	LayerHeatmap LayerKind = "heatmap"
	LayerMarker  LayerKind = "marker"
)

type Layer struct {
	Kind LayerKind `yaml:"kind" json:"kind" validate:"oneof=heatmap marker"`
	// Ramp is the heatmap colour ramp from density 0 to 1.
	Ramp   []string `yaml:"ramp,omitempty" json:"ramp,omitempty" validate:"required_if=Kind heatmap"`
	Marker *Marker  `yaml:"marker,omitempty" json:"marker,omitempty" validate:"required_if=Kind marker"`
}

type IconRule struct {
	Match string `yaml:"match" json:"match" validate:"required"`
	Icon  string `yaml:"icon" json:"icon" validate:"required"`
}

// Marker describes how point datasets render as icons.
type Marker struct {
	Name         string            `yaml:"name" json:"name" validate:"required"`
	Status       string            `yaml:"status,omitempty" json:"status,omitempty"`
	Category     string            `yaml:"category,omitempty" json:"category,omitempty"`
	DefaultIcon  string            `yaml:"default_icon" json:"default_icon" validate:"required"`
	DefaultColor string            `yaml:"default_color" json:"default_color" validate:"required"`
	Icons        []IconRule        `yaml:"icons,omitempty" json:"icons,omitempty" validate:"dive"`
	StatusColors map[string]string `yaml:"status_colors,omitempty" json:"status_colors,omitempty"`
}

// Resolve picks the icon and colour for a marker. The category is matched
// case-insensitively against the icon rules in order; an empty or unmatched
// category falls back to the defaults, status colour included.
func (m *Marker) Resolve(category, status string) (icon, color string) {
	if m.Category == "" || category == "" {
		return m.DefaultIcon, m.DefaultColor
	}
	c := strings.ToLower(category)
	for _, r := range m.Icons {
		if strings.Contains(c, r.Match) {
			color, ok := m.StatusColors[status]
			if !ok {
				color = m.DefaultColor
			}
			return r.Icon, color
		}
	}
	return m.DefaultIcon, m.DefaultColor
}

type Descriptor struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Title    string `yaml:"title" json:"title"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required,url"`
	// Strict rejects records carrying undeclared fields.
	Strict bool `yaml:"strict,omitempty" json:"strict"`

	Timestamp string `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`

	Coordinates []CoordinateRule `yaml:"coordinates" json:"coordinates" validate:"min=1,dive"`
	Query       Query            `yaml:"query,omitempty" json:"query"`
	Layer       Layer            `yaml:"layer" json:"layer"`
	Fields      []schema.Field   `yaml:"fields" json:"-" validate:"min=1,dive"`

	schema *schema.Schema
}

// Schema returns the validator built when the catalog was loaded.
func (d *Descriptor) Schema() *schema.Schema { return d.schema }
