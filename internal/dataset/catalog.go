package dataset

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/opendata-map/internal/schema"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Projects names the catalog entry whose schema checks projects submitted for
// recommendations.
const Projects = "projects"

// ErrUnknown is returned for dataset names missing from the catalog.
var ErrUnknown = errors.New("unknown dataset")

type Catalog struct {
	order  []string
	byName map[string]*Descriptor
}

type catalogFile struct {
	Datasets []*Descriptor `yaml:"datasets"`
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which the package tests rule out.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Datasets...)
}

// New validates the descriptors and builds their schemas.
func New(ds ...*Descriptor) (*Catalog, error) {
	if len(ds) == 0 {
		return nil, errors.New("catalog has no datasets")
	}
	c := &Catalog{byName: make(map[string]*Descriptor, len(ds))}
	for _, d := range ds {
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.Name, err)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("dataset %q declared twice", d.Name)
		}
		s, err := schema.New(d.Name, d.Strict, d.Fields)
		if err != nil {
			return nil, err
		}
		if err := checkReferences(d, s); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", d.Name, err)
		}
		d.schema = s
		c.byName[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// checkReferences makes sure every field the pipeline reads is declared.
func checkReferences(d *Descriptor, s *schema.Schema) error {
	need := func(name string, want ...schema.Type) error {
		if name == "" {
			return nil
		}
		f, ok := s.Field(name)
		if !ok {
			return fmt.Errorf("field %q is not declared", name)
		}
		for _, t := range want {
			if f.Type == t {
				return nil
			}
		}
		return fmt.Errorf("field %q has type %s, want %v", name, f.Type, want)
	}
	if err := need(d.Timestamp, schema.TypeDate); err != nil {
		return err
	}
	if err := need(d.Address, schema.TypeString); err != nil {
		return err
	}
	if err := need(d.Region, schema.TypeString); err != nil {
		return err
	}
	for _, r := range d.Coordinates {
		var err error
		switch r.Kind {
		case CoordFields:
			if err = need(r.Lat, schema.TypeNumber); err == nil {
				err = need(r.Lng, schema.TypeNumber)
			}
		case CoordNested:
			err = need(r.Field, schema.TypeObject)
		case CoordPoint:
			err = need(r.Field, schema.TypePoint, schema.TypeString)
		}
		if err != nil {
			return err
		}
	}
	if m := d.Layer.Marker; m != nil {
		if err := need(m.Name, schema.TypeString); err != nil {
			return err
		}
		if err := need(m.Status, schema.TypeString); err != nil {
			return err
		}
		if err := need(m.Category, schema.TypeString); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the named descriptor or an error wrapping ErrUnknown.
func (c *Catalog) Get(name string) (*Descriptor, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return d, nil
}

// Names lists datasets in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.byName[n])
	}
	return out
}
