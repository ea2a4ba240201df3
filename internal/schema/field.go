// Package schema validates raw open-data records against a declared shape and
// coerces the loosely typed values Socrata returns.
package schema

import "fmt"

// Type is the declared type of a field value.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeDate   Type = "date"
	TypeBool   Type = "bool"
	TypeObject Type = "object"
	TypePoint  Type = "point"
)

// Policy says what happens when a field is missing or malformed.
//
//	required:  missing or malformed fails the record
//	optional:  missing is absent, malformed fails the record
//	droppable: missing or malformed is absent
type Policy string

const (
	Required  Policy = "required"
	Optional  Policy = "optional"
	Droppable Policy = "droppable"
)

type Field struct {
	Name   string  `yaml:"name" json:"name" validate:"required"`
	Type   Type    `yaml:"type" json:"type" validate:"oneof=string number date bool object point"`
	Policy Policy  `yaml:"policy" json:"policy" validate:"omitempty,oneof=required optional droppable"`
	Strict bool    `yaml:"strict,omitempty" json:"strict,omitempty"`
	Fields []Field `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive"`
}

func (f Field) policy() Policy {
	if f.Policy == "" {
		return Optional
	}
	return f.Policy
}

// Schema is the shape of one dataset's records.
type Schema struct {
	Dataset string
	// Strict rejects keys that are not declared in Fields.
	Strict bool
	Fields []Field

	index map[string]int
}

// New builds a Schema, rejecting duplicate field names at any depth.
func New(dataset string, strict bool, fields []Field) (*Schema, error) {
	if err := checkDuplicates(fields, ""); err != nil {
		return nil, fmt.Errorf("schema %s: %w", dataset, err)
	}
	s := &Schema{Dataset: dataset, Strict: strict, Fields: fields}
	s.index = indexOf(fields)
	return s, nil
}

func indexOf(fields []Field) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f.Name] = i
	}
	return idx
}

func checkDuplicates(fields []Field, prefix string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %s%s", prefix, f.Name)
		}
		seen[f.Name] = struct{}{}
		if len(f.Fields) > 0 {
			if err := checkDuplicates(f.Fields, prefix+f.Name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

// Field looks up a top-level field declaration.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}
