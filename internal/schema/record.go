package schema

import (
	"time"
)

// Record holds validated values keyed by field name. Values are string,
// float64, time.Time, bool, Record or Point. Absent fields have no key.
type Record map[string]any

func (r Record) String(name string) (string, bool) {
	v, ok := r[name].(string)
	return v, ok
}

func (r Record) Number(name string) (float64, bool) {
	v, ok := r[name].(float64)
	return v, ok
}

func (r Record) Time(name string) (time.Time, bool) {
	v, ok := r[name].(time.Time)
	return v, ok
}

func (r Record) Bool(name string) (bool, bool) {
	v, ok := r[name].(bool)
	return v, ok
}

func (r Record) Object(name string) (Record, bool) {
	v, ok := r[name].(Record)
	return v, ok
}

func (r Record) Point(name string) (Point, bool) {
	v, ok := r[name].(Point)
	return v, ok
}

func (r Record) Has(name string) bool {
	_, ok := r[name]
	return ok
}
