package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// Stats summarises a validated batch.
type Stats struct {
	Records int
	// DroppedFields counts malformed droppable values that were discarded.
	DroppedFields int
}

// Validate decodes a JSON array and validates every element. The batch is
// all-or-nothing: the first bad record fails it.
func (s *Schema) Validate(raw []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := sonic.Unmarshal(raw, &items); err != nil {
		return nil, &ValidationError{Dataset: s.Dataset, Index: -1, Reason: "expected a JSON array of records"}
	}
	recs, _, err := s.ValidateAll(items)
	return recs, err
}

func (s *Schema) ValidateAll(items []json.RawMessage) ([]Record, Stats, error) {
	out := make([]Record, 0, len(items))
	var st Stats
	for i, item := range items {
		rec, dropped, err := s.validateItem(item)
		if err != nil {
			return nil, Stats{}, s.wrap(i, err)
		}
		st.DroppedFields += dropped
		out = append(out, rec)
	}
	st.Records = len(out)
	return out, st, nil
}

// ValidateOne validates a single JSON object.
func (s *Schema) ValidateOne(item json.RawMessage) (Record, error) {
	rec, _, err := s.validateItem(item)
	if err != nil {
		return nil, s.wrap(0, err)
	}
	return rec, nil
}

func (s *Schema) wrap(i int, err error) error {
	ve := &ValidationError{Dataset: s.Dataset, Index: i, Reason: err.Error()}
	if fe, ok := err.(*fieldError); ok {
		ve.Field, ve.Reason = fe.field, fe.reason
	}
	return ve
}

func (s *Schema) validateItem(item json.RawMessage) (Record, int, error) {
	var obj map[string]any
	if err := sonic.Unmarshal(item, &obj); err != nil || obj == nil {
		return nil, 0, fmt.Errorf("record is not a JSON object")
	}
	return validateObject(obj, s.Fields, s.index, s.Strict)
}

func validateObject(obj map[string]any, fields []Field, index map[string]int, strict bool) (Record, int, error) {
	if strict {
		var unknown []string
		for k := range obj {
			if _, ok := index[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, 0, &fieldError{field: unknown[0], reason: "unknown field"}
		}
	}

	rec := make(Record, len(fields))
	dropped := 0
	for _, f := range fields {
		v, present := obj[f.Name]
		if f.policy() == Required {
			// A blank string is still a value for required fields.
			if !present || v == nil {
				return nil, 0, &fieldError{field: f.Name, reason: "required field missing"}
			}
		} else if !present || absent(v) {
			continue
		}
		val, nestedDropped, err := coerce(f, v)
		if err != nil {
			if f.policy() == Droppable {
				dropped++
				continue
			}
			if fe, ok := err.(*fieldError); ok {
				return nil, 0, fe.under(f.Name)
			}
			return nil, 0, &fieldError{field: f.Name, reason: err.Error()}
		}
		dropped += nestedDropped
		rec[f.Name] = val
	}
	return rec, dropped, nil
}

func coerce(f Field, v any) (any, int, error) {
	switch f.Type {
	case TypeString:
		s, err := toString(v)
		return s, 0, err
	case TypeNumber:
		n, err := toNumber(v)
		return n, 0, err
	case TypeDate:
		t, err := toDate(v)
		return t, 0, err
	case TypeBool:
		b, err := toBool(v)
		return b, 0, err
	case TypePoint:
		p, err := parsePoint(v)
		return p, 0, err
	case TypeObject:
		obj, err := toObject(v)
		if err != nil {
			return nil, 0, err
		}
		if len(f.Fields) == 0 {
			return Record(obj), 0, nil
		}
		return validateObject(obj, f.Fields, indexOf(f.Fields), f.Strict)
	default:
		return nil, 0, fmt.Errorf("unsupported field type %q", f.Type)
	}
}
