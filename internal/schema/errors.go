package schema

import "fmt"

// ValidationError rejects a whole batch. Index is the record position within
// the batch, -1 when the batch itself is malformed. Field is dotted for nested
// objects.
type ValidationError struct {
	Dataset string
	Index   int
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("validate %s: %s", e.Dataset, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("validate %s: record %d: %s", e.Dataset, e.Index, e.Reason)
	default:
		return fmt.Sprintf("validate %s: record %d: field %s: %s", e.Dataset, e.Index, e.Field, e.Reason)
	}
}

// fieldError is the internal form before the record index is known.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + ": " + e.reason }

func (e *fieldError) under(parent string) *fieldError {
	return &fieldError{field: parent + "." + e.field, reason: e.reason}
}
