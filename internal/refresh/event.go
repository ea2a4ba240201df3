// Package refresh consumes dataset refresh events from Kafka and drops the
// affected layers so the next request reloads them from upstream.
package refresh

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// OpInvalidate drops held data; the next request reloads it.
	OpInvalidate = "invalidate"
	// OpRefresh drops held data and reloads it immediately.
	OpRefresh = "refresh"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Dataset string    `json:"dataset"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case OpInvalidate, OpRefresh:
	default:
		return fmt.Errorf("op must be %s|%s", OpInvalidate, OpRefresh)
	}
	if strings.TrimSpace(e.Dataset) == "" {
		return errors.New("dataset is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}
