package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	line := bytes.TrimSpace(b)
	if err := json.Unmarshal(line, &m); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	return m
}

func TestSlog_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithDataset(ctx, "outages")
	l.InfoContext(ctx, "page fetched", "offset", 1000, "err", errors.New("boom"))

	m := decodeLine(t, buf.Bytes())
	if m["msg"] != "page fetched" {
		t.Fatalf("msg=%v", m["msg"])
	}
	if m["request_id"] != "req-1" || m["dataset"] != "outages" || m["component"] != "test" {
		t.Fatalf("missing context fields: %v", m)
	}
	if m["offset"] != float64(1000) {
		t.Fatalf("offset=%v want 1000", m["offset"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err=%v want boom", m["err"])
	}
}

func TestSlog_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Debug("dropped too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 36 {
		t.Fatalf("generated id=%q want uuid", id)
	}
}
