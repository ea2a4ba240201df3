package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/opendata-map/internal/layers"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeStatus map[string]layers.Status

func (f fakeStatus) Ready(names []string) bool {
	for _, n := range names {
		if !f[n].Loaded {
			return false
		}
	}
	return true
}

func (f fakeStatus) Statuses() map[string]layers.Status { return f }

func TestReadiness(t *testing.T) {
	st := fakeStatus{
		"outages":  {Loaded: true, Records: 12, LoadedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		"projects": {Error: "load projects: upstream 503"},
	}

	tests := []struct {
		name     string
		required []string
		code     int
		status   string
	}{
		{"all loaded", []string{"outages"}, http.StatusOK, "ready"},
		{"one failed", []string{"outages", "projects"}, http.StatusServiceUnavailable, "not_ready"},
		{"nothing required", nil, http.StatusOK, "ready"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(st, tc.required)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.code {
				t.Fatalf("status=%d want %d", rr.Code, tc.code)
			}
			var body struct {
				Status   string                   `json:"status"`
				Datasets map[string]layers.Status `json:"datasets"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.status {
				t.Fatalf("status=%q want %q", body.Status, tc.status)
			}
			if body.Datasets["projects"].Error == "" {
				t.Fatalf("failed dataset error not reported: %+v", body.Datasets)
			}
		})
	}
}
