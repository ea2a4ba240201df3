// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/mohammed-shakir/opendata-map/internal/layers"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// StatusReporter is the view of the layer store the readiness probe needs.
type StatusReporter interface {
	Ready(names []string) bool
	Statuses() map[string]layers.Status
}

// Readiness reports ready once every dataset in required has loaded. The
// body always lists every dataset so operators can see which one failed.
func Readiness(sr StatusReporter, required []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status   string                   `json:"status"`
			Required []string                 `json:"required"`
			Datasets map[string]layers.Status `json:"datasets"`
		}
		ready := sr.Ready(required)
		out := resp{Status: "not_ready", Required: required, Datasets: sr.Statuses()}
		if out.Required == nil {
			out.Required = []string{}
		}
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
