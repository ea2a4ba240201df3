// Package metrics builds the registry served on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/opendata-map/internal/core/observability"
)

// Version is stamped at link time with -ldflags "-X ...metrics.Version=...".
var Version = "dev"

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Provider struct {
	reg *prometheus.Registry
}

// New returns a registry carrying the runtime collectors, the build info gauge
// and every pipeline collector from observability.
func New(build BuildInfo) (*Provider, error) {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opendata_map_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "build_date"},
	)
	reg.MustRegister(info)
	if build.Version == "" {
		build.Version = Version
	}
	info.WithLabelValues(build.Version, build.Revision, build.BuildDate).Set(1)

	if err := observability.Register(reg); err != nil {
		return nil, err
	}
	return &Provider{reg: reg}, nil
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
