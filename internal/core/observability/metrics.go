// Package observability owns the Prometheus collectors shared by the pipeline.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"upstream"},
	)

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Failed upstream calls by kind.",
		},
		[]string{"upstream", "kind"},
	)

	pagesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socrata_pages_fetched_total",
			Help: "Pages requested from open-data endpoints, including the final empty page.",
		},
		[]string{"dataset"},
	)

	recordsValidatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_validated_total",
			Help: "Records that passed schema validation.",
		},
		[]string{"dataset"},
	)

	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Batches rejected by schema validation.",
		},
		[]string{"dataset"},
	)

	fieldsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fields_dropped_total",
			Help: "Malformed droppable fields removed during validation.",
		},
		[]string{"dataset"},
	)

	featuresBuiltTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "features_built_total",
			Help: "GeoJSON features produced by the transformer.",
		},
		[]string{"dataset"},
	)

	featuresDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "features_dropped_total",
			Help: "Records excluded from GeoJSON for lack of usable coordinates.",
		},
		[]string{"dataset"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "FeatureCollection cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	layerLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_loads_total",
			Help: "Dataset loads by outcome.",
		},
		[]string{"dataset", "outcome"},
	)

	layerRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layer_records",
			Help: "Records held for a dataset after the last successful load.",
		},
		[]string{"dataset"},
	)

	recommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Recommendation requests by outcome.",
		},
		[]string{"outcome"},
	)

	refreshEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_events_total",
			Help: "Dataset refresh events consumed by outcome.",
		},
		[]string{"outcome"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		upstreamLatencySeconds, upstreamErrorsTotal,
		pagesFetchedTotal, recordsValidatedTotal, validationFailuresTotal, fieldsDroppedTotal,
		featuresBuiltTotal, featuresDroppedTotal,
		cacheOpTotal, cacheOpDurationSeconds, cacheResults,
		layerLoadsTotal, layerRecords,
		recommendationsTotal, refreshEventsTotal,
	}
}

// Register adds every collector to reg. Collectors already present are skipped,
// so tests may register against a fresh registry repeatedly.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncUpstreamError(upstream, kind string) {
	upstreamErrorsTotal.WithLabelValues(upstream, kind).Inc()
}

func IncPagesFetched(dataset string) {
	pagesFetchedTotal.WithLabelValues(dataset).Inc()
}

func AddRecordsValidated(dataset string, n int) {
	recordsValidatedTotal.WithLabelValues(dataset).Add(float64(n))
}

func IncValidationFailure(dataset string) {
	validationFailuresTotal.WithLabelValues(dataset).Inc()
}

func AddFieldsDropped(dataset string, n int) {
	if n > 0 {
		fieldsDroppedTotal.WithLabelValues(dataset).Add(float64(n))
	}
}

func ObserveFeatures(dataset string, built, dropped int) {
	featuresBuiltTotal.WithLabelValues(dataset).Add(float64(built))
	if dropped > 0 {
		featuresDroppedTotal.WithLabelValues(dataset).Add(float64(dropped))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func ObserveLayerLoad(dataset string, records int, err error) {
	if err != nil {
		layerLoadsTotal.WithLabelValues(dataset, "error").Inc()
		return
	}
	layerLoadsTotal.WithLabelValues(dataset, "ok").Inc()
	layerRecords.WithLabelValues(dataset).Set(float64(records))
}

func IncRecommendation(outcome string) {
	recommendationsTotal.WithLabelValues(outcome).Inc()
}

func IncRefreshEvent(outcome string) {
	refreshEventsTotal.WithLabelValues(outcome).Inc()
}
