package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	providerCalls *prometheus.CounterVec
	forecasts     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder registered on reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_provider_calls_total",
				Help: "Upstream provider calls made while serving forecasts",
			},
			[]string{"provider", "outcome"},
		),
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futurescast_forecasts_total",
				Help: "Horizon forecasts produced, by methodology",
			},
			[]string{"symbol", "methodology"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futurescast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "futurescast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordProviderCall counts one upstream call and its outcome.
func (r *Recorder) RecordProviderCall(provider, outcome string) {
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordForecast counts one emitted horizon forecast.
func (r *Recorder) RecordForecast(symbol, methodology string) {
	r.forecasts.WithLabelValues(symbol, methodology).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
