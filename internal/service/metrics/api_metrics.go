package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics holds the forecasting API collectors registered on one registerer.
type APIMetrics struct {
	Latency     *prometheus.HistogramVec
	Errors      *prometheus.CounterVec
	RateLimited prometheus.Counter
}

// NewAPIMetrics registers the API collectors on reg. A nil reg gets a private registry.
// Registering twice on the same registerer reuses the collectors already there.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &APIMetrics{
		Latency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "futurescast",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of forecasting API endpoints",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		)),
		Errors: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "futurescast",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by API endpoint and status",
			},
			[]string{"endpoint", "status"},
		)),
		RateLimited: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "futurescast",
				Subsystem: "api",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client limiter",
			},
		)),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveSince records the latency of endpoint measured from start.
func (m *APIMetrics) ObserveSince(endpoint string, start time.Time) {
	m.Latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Error counts one failed request on endpoint.
func (m *APIMetrics) Error(endpoint string, status int) {
	m.Errors.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}
