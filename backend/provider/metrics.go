package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newGatewayMetrics(registry *prometheus.Registry) *gatewayMetrics {
	if registry == nil {
		return nil
	}

	m := &gatewayMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Total completion requests by provider",
			},
			[]string{"provider"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_failures_total",
				Help: "Failed completion requests by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_request_seconds",
				Help:    "Completion request latency by provider",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(m.requests, m.failures, m.latency)
	return m
}

func (m *gatewayMetrics) observe(provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider).Inc()
	m.latency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := string(ErrorKindUnavailable)
		if pe := classify(provider, err); pe != nil {
			kind = string(pe.Kind)
		}
		m.failures.WithLabelValues(provider, kind).Inc()
	}
}
