// metrics.go - Prometheus metrics for the shielded pool daemon
package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"privacycash/internal/prover"
)

// Metrics holds the daemon's collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	Operations  *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	ProveTime   prometheus.Histogram
	Submissions *prometheus.CounterVec
	RateLimited prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "privacycash",
			Name:      "operations_total",
			Help:      "Orchestrator operations by name and result",
		}, []string{"operation", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "privacycash",
			Name:      "operation_seconds",
			Help:      "Orchestrator operation latency",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation"}),
		ProveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "privacycash",
			Name:      "prove_seconds",
			Help:      "Groth16 proof generation time",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "privacycash",
			Name:      "relay_submissions_total",
			Help:      "Relayer submissions by kind and confirmation outcome",
		}, []string{"kind", "outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "privacycash",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-key rate limiter",
		}),
	}
	m.Registry.MustRegister(m.Operations, m.Latency, m.ProveTime, m.Submissions, m.RateLimited)
	return m
}

// Observe records the outcome of one operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// timedProver wraps a backend and records its proving time.
type timedProver struct {
	prover.Prover
	hist prometheus.Histogram
}

func (m *Metrics) WrapProver(p prover.Prover) prover.Prover {
	return &timedProver{Prover: p, hist: m.ProveTime}
}

func (t *timedProver) Prove(ctx context.Context, inputs *prover.FieldMap) (*prover.Proof, error) {
	timer := prometheus.NewTimer(t.hist)
	defer timer.ObserveDuration()
	return t.Prover.Prove(ctx, inputs)
}
