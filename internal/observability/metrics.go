// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Auth event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics contains the Prometheus metrics for Natours.
type Metrics struct {
	AuthEvents          *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PasswordHash        *prometheus.HistogramVec
}

// NewMetrics creates and registers the Natours metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natours_auth_events_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "natours_http_requests_total",
				Help: "Total number of API requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "natours_http_request_duration_seconds",
				Help:    "API request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		PasswordHash: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "natours_password_hash_seconds",
				Help: "Password hash and verify latency by operation",
				// argon2id runs tens to hundreds of milliseconds.
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.AuthEvents, m.HTTPRequests, m.HTTPRequestDuration, m.PasswordHash)
	return m
}

// RecordAuthEvent counts one auth operation.
func (m *Metrics) RecordAuthEvent(operation, outcome string) {
	m.AuthEvents.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveHash records one hash operation. Its signature matches
// auth.HashObserver.
func (m *Metrics) ObserveHash(op string, d time.Duration) {
	m.PasswordHash.WithLabelValues(op).Observe(d.Seconds())
}
