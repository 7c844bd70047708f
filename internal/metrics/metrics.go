package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdmissionDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropgate_admission_decision_total",
			Help: "Admission pipeline outcomes per stage (allowed/delayed/throttled/denied)",
		},
		[]string{"stage", "action"},
	)
	AuthOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropgate_auth_total",
			Help: "Auth endpoint outcomes",
		},
		[]string{"route", "outcome"},
	)
	RequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dropgate_request_duration_seconds",
			Help:    "End-to-end request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dropgate_tokens_issued_total",
			Help: "Session tokens minted",
		},
	)
	BuildInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "dropgate_build_info",
			Help:        "Build info gauge with const labels",
			ConstLabels: prometheus.Labels{"version": "0.1.0"},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(AdmissionDecision, AuthOutcome, RequestDuration, TokensIssued, BuildInfo)
}
