// Package metrics exposes the server's Prometheus counters and histograms:
// ingestion throughput, attestation failures by kind, and rate-limit
// rejections, each labeled enough to spot a misbehaving device or tenant
// without turning into a cardinality problem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "events_ingested_total",
		Help:      "Attendance events processed, by terminal status.",
	}, []string{"status"})

	AttestationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "attestation_failures_total",
		Help:      "Rejected device requests, by error kind.",
	}, []string{"kind"})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected for exceeding a fixed-window rate limit, by endpoint.",
	}, []string{"endpoint"})

	CommandsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "commands_issued_total",
		Help:      "Commands queued for devices by operators.",
	})

	CommandsAcknowledged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "commands_acknowledged_total",
		Help:      "Device command acknowledgements, by ack status.",
	}, []string{"ack_status"})

	FirmwareRolloutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "toon_fleet",
		Name:      "firmware_rollout_failures_total",
		Help:      "Firmware acknowledgements reporting a failed rollout.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toon_fleet",
		Name:      "request_duration_seconds",
		Help:      "End-to-end handler latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)
