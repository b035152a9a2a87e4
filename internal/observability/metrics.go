package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sages"

type Metrics struct {
	PlaysStarted        prometheus.Counter
	PlaysActive         prometheus.Gauge
	CompletionsRecorded prometheus.Counter
	SubmissionFailures  prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PlaysStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plays_started_total",
			Help:      "Server-hosted retreat plays opened.",
		}),
		PlaysActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plays_active",
			Help:      "Server-hosted retreat plays currently open.",
		}),
		CompletionsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_recorded_total",
			Help:      "Completion records written.",
		}),
		SubmissionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_failures_total",
			Help:      "Completion submissions that failed to persist.",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
