// Package metrics — счётчики Prometheus для задач экспорта участников.
// Отдаются веб-сервером на /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "job",
		Name:      "finished_total",
		Help:      "Parse jobs by terminal state.",
	}, []string{"state"}) // finished | failed | stopped
	JobActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tgparser",
		Subsystem: "job",
		Name:      "active",
		Help:      "Whether a parse job is running (1) or not (0).",
	})
	ForcedStopsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "job",
		Name:      "forced_stops_total",
		Help:      "Jobs that did not stop within the grace period.",
	})

	MembersCollectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "collector",
		Name:      "members_total",
		Help:      "Raw member entries received from Telegram.",
	})
	PagesFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "collector",
		Name:      "pages_total",
		Help:      "Participant pages requested.",
	})
	FloodWaitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "collector",
		Name:      "flood_waits_total",
		Help:      "FLOOD_WAIT responses handled by the collector.",
	})
	FloodWaitSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "collector",
		Name:      "flood_wait_seconds_total",
		Help:      "Total time spent waiting out FLOOD_WAIT.",
	})
	DegradedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "normalizer",
		Name:      "degraded_records_total",
		Help:      "Records produced by the reduced fallback mapping.",
	})

	AuthPromptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "auth",
		Name:      "prompts_total",
		Help:      "Interactive auth prompts by kind.",
	}, []string{"kind"})

	ExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgparser",
		Subsystem: "results",
		Name:      "exports_total",
		Help:      "Saved result files by format.",
	}, []string{"format"})
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobActive,
		ForcedStopsTotal,
		MembersCollectedTotal,
		PagesFetchedTotal,
		FloodWaitsTotal,
		FloodWaitSeconds,
		DegradedRecordsTotal,
		AuthPromptsTotal,
		ExportsTotal,
	)
}
