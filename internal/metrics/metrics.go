package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed pipeline runs.
	OutcomeSuccess = "success"
	// OutcomeError labels failed pipeline runs (validation or transform).
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlens_worker",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "statlens_worker",
			Name:      "run_seconds",
			Help:      "Pipeline run latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlens_worker",
			Name:      "cache_lookups_total",
			Help:      "Memo cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	coalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statlens_worker",
			Name:      "coalesced_requests_total",
			Help:      "Requests superseded by a newer request before processing.",
		},
	)
)

// Register attaches worker collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		cacheLookupsTotal,
		coalescedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a pipeline run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveCacheLookup records a memo cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCoalesced counts a superseded request dropped by the coalescer.
func ObserveCoalesced() {
	coalescedTotal.Inc()
}
