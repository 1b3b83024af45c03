package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	confirmPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitledger",
		Subsystem: "confirmation",
		Name:      "polls_total",
		Help:      "Status source polls by source and result.",
	}, []string{"source", "result"}) // result: "terminal", "nonterminal", "unavailable"

	confirmOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitledger",
		Subsystem: "confirmation",
		Name:      "outcomes_total",
		Help:      "Terminal confirmation outcomes by status.",
	}, []string{"status"}) // "CONFIRMED", "FAILED", "TIMED_OUT"

	confirmEffectRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "splitledger",
		Subsystem: "confirmation",
		Name:      "effect_retries_total",
		Help:      "Confirmation-call retries after a confirmed success (each retry after the initial failure).",
	})

	confirmActiveLoops = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitledger",
		Subsystem: "confirmation",
		Name:      "active_loops",
		Help:      "Number of currently running confirmation loops.",
	})

	confirmSweepAdoptions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "splitledger",
		Subsystem: "confirmation",
		Name:      "sweep_adoptions_total",
		Help:      "Pending operations re-adopted by the stale sweep.",
	})
)

func init() {
	prometheus.MustRegister(
		confirmPolls,
		confirmOutcomes,
		confirmEffectRetries,
		confirmActiveLoops,
		confirmSweepAdoptions,
	)
}
