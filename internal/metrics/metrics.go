package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pdproute/internal/buildinfo"
)

var (
	// Registry is the dedicated Prometheus registry for the solver
	Registry = prometheus.NewRegistry()
	// Solves counts finished searches by terminal status and construction strategy
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pdp_solves_total", Help: "Finished searches by status and strategy."},
		[]string{"status", "strategy"},
	)
	// SolveDuration records wall-clock search time in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pdp_solve_duration_seconds", Help: "Search duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"status"},
	)
	// SearchIterations tracks improvement iterations per search
	SearchIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pdp_search_iterations", Help: "Improvement iterations per search.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
	)
	// Objective is the objective value of the last solved model
	Objective = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pdp_objective_value", Help: "Objective value of the most recent solution."},
	)
	// BuildInfo is constant 1, labelled with the binary's version
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pdp_build_info", Help: "Build version of the solver."},
		[]string{"version", "commit"},
	)
)

// RegisterDefault registers the solver collectors on Registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SearchIterations)
		Registry.MustRegister(Objective)
		Registry.MustRegister(BuildInfo)
		BuildInfo.WithLabelValues(buildinfo.Version, buildinfo.Commit).Set(1)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveSolve records one finished search. The objective gauge only moves on solved runs.
func ObserveSolve(status, strategy string, elapsed time.Duration, iterations int, objective int64, solved bool) {
	Solves.WithLabelValues(status, strategy).Inc()
	SolveDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	SearchIterations.Observe(float64(iterations))
	if solved {
		Objective.Set(float64(objective))
	}
}

// WriteTextfile dumps Registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	RegisterDefault()
	return prometheus.WriteToTextfile(path, Registry)
}
