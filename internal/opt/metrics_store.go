package opt

import "sync"

type key struct {
	RunID    string
	Strategy string
}

var (
	mu    sync.Mutex
	store = map[key]Metrics{}
)

// RecordMetrics keeps the metrics of a finished search in process.
func RecordMetrics(runID, strategy string, m Metrics) {
	mu.Lock()
	store[key{RunID: runID, Strategy: strategy}] = m
	mu.Unlock()
}

// GetMetrics returns the recorded metrics of a run keyed by strategy.
func GetMetrics(runID string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range store {
		if k.RunID == runID {
			out[k.Strategy] = v
		}
	}
	return out
}
