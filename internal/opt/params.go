package opt

import (
	"fmt"
	"log"
	"strings"
	"time"

	"pdproute/internal/routing"
)

// Strategy selects how the first feasible solution is built.
type Strategy int

const (
	Automatic Strategy = iota
	PathCheapestArc
	GlobalCheapestArc
	ParallelCheapestInsertion
	RegretInsertion
)

var strategyNames = map[Strategy]string{
	Automatic:                 "automatic",
	PathCheapestArc:           "path-cheapest-arc",
	GlobalCheapestArc:         "global-cheapest-arc",
	ParallelCheapestInsertion: "parallel-cheapest-insertion",
	RegretInsertion:           "regret-insertion",
}

func (s Strategy) String() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Strategies lists every concrete construction strategy in fallback order.
func Strategies() []Strategy {
	return []Strategy{GlobalCheapestArc, PathCheapestArc, ParallelCheapestInsertion, RegretInsertion}
}

// ParseStrategy accepts the names printed by String, case-insensitively, plus
// the upper-case underscore spelling (GLOBAL_CHEAPEST_ARC).
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	if norm == "" {
		return Automatic, nil
	}
	for st, n := range strategyNames {
		if n == norm {
			return st, nil
		}
	}
	return Automatic, &routing.ConfigError{Op: "parse strategy", Reason: fmt.Sprintf("unknown first solution strategy %q", s)}
}

// Params tunes one search.
type Params struct {
	FirstSolutionStrategy Strategy
	// TimeLimit bounds the whole search. Zero means no limit beyond the context.
	TimeLimit time.Duration
	// IterationsLimit caps improvement iterations. Zero means no cap.
	IterationsLimit int
	// GlobalSpanCoefficient is applied to SpanDimension before the search starts.
	GlobalSpanCoefficient int64
	SpanDimension         string
	// Seed drives operator selection in the ruin-and-recreate step. Zero picks a time-based seed.
	Seed int64
	// LNS enables ruin-and-recreate once plain local search stalls.
	LNS bool
	// MaxNonImproving stops LNS after this many consecutive rejected iterations.
	MaxNonImproving int
	// InitialRemovalWeights and InitialInsertionWeights seed the roulette: [random, shaw] and [greedy, regret2].
	InitialRemovalWeights   []float64
	InitialInsertionWeights []float64
	// Logger receives progress lines. Nil means log.Default().
	Logger *log.Logger
}

// DefaultParams mirrors the usual ride-sharing setup: global cheapest arc,
// span coefficient 100 on distance, ten second budget.
func DefaultParams() Params {
	return Params{
		FirstSolutionStrategy: GlobalCheapestArc,
		TimeLimit:             10 * time.Second,
		GlobalSpanCoefficient: 100,
		SpanDimension:         routing.DistanceDimension,
		Seed:                  1,
		LNS:                   true,
		MaxNonImproving:       200,
	}
}

// Validate rejects negative budgets and unknown strategies.
func (p Params) Validate() error {
	bad := func(format string, args ...any) error {
		return &routing.ConfigError{Op: "search params", Reason: fmt.Sprintf(format, args...)}
	}
	if _, ok := strategyNames[p.FirstSolutionStrategy]; !ok {
		return bad("unknown first solution strategy %d", int(p.FirstSolutionStrategy))
	}
	if p.TimeLimit < 0 {
		return bad("negative time limit %s", p.TimeLimit)
	}
	if p.IterationsLimit < 0 {
		return bad("negative iterations limit %d", p.IterationsLimit)
	}
	if p.GlobalSpanCoefficient < 0 || p.GlobalSpanCoefficient > routing.MaxSpanCoefficient {
		return bad("span coefficient %d outside [0, %d]", p.GlobalSpanCoefficient, routing.MaxSpanCoefficient)
	}
	if p.MaxNonImproving < 0 {
		return bad("negative non-improving limit %d", p.MaxNonImproving)
	}
	for _, w := range append(append([]float64(nil), p.InitialRemovalWeights...), p.InitialInsertionWeights...) {
		if w < 0 {
			return bad("negative operator weight %g", w)
		}
	}
	if n := len(p.InitialRemovalWeights); n != 0 && n != 2 {
		return bad("removal weights need 2 entries, got %d", n)
	}
	if n := len(p.InitialInsertionWeights); n != 0 && n != 2 {
		return bad("insertion weights need 2 entries, got %d", n)
	}
	return nil
}

func (p Params) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}
