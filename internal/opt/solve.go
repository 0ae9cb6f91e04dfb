package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pdproute/internal/metrics"
	"pdproute/internal/routing"
)

// Metrics describes one search.
type Metrics struct {
	Strategy              string // construction strategy that produced the first solution
	InitialCost           int64
	BestCost              int64
	Iterations            int
	Improvements          int
	MoveImprovements      map[string]int
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	Snapshots             []WeightSnapshot
	Elapsed               time.Duration
}

type WeightSnapshot struct {
	Iteration int
	Removal   [2]float64
	Insertion [2]float64
}

// Result is the outcome of Solve. Assignment is set only when Status is SOLVED.
type Result struct {
	RunID      string
	Status     routing.Status
	Assignment *routing.Assignment
	Metrics    Metrics
	// TimeLimited is set when the budget cut the improvement phase short.
	TimeLimited bool
}

// Solve searches m once. A model that has already been searched yields
// routing.ErrAlreadySearched. When no feasible assignment exists the model ends
// INFEASIBLE and routing.ErrInfeasible is returned; when the budget runs out
// before one is found it ends TIMED_OUT with routing.ErrTimedOut.
func Solve(ctx context.Context, m *routing.Model, params Params) (Result, error) {
	res := Result{RunID: uuid.NewString(), Status: m.Status()}
	if err := params.Validate(); err != nil {
		return res, err
	}
	if m.Status() != routing.Unsolved {
		return res, routing.ErrAlreadySearched
	}
	if params.GlobalSpanCoefficient > 0 {
		dim := params.SpanDimension
		if dim == "" {
			dim = routing.DistanceDimension
		}
		if err := m.SetGlobalSpanCoefficient(dim, params.GlobalSpanCoefficient); err != nil {
			return res, err
		}
	}
	if err := m.BeginSearch(); err != nil {
		return res, err
	}
	start := time.Now()
	if params.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.TimeLimit)
		defer cancel()
	}
	b := &budget{ctx: ctx}
	s := newSearcher(m, params, b, res.RunID)
	lg := s.log

	pl, strategy, err := s.construct(params.FirstSolutionStrategy)
	if err != nil {
		status := routing.Infeasible
		if errors.Is(err, routing.ErrTimedOut) {
			status = routing.TimedOut
		}
		return s.finish(res, status, nil, start, err)
	}
	s.met.Strategy = strategy
	s.met.InitialCost = pl.cost
	lg.Printf("opt: run=%s first solution strategy=%s cost=%d", res.RunID, strategy, pl.cost)

	s.improve(pl)
	res.TimeLimited = b.expired

	a, err := m.NewAssignment(pl.stops())
	if err != nil {
		// every plan route passed CheckRoute, so this is a bug in the search
		return s.finish(res, routing.Infeasible, nil, start, fmt.Errorf("opt: verify final plan: %w", err))
	}
	s.met.BestCost = a.ObjectiveValue()
	return s.finish(res, routing.Solved, a, start, nil)
}

func (s *searcher) finish(res Result, status routing.Status, a *routing.Assignment, start time.Time, cause error) (Result, error) {
	if err := s.m.FinishSearch(status, a); err != nil {
		return res, err
	}
	s.met.Elapsed = time.Since(start)
	res.Status = status
	res.Assignment = a
	res.Metrics = *s.met
	strategy := s.met.Strategy
	if strategy == "" {
		strategy = s.params.FirstSolutionStrategy.String()
	}
	metrics.ObserveSolve(status.String(), strategy, s.met.Elapsed, s.met.Iterations, s.met.BestCost, status == routing.Solved)
	RecordMetrics(res.RunID, strategy, res.Metrics)
	s.log.Printf("opt: run=%s status=%s strategy=%s objective=%d iterations=%d improvements=%d time_limited=%t dur=%s",
		res.RunID, status, strategy, s.met.BestCost, s.met.Iterations, s.met.Improvements, res.TimeLimited, s.met.Elapsed)
	return res, cause
}

// Job pairs a model with the parameters to search it with.
type Job struct {
	Model  *routing.Model
	Params Params
}

// SolveJobs runs independent searches concurrently, at most workers at a time
// (workers <= 0 means no limit). Results line up with jobs; failed searches
// are reported together in the returned error.
func SolveJobs(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	results := make([]Result, len(jobs))
	errs := make([]error, len(jobs))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, job := range jobs {
		g.Go(func() error {
			results[i], errs[i] = Solve(ctx, job.Model, job.Params)
			return nil
		})
	}
	_ = g.Wait()
	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("job %d: %w", i, err))
		}
	}
	return results, errors.Join(failed...)
}

// SolveAll searches every model with the same parameters.
func SolveAll(ctx context.Context, models []*routing.Model, params Params, workers int) ([]Result, error) {
	jobs := make([]Job, len(models))
	for i, m := range models {
		jobs[i] = Job{Model: m, Params: params}
	}
	return SolveJobs(ctx, jobs, workers)
}
