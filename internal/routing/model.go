package routing

import (
	"sync"

	"pdproute/internal/geo"
)

// Status is the lifecycle state of a Model.
type Status int

const (
	Unsolved Status = iota
	Searching
	Solved
	Infeasible
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Unsolved:
		return "UNSOLVED"
	case Searching:
		return "SEARCHING"
	case Solved:
		return "SOLVED"
	case Infeasible:
		return "INFEASIBLE"
	case TimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == Solved || s == Infeasible || s == TimedOut }

// Model binds a Problem to its arc costs, dimensions and pairing constraints.
// It is configured once, searched once, and then only read.
type Model struct {
	problem *Problem
	arc     [][]int64

	dims   []*Dimension
	byName map[string]int

	pd *pickupDelivery

	mu       sync.Mutex
	status   Status
	solution *Assignment
}

// NewModel materialises arcCost over all node pairs. Negative or oversized
// costs are rejected here so the search never has to guard against overflow.
func NewModel(p *Problem, arcCost geo.CostFunc) (*Model, error) {
	if p == nil {
		return nil, configErr("new model", "nil problem")
	}
	if arcCost == nil {
		return nil, configErr("new model", "nil arc cost evaluator")
	}
	arc, err := geo.Materialize(arcCost, p.NumNodes())
	if err != nil {
		return nil, configErr("new model", "arc cost: %v", err)
	}
	return &Model{problem: p, arc: arc, byName: map[string]int{}}, nil
}

// Problem returns the underlying instance.
func (m *Model) Problem() *Problem { return m.problem }

// ArcCost is the objective cost of travelling between two nodes.
func (m *Model) ArcCost(from, to int) int64 { return m.arc[from][to] }

// ArcCostFunc exposes the materialised arc costs as a transit callback.
func (m *Model) ArcCostFunc() func(from, to int) int64 {
	return func(from, to int) int64 { return m.arc[from][to] }
}

// Status returns the current lifecycle state.
func (m *Model) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Model) configurable(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Unsolved {
		return configErr(op, "model is %s, configuration is closed", m.status)
	}
	return nil
}

// BeginSearch moves the model from UNSOLVED to SEARCHING. It succeeds once.
func (m *Model) BeginSearch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Unsolved {
		return ErrAlreadySearched
	}
	// cumul ranges set after the coefficient may have widened the span
	for _, d := range m.dims {
		if d.spanCoeff > 0 {
			if err := m.checkSpan("begin search", d, d.spanCoeff); err != nil {
				return err
			}
		}
	}
	m.status = Searching
	return nil
}

// FinishSearch records the terminal status. A SOLVED status requires a solution.
func (m *Model) FinishSearch(status Status, sol *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Searching {
		return configErr("finish search", "model is %s, not searching", m.status)
	}
	if !status.Terminal() {
		return configErr("finish search", "status %s is not terminal", status)
	}
	if status == Solved && sol == nil {
		return configErr("finish search", "solved without an assignment")
	}
	m.status = status
	if status == Solved {
		m.solution = sol
	}
	return nil
}

// Solution returns the assignment of a SOLVED model.
func (m *Model) Solution() (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.solution == nil {
		return nil, ErrNotSolved
	}
	return m.solution, nil
}

// CumulativeValue returns the solved cumul of a dimension at a node.
func (m *Model) CumulativeValue(node int, dimension string) (int64, error) {
	sol, err := m.Solution()
	if err != nil {
		return 0, err
	}
	return sol.Cumul(node, dimension)
}
