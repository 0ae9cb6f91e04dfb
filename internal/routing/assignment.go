package routing

import "fmt"

// Assignment is a complete, verified solution. It is immutable once built.
type Assignment struct {
	problem   *Problem
	routes    []RouteState
	dimIndex  map[string]int
	vehicleOf []int
	next      []int
	position  []int
	objective int64
	arcCost   int64
	spans     []int64
}

// NewAssignment verifies one stop list per vehicle against the model and freezes
// it. Every non-depot node must appear in exactly one route exactly once.
func (m *Model) NewAssignment(routes [][]int) (*Assignment, error) {
	p := m.problem
	if len(routes) != p.NumVehicles() {
		return nil, fmt.Errorf("new assignment: %d routes for %d vehicles", len(routes), p.NumVehicles())
	}
	a := &Assignment{
		problem:   p,
		routes:    make([]RouteState, len(routes)),
		dimIndex:  make(map[string]int, len(m.dims)),
		vehicleOf: make([]int, p.NumNodes()),
		next:      make([]int, p.NumNodes()),
		position:  make([]int, p.NumNodes()),
		spans:     make([]int64, len(m.dims)),
	}
	for i := range a.vehicleOf {
		a.vehicleOf[i] = -1
		a.next[i] = -1
		a.position[i] = -1
	}
	for d, dim := range m.dims {
		a.dimIndex[dim.name] = d
	}
	for v, stops := range routes {
		rs, err := m.CheckRoute(v, append([]int(nil), stops...))
		if err != nil {
			return nil, fmt.Errorf("new assignment: %w", err)
		}
		for k, node := range rs.Stops {
			if a.vehicleOf[node] >= 0 {
				return nil, fmt.Errorf("new assignment: %w", &Violation{Constraint: ConstraintDuplicate, Vehicle: v, Node: node})
			}
			a.vehicleOf[node] = v
			a.position[node] = k + 1
			if k+1 < len(rs.Stops) {
				a.next[node] = rs.Stops[k+1]
			} else {
				a.next[node] = p.vehicles[v].End
			}
		}
		a.routes[v] = rs
		a.arcCost += rs.ArcCost
	}
	for node := 0; node < p.NumNodes(); node++ {
		if !p.isDepot(node) && a.vehicleOf[node] < 0 {
			return nil, fmt.Errorf("new assignment: %w", &Violation{Constraint: ConstraintCoverage, Vehicle: -1, Node: node})
		}
	}
	for d := range m.dims {
		a.spans[d] = m.span(a.routes, d)
	}
	a.objective = m.Objective(a.routes)
	return a, nil
}

// Verify re-checks an assignment against the model's constraints.
func (m *Model) Verify(a *Assignment) error {
	_, err := m.NewAssignment(a.Routes())
	return err
}

// NumVehicles is the number of routes.
func (a *Assignment) NumVehicles() int { return len(a.routes) }

// Route returns the stops of vehicle v, depots excluded.
func (a *Assignment) Route(v int) []int { return append([]int(nil), a.routes[v].Stops...) }

// Routes returns a copy of every vehicle's stop list.
func (a *Assignment) Routes() [][]int {
	out := make([][]int, len(a.routes))
	for v := range a.routes {
		out[v] = a.Route(v)
	}
	return out
}

// First returns the node visited right after the start of vehicle v: the first
// stop, or the end depot for an unused vehicle.
func (a *Assignment) First(v int) int {
	if len(a.routes[v].Stops) == 0 {
		return a.problem.vehicles[v].End
	}
	return a.routes[v].Stops[0]
}

// Next returns the successor of a non-depot node. The last stop of a route
// points at its vehicle's end depot.
func (a *Assignment) Next(node int) (int, bool) {
	if node < 0 || node >= len(a.next) || a.next[node] < 0 {
		return 0, false
	}
	return a.next[node], true
}

// IsEnd reports whether node is the end depot of vehicle v.
func (a *Assignment) IsEnd(v, node int) bool { return a.problem.vehicles[v].End == node }

// VehicleOf returns the vehicle serving a non-depot node, or -1.
func (a *Assignment) VehicleOf(node int) int { return a.vehicleOf[node] }

// RouteArcCost is the arc cost of vehicle v's route.
func (a *Assignment) RouteArcCost(v int) int64 { return a.routes[v].ArcCost }

// ArcCost is the summed arc cost over all routes.
func (a *Assignment) ArcCost() int64 { return a.arcCost }

// ObjectiveValue is arc cost plus fixed costs plus weighted global spans.
func (a *Assignment) ObjectiveValue() int64 { return a.objective }

func (a *Assignment) dim(name string) (int, error) {
	d, ok := a.dimIndex[name]
	if !ok {
		return 0, configErr("cumul", "unknown dimension %q", name)
	}
	return d, nil
}

// Cumul returns the value of a dimension at a non-depot node.
func (a *Assignment) Cumul(node int, name string) (int64, error) {
	d, err := a.dim(name)
	if err != nil {
		return 0, err
	}
	if node < 0 || node >= len(a.vehicleOf) || a.vehicleOf[node] < 0 {
		return 0, fmt.Errorf("cumul: node %d is not on any route", node)
	}
	return a.routes[a.vehicleOf[node]].Cumuls[d][a.position[node]], nil
}

// StartCumul returns the dimension value at vehicle v's start.
func (a *Assignment) StartCumul(v int, name string) (int64, error) {
	d, err := a.dim(name)
	if err != nil {
		return 0, err
	}
	return a.routes[v].Start(d), nil
}

// EndCumul returns the dimension value at vehicle v's end.
func (a *Assignment) EndCumul(v int, name string) (int64, error) {
	d, err := a.dim(name)
	if err != nil {
		return 0, err
	}
	return a.routes[v].End(d), nil
}

// Span returns max end cumul minus min start cumul of a dimension over all vehicles.
func (a *Assignment) Span(name string) (int64, error) {
	d, err := a.dim(name)
	if err != nil {
		return 0, err
	}
	return a.spans[d], nil
}
