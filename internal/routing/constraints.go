package routing

import "math"

// DefaultMaxDetourRatio bounds in-route pickup->dropoff distance relative to the direct distance.
const DefaultMaxDetourRatio = 1.5

// FirstStopPolicy decides how Location.MustBeFirst is enforced.
type FirstStopPolicy int

const (
	// ForceFirst requires a flagged node to be the first stop of its route.
	ForceFirst FirstStopPolicy = iota
	// ForbidFirst requires cumul(node, distance) > 0, i.e. the node is not reached for free.
	ForbidFirst
)

func (p FirstStopPolicy) String() string {
	if p == ForbidFirst {
		return "forbid-first"
	}
	return "force-first"
}

type pickupDelivery struct {
	dim    int
	ratio  float64
	limit  []int64 // per node: detour limit for the pair it belongs to
	policy FirstStopPolicy
}

// AddPickupDelivery couples every booking pair of the problem: same vehicle,
// pickup before dropoff on distanceDim, and a detour limit of
// ceil(maxDetourRatio * direct distance). A ratio <= 0 means DefaultMaxDetourRatio.
func (m *Model) AddPickupDelivery(distanceDim string, maxDetourRatio float64, policy FirstStopPolicy) error {
	const op = "add pickup delivery"
	if err := m.configurable(op); err != nil {
		return err
	}
	if m.pd != nil {
		return configErr(op, "pickup and delivery constraints already registered")
	}
	di, ok := m.byName[distanceDim]
	if !ok {
		return configErr(op, "unknown dimension %q", distanceDim)
	}
	if maxDetourRatio <= 0 {
		maxDetourRatio = DefaultMaxDetourRatio
	}
	if policy != ForceFirst && policy != ForbidFirst {
		return configErr(op, "unknown first stop policy %d", policy)
	}
	pd := &pickupDelivery{dim: di, ratio: maxDetourRatio, limit: make([]int64, m.problem.NumNodes()), policy: policy}
	for _, pr := range m.problem.pairs {
		direct := m.arc[pr.Pickup][pr.Dropoff]
		lim := int64(math.Ceil(maxDetourRatio * float64(direct)))
		pd.limit[pr.Pickup] = lim
		pd.limit[pr.Dropoff] = lim
	}
	m.pd = pd
	return nil
}

// DetourLimit returns the allowed in-route distance for the booking of node,
// or -1 when no pickup and delivery constraints are registered.
func (m *Model) DetourLimit(node int) int64 {
	if m.pd == nil || m.problem.partner[node] < 0 {
		return -1
	}
	return m.pd.limit[node]
}

// RouteState is a feasible evaluation of one vehicle's route.
type RouteState struct {
	Vehicle int
	Stops   []int
	ArcCost int64
	// Cumuls[d][k]: k=0 is the start depot, k=len(Stops)+1 the end depot.
	Cumuls [][]int64
}

// Empty reports whether the route visits no stops.
func (rs *RouteState) Empty() bool { return len(rs.Stops) == 0 }

// Start returns the start cumul of dimension d.
func (rs *RouteState) Start(d int) int64 { return rs.Cumuls[d][0] }

// End returns the end cumul of dimension d.
func (rs *RouteState) End(d int) int64 { return rs.Cumuls[d][len(rs.Cumuls[d])-1] }

// CheckRoute evaluates a closed route: every pickup on it must be followed by its dropoff.
func (m *Model) CheckRoute(vehicle int, stops []int) (RouteState, error) {
	return m.evalRoute(vehicle, stops, true)
}

// CheckPartialRoute evaluates a route under construction: pickups may still be
// waiting for their dropoff, but a dropoff may never appear without its pickup.
func (m *Model) CheckPartialRoute(vehicle int, stops []int) (RouteState, error) {
	return m.evalRoute(vehicle, stops, false)
}

func (m *Model) evalRoute(vehicle int, stops []int, closed bool) (RouteState, error) {
	p := m.problem
	veh := p.vehicles[vehicle]
	n := len(stops)
	path := make([]int, 0, n+2)
	path = append(path, veh.Start)
	path = append(path, stops...)
	path = append(path, veh.End)

	pos := make(map[int]int, n)
	for k, node := range stops {
		if node < 0 || node >= p.NumNodes() || p.isDepot(node) {
			return RouteState{}, &Violation{Constraint: ConstraintNode, Vehicle: vehicle, Node: node}
		}
		if _, dup := pos[node]; dup {
			return RouteState{}, &Violation{Constraint: ConstraintDuplicate, Vehicle: vehicle, Node: node}
		}
		pos[node] = k + 1
	}

	rs := RouteState{Vehicle: vehicle, Stops: stops, Cumuls: make([][]int64, len(m.dims))}
	// An unused vehicle costs nothing, even when its start and end depots differ.
	for k := 1; k < len(path) && n > 0; k++ {
		rs.ArcCost += m.arc[path[k-1]][path[k]]
	}
	for d, dim := range m.dims {
		cum := make([]int64, len(path))
		lo, hi := dim.bounds(path[0], vehicle)
		c := lo
		if dim.startAtZero && lo > 0 {
			return RouteState{}, &Violation{Constraint: ConstraintSlack, Vehicle: vehicle, Node: path[0], Dimension: dim.name, Value: lo, Limit: 0}
		}
		if c > hi {
			return RouteState{}, &Violation{Constraint: ConstraintCapacity, Vehicle: vehicle, Node: path[0], Dimension: dim.name, Value: c, Limit: hi}
		}
		cum[0] = c
		for k := 1; k < len(path); k++ {
			c += dim.transit[path[k-1]][path[k]]
			lo, hi := dim.bounds(path[k], vehicle)
			if c < lo {
				if lo-c > dim.slackMax {
					return RouteState{}, &Violation{Constraint: ConstraintSlack, Vehicle: vehicle, Node: path[k], Dimension: dim.name, Value: lo - c, Limit: dim.slackMax}
				}
				c = lo
			}
			if c > hi {
				return RouteState{}, &Violation{Constraint: ConstraintCapacity, Vehicle: vehicle, Node: path[k], Dimension: dim.name, Value: c, Limit: hi}
			}
			cum[k] = c
		}
		rs.Cumuls[d] = cum
	}

	for k, node := range stops {
		partner := p.partner[node]
		pk, present := pos[partner]
		switch p.locations[node].Role {
		case Pickup:
			if !present {
				if closed {
					return RouteState{}, &Violation{Constraint: ConstraintPairing, Vehicle: vehicle, Node: node}
				}
				continue
			}
			if pk <= k+1 {
				return RouteState{}, &Violation{Constraint: ConstraintPrecedence, Vehicle: vehicle, Node: node}
			}
		case Dropoff:
			if !present {
				return RouteState{}, &Violation{Constraint: ConstraintPairing, Vehicle: vehicle, Node: node}
			}
			if pk >= k+1 {
				return RouteState{}, &Violation{Constraint: ConstraintPrecedence, Vehicle: vehicle, Node: node}
			}
		}
	}

	if m.pd != nil {
		if err := m.checkPairs(&rs, pos); err != nil {
			return RouteState{}, err
		}
	}
	return rs, nil
}

func (m *Model) checkPairs(rs *RouteState, pos map[int]int) error {
	p := m.problem
	cum := rs.Cumuls[m.pd.dim]
	name := m.dims[m.pd.dim].name
	for k, node := range rs.Stops {
		loc := p.locations[node]
		if loc.MustBeFirst {
			switch m.pd.policy {
			case ForceFirst:
				if k != 0 {
					return &Violation{Constraint: ConstraintFirstStop, Vehicle: rs.Vehicle, Node: node}
				}
			case ForbidFirst:
				if cum[k+1] <= 0 {
					return &Violation{Constraint: ConstraintFirstStop, Vehicle: rs.Vehicle, Node: node}
				}
			}
		}
		if loc.Role != Pickup {
			continue
		}
		dk, ok := pos[p.partner[node]]
		if !ok {
			continue
		}
		cp, cd := cum[k+1], cum[dk]
		if cp > cd {
			return &Violation{Constraint: ConstraintPrecedence, Vehicle: rs.Vehicle, Node: node, Dimension: name, Value: cp, Limit: cd}
		}
		if lim := m.pd.limit[node]; cd-cp > lim {
			return &Violation{Constraint: ConstraintDetour, Vehicle: rs.Vehicle, Node: node, Dimension: name, Value: cd - cp, Limit: lim}
		}
	}
	return nil
}

// Objective is the total cost of a set of routes, one per vehicle: arc costs,
// fixed costs of used vehicles and, per dimension, coefficient times the global span.
func (m *Model) Objective(routes []RouteState) int64 {
	var total int64
	for i := range routes {
		total += routes[i].ArcCost
		if !routes[i].Empty() {
			total += m.problem.vehicles[routes[i].Vehicle].FixedCost
		}
	}
	for d, dim := range m.dims {
		if dim.spanCoeff == 0 {
			continue
		}
		total += dim.spanCoeff * m.span(routes, d)
	}
	return total
}

func (m *Model) span(routes []RouteState, d int) int64 {
	if len(routes) == 0 {
		return 0
	}
	maxEnd, minStart := int64(math.MinInt64), int64(math.MaxInt64)
	for i := range routes {
		maxEnd = max(maxEnd, routes[i].End(d))
		minStart = min(minStart, routes[i].Start(d))
	}
	return maxEnd - minStart
}
