package opt

import (
	"context"
	"math"

	"pdproute/internal/routing"
)

// budget polls the search context. Once it reports done it stays done.
type budget struct {
	ctx     context.Context
	expired bool
}

func (b *budget) done() bool {
	if !b.expired && b.ctx.Err() != nil {
		b.expired = true
	}
	return b.expired
}

// plan is a complete set of routes, one per vehicle. Every route in it has
// passed CheckRoute, so a plan is always a feasible partial solution.
type plan struct {
	m      *routing.Model
	routes []routing.RouteState
	cost   int64
}

func newPlan(m *routing.Model) (*plan, error) {
	n := m.Problem().NumVehicles()
	pl := &plan{m: m, routes: make([]routing.RouteState, n)}
	for v := 0; v < n; v++ {
		rs, err := m.CheckRoute(v, nil)
		if err != nil {
			return nil, err
		}
		pl.routes[v] = rs
	}
	pl.cost = m.Objective(pl.routes)
	return pl, nil
}

func (pl *plan) clone() *plan {
	return &plan{m: pl.m, routes: append([]routing.RouteState(nil), pl.routes...), cost: pl.cost}
}

func (pl *plan) set(v int, rs routing.RouteState) {
	pl.routes[v] = rs
	pl.cost = pl.m.Objective(pl.routes)
}

// costWith is the objective if route v were replaced by rs.
func (pl *plan) costWith(v int, rs routing.RouteState) int64 {
	old := pl.routes[v]
	pl.routes[v] = rs
	c := pl.m.Objective(pl.routes)
	pl.routes[v] = old
	return c
}

// costWith2 is the objective if routes a and b were both replaced.
func (pl *plan) costWith2(a int, ra routing.RouteState, b int, rb routing.RouteState) int64 {
	oldA, oldB := pl.routes[a], pl.routes[b]
	pl.routes[a], pl.routes[b] = ra, rb
	c := pl.m.Objective(pl.routes)
	pl.routes[a], pl.routes[b] = oldA, oldB
	return c
}

func (pl *plan) stops() [][]int {
	out := make([][]int, len(pl.routes))
	for v := range pl.routes {
		out[v] = append([]int{}, pl.routes[v].Stops...)
	}
	return out
}

// vehicleOf maps every routed node to its vehicle; unrouted nodes map to -1.
func (pl *plan) vehicleOf() []int {
	out := make([]int, pl.m.Problem().NumNodes())
	for i := range out {
		out[i] = -1
	}
	for v := range pl.routes {
		for _, node := range pl.routes[v].Stops {
			out[node] = v
		}
	}
	return out
}

// removePairs takes the given bookings off their routes. It fails when a
// shortened route is no longer feasible.
func (pl *plan) removePairs(pairs []routing.Pair) bool {
	drop := map[int]bool{}
	for _, pr := range pairs {
		drop[pr.Pickup] = true
		drop[pr.Dropoff] = true
	}
	for v := range pl.routes {
		kept := make([]int, 0, len(pl.routes[v].Stops))
		for _, node := range pl.routes[v].Stops {
			if !drop[node] {
				kept = append(kept, node)
			}
		}
		if len(kept) == len(pl.routes[v].Stops) {
			continue
		}
		rs, err := pl.m.CheckRoute(v, kept)
		if err != nil {
			return false
		}
		pl.routes[v] = rs
	}
	pl.cost = pl.m.Objective(pl.routes)
	return true
}

func without(stops []int, drop ...int) []int {
	out := make([]int, 0, len(stops))
next:
	for _, s := range stops {
		for _, d := range drop {
			if s == d {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

// withPair puts pickup before stops[i] and dropoff before stops[j], i <= j.
func withPair(stops []int, pickup, dropoff, i, j int) []int {
	out := make([]int, 0, len(stops)+2)
	out = append(out, stops[:i]...)
	out = append(out, pickup)
	out = append(out, stops[i:j]...)
	out = append(out, dropoff)
	out = append(out, stops[j:]...)
	return out
}

// insertion is one feasible placement of a booking.
type insertion struct {
	vehicle int
	route   routing.RouteState
	cost    int64 // plan objective after the insertion
}

// pairInsertions evaluates every placement of pr on every vehicle in order of
// vehicle, pickup position and dropoff position. It stops early when the
// budget expires and reports whether the scan completed.
func (pl *plan) pairInsertions(pr routing.Pair, b *budget, visit func(insertion)) bool {
	for v := range pl.routes {
		base := pl.routes[v].Stops
		for i := 0; i <= len(base); i++ {
			for j := i; j <= len(base); j++ {
				if b.done() {
					return false
				}
				rs, err := pl.m.CheckRoute(v, withPair(base, pr.Pickup, pr.Dropoff, i, j))
				if err != nil {
					continue
				}
				visit(insertion{vehicle: v, route: rs, cost: pl.costWith(v, rs)})
			}
		}
	}
	return true
}

// bestInsertion returns the cheapest placement of pr. Ties keep the first
// placement found, i.e. the lowest vehicle index.
func (pl *plan) bestInsertion(pr routing.Pair, b *budget) (insertion, bool) {
	best := insertion{vehicle: -1, cost: math.MaxInt64}
	pl.pairInsertions(pr, b, func(ins insertion) {
		if ins.cost < best.cost {
			best = ins
		}
	})
	return best, best.vehicle >= 0 && !b.done()
}
