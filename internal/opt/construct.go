package opt

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"pdproute/internal/routing"
)

// errDeadEnd means a strategy could not place every booking. The next strategy gets a go.
var errDeadEnd = errors.New("construction dead end")

// depthFirstLimit bounds the placements tried by the last-resort search.
const depthFirstLimit = 200_000

const depthFirstName = "depth-first"

// construct builds the first feasible plan. The requested strategy goes first,
// then the remaining ones, then a bounded depth-first pair search. It returns
// the name of the strategy that succeeded.
func (s *searcher) construct(first Strategy) (*plan, string, error) {
	order := Strategies()
	if first != Automatic {
		order = append([]Strategy{first}, otherStrategies(order, first)...)
	}
	for _, st := range order {
		pl, err := s.build(st)
		if err == nil {
			return pl, st.String(), nil
		}
		if s.b.done() {
			return nil, "", routing.ErrTimedOut
		}
		if !errors.Is(err, errDeadEnd) {
			return nil, "", err
		}
		s.log.Printf("opt: run=%s strategy=%s dead end, trying next", s.runID, st)
	}
	pl, err := s.depthFirst()
	if err == nil {
		return pl, depthFirstName, nil
	}
	if s.b.done() {
		return nil, "", routing.ErrTimedOut
	}
	return nil, "", err
}

func otherStrategies(list []Strategy, drop Strategy) []Strategy {
	out := make([]Strategy, 0, len(list))
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

func (s *searcher) build(st Strategy) (*plan, error) {
	pl, err := newPlan(s.m)
	if err != nil {
		return nil, errDeadEnd
	}
	pairs := s.p.Pairs()
	if len(pairs) == 0 {
		return pl, nil
	}
	switch st {
	case PathCheapestArc:
		err = s.pathCheapestArc(pl)
	case GlobalCheapestArc:
		err = s.globalCheapestArc(pl)
	case ParallelCheapestInsertion:
		err = s.greedyInsert(pl, pairs)
	case RegretInsertion:
		err = s.regretInsert(pl, pairs)
	default:
		err = errDeadEnd
	}
	if err != nil {
		return nil, err
	}
	return pl, nil
}

// arcGrower extends routes one node at a time. Routes may hold pickups whose
// dropoff is still pending; an extension is only taken when the route can
// still be closed by appending the pending dropoffs.
type arcGrower struct {
	s       *searcher
	stops   [][]int
	visited []bool
	left    int
}

func newArcGrower(s *searcher) *arcGrower {
	g := &arcGrower{s: s, stops: make([][]int, s.p.NumVehicles()), visited: make([]bool, s.p.NumNodes())}
	for node := range g.visited {
		if !s.p.IsDepot(node) {
			g.left++
		}
	}
	return g
}

func (g *arcGrower) tail(v int) int {
	if st := g.stops[v]; len(st) > 0 {
		return st[len(st)-1]
	}
	return g.s.p.Vehicle(v).Start
}

// eligible reports whether node may come next on vehicle v: an unvisited
// pickup, or the dropoff of a pickup already riding on v.
func (g *arcGrower) eligible(v, node int) bool {
	p := g.s.p
	if g.visited[node] || p.IsDepot(node) {
		return false
	}
	if p.Location(node).Role == routing.Pickup {
		return true
	}
	pickup := p.Partner(node)
	for _, n := range g.stops[v] {
		if n == pickup {
			return true
		}
	}
	return false
}

// closing appends the pending dropoffs of stops, nearest first, and returns
// the closed route when it is feasible.
func (g *arcGrower) closing(v int, stops []int) (routing.RouteState, bool) {
	p := g.s.p
	m := g.s.m
	on := map[int]bool{}
	for _, n := range stops {
		on[n] = true
	}
	var pending []int
	for _, n := range stops {
		if p.Location(n).Role == routing.Pickup && !on[p.Partner(n)] {
			pending = append(pending, p.Partner(n))
		}
	}
	route := append([]int(nil), stops...)
	for len(pending) > 0 {
		tail := route[len(route)-1]
		bi := 0
		for i := 1; i < len(pending); i++ {
			ci, cb := m.ArcCost(tail, pending[i]), m.ArcCost(tail, pending[bi])
			if ci < cb || (ci == cb && pending[i] < pending[bi]) {
				bi = i
			}
		}
		route = append(route, pending[bi])
		pending = append(pending[:bi], pending[bi+1:]...)
	}
	rs, err := m.CheckRoute(v, route)
	return rs, err == nil
}

// try appends node to vehicle v when the result stays closable.
func (g *arcGrower) try(v, node int) bool {
	cand := append(append([]int(nil), g.stops[v]...), node)
	if _, err := g.s.m.CheckPartialRoute(v, cand); err != nil {
		return false
	}
	if _, ok := g.closing(v, cand); !ok {
		return false
	}
	g.stops[v] = cand
	g.visited[node] = true
	g.left--
	return true
}

type arcMove struct {
	vehicle, node int
	cost          int64
}

func (g *arcGrower) moves(v int) []arcMove {
	var out []arcMove
	tail := g.tail(v)
	for node := 0; node < g.s.p.NumNodes(); node++ {
		if g.eligible(v, node) {
			out = append(out, arcMove{vehicle: v, node: node, cost: g.s.m.ArcCost(tail, node)})
		}
	}
	return out
}

func sortMoves(ms []arcMove) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].cost != ms[j].cost {
			return ms[i].cost < ms[j].cost
		}
		if ms[i].node != ms[j].node {
			return ms[i].node < ms[j].node
		}
		return ms[i].vehicle < ms[j].vehicle
	})
}

// finish closes every route into pl.
func (g *arcGrower) finish(pl *plan) error {
	for v := range g.stops {
		rs, ok := g.closing(v, g.stops[v])
		if !ok {
			return errDeadEnd
		}
		for _, n := range rs.Stops {
			if !g.visited[n] {
				g.visited[n] = true
				g.left--
			}
		}
		pl.routes[v] = rs
	}
	pl.cost = g.s.m.Objective(pl.routes)
	if g.left > 0 {
		return errDeadEnd
	}
	return nil
}

// pathCheapestArc fills one vehicle at a time, always following the cheapest
// feasible arc out of the route's last node.
func (s *searcher) pathCheapestArc(pl *plan) error {
	g := newArcGrower(s)
	for v := 0; v < s.p.NumVehicles() && g.left > 0; v++ {
		for g.left > 0 {
			if s.b.done() {
				return routing.ErrTimedOut
			}
			ms := g.moves(v)
			sortMoves(ms)
			moved := false
			for _, mv := range ms {
				if g.try(v, mv.node) {
					moved = true
					break
				}
			}
			if !moved {
				break
			}
		}
		// the route is closed before the next vehicle starts
		rs, ok := g.closing(v, g.stops[v])
		if !ok {
			return errDeadEnd
		}
		for _, n := range rs.Stops {
			if !g.visited[n] {
				g.visited[n] = true
				g.left--
			}
		}
		g.stops[v] = rs.Stops
	}
	return g.finish(pl)
}

// globalCheapestArc grows all routes at once, each step taking the cheapest
// feasible arc over every vehicle.
func (s *searcher) globalCheapestArc(pl *plan) error {
	g := newArcGrower(s)
	for g.left > 0 {
		if s.b.done() {
			return routing.ErrTimedOut
		}
		var ms []arcMove
		for v := 0; v < s.p.NumVehicles(); v++ {
			ms = append(ms, g.moves(v)...)
		}
		sortMoves(ms)
		moved := false
		for _, mv := range ms {
			if g.try(mv.vehicle, mv.node) {
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	return g.finish(pl)
}

// greedyInsert places bookings one at a time, always taking the globally
// cheapest placement. Ties go to the booking with the lowest pickup index.
func (s *searcher) greedyInsert(pl *plan, pairs []routing.Pair) error {
	pending := append([]routing.Pair(nil), pairs...)
	for len(pending) > 0 {
		if s.b.done() {
			return routing.ErrTimedOut
		}
		bestK := -1
		best := insertion{cost: math.MaxInt64}
		for k, pr := range pending {
			ins, ok := pl.bestInsertion(pr, s.b)
			if ok && ins.cost < best.cost {
				best, bestK = ins, k
			}
		}
		if s.b.done() {
			return routing.ErrTimedOut
		}
		if bestK < 0 {
			return errDeadEnd
		}
		pl.set(best.vehicle, best.route)
		pending = append(pending[:bestK], pending[bestK+1:]...)
	}
	return nil
}

// regretInsert places first the booking that loses most if its best vehicle
// is taken away: regret = best on another vehicle minus best overall. A
// booking with a single feasible vehicle has unbounded regret.
func (s *searcher) regretInsert(pl *plan, pairs []routing.Pair) error {
	pending := append([]routing.Pair(nil), pairs...)
	for len(pending) > 0 {
		if s.b.done() {
			return routing.ErrTimedOut
		}
		bestK := -1
		var best insertion
		bestRegret := int64(-1)
		for k, pr := range pending {
			perVehicle := make([]insertion, s.p.NumVehicles())
			for v := range perVehicle {
				perVehicle[v] = insertion{vehicle: -1, cost: math.MaxInt64}
			}
			pl.pairInsertions(pr, s.b, func(ins insertion) {
				if ins.cost < perVehicle[ins.vehicle].cost {
					perVehicle[ins.vehicle] = ins
				}
			})
			first, second := insertion{vehicle: -1, cost: math.MaxInt64}, int64(math.MaxInt64)
			for _, ins := range perVehicle {
				if ins.vehicle < 0 {
					continue
				}
				if ins.cost < first.cost {
					second = first.cost
					first = ins
				} else if ins.cost < second {
					second = ins.cost
				}
			}
			if first.vehicle < 0 {
				continue
			}
			regret := int64(math.MaxInt64)
			if second != math.MaxInt64 {
				regret = second - first.cost
			}
			if regret > bestRegret || (regret == bestRegret && first.cost < best.cost) {
				bestK, best, bestRegret = k, first, regret
			}
		}
		if s.b.done() {
			return routing.ErrTimedOut
		}
		if bestK < 0 {
			return errDeadEnd
		}
		pl.set(best.vehicle, best.route)
		pending = append(pending[:bestK], pending[bestK+1:]...)
	}
	return nil
}

// vehicleSignature identifies vehicles that are interchangeable while empty:
// same depots, fixed cost and capacity on every dimension.
func vehicleSignature(m *routing.Model, v int) string {
	veh := m.Problem().Vehicle(v)
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d/%d/%d", veh.Start, veh.End, veh.Capacity, veh.FixedCost)
	for _, d := range m.Dimensions() {
		fmt.Fprintf(&b, "/%d", d.Capacity(v))
	}
	return b.String()
}

// depthFirst backtracks over booking placements, cheapest first. Only the
// first of several interchangeable empty vehicles is tried.
func (s *searcher) depthFirst() (*plan, error) {
	pl, err := newPlan(s.m)
	if err != nil {
		return nil, routing.ErrInfeasible
	}
	pairs := s.p.Pairs()
	sigs := make([]string, s.p.NumVehicles())
	for v := range sigs {
		sigs[v] = vehicleSignature(s.m, v)
	}
	limit := s.depthLimit
	tried := 0
	capped := false
	var rec func(k int) bool
	rec = func(k int) bool {
		if k == len(pairs) {
			return true
		}
		if tried >= limit {
			capped = true
			return false
		}
		if s.b.done() {
			return false
		}
		var cands []insertion
		seenEmpty := map[string]bool{}
		skip := map[int]bool{}
		for v := range pl.routes {
			if !pl.routes[v].Empty() {
				continue
			}
			if seenEmpty[sigs[v]] {
				skip[v] = true
			}
			seenEmpty[sigs[v]] = true
		}
		pl.pairInsertions(pairs[k], s.b, func(ins insertion) {
			if !skip[ins.vehicle] {
				cands = append(cands, ins)
			}
		})
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].cost < cands[j].cost })
		for _, ins := range cands {
			tried++
			old := pl.routes[ins.vehicle]
			pl.routes[ins.vehicle] = ins.route
			if rec(k + 1) {
				return true
			}
			pl.routes[ins.vehicle] = old
			if tried >= limit {
				capped = true
				return false
			}
			if s.b.done() {
				return false
			}
		}
		return false
	}
	if !rec(0) {
		if !s.b.done() {
			s.log.Printf("opt: run=%s strategy=%s no assignment tried=%d limit_hit=%t", s.runID, depthFirstName, tried, capped)
		}
		return nil, routing.ErrInfeasible
	}
	pl.cost = s.m.Objective(pl.routes)
	return pl, nil
}
