package opt

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"strings"
	"testing"
	"time"

	"pdproute/internal/geo"
	"pdproute/internal/routing"
)

var quiet = log.New(io.Discard, "", 0)

type booking struct {
	pickup, dropoff geo.Point
	first           bool
}

func at(x float64) geo.Point { return geo.Point{Lat: x} }

func newModel(t *testing.T, vehicles []routing.Vehicle, opts routing.Options, bookings ...booking) *routing.Model {
	t.Helper()
	locs := []routing.Location{{Role: routing.Depot}}
	for i, b := range bookings {
		locs = append(locs,
			routing.Location{BookingID: i + 1, Role: routing.Pickup, Point: b.pickup, MustBeFirst: b.first},
			routing.Location{BookingID: i + 1, Role: routing.Dropoff, Point: b.dropoff},
		)
	}
	p, err := routing.NewProblem(locs, vehicles)
	if err != nil {
		t.Fatalf("NewProblem: %v", err)
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	m, err := routing.NewPickupDeliveryModel(p, opts)
	if err != nil {
		t.Fatalf("NewPickupDeliveryModel: %v", err)
	}
	return m
}

func fleet(n int, capacity int64) []routing.Vehicle {
	vs := make([]routing.Vehicle, n)
	for i := range vs {
		vs[i] = routing.Vehicle{Capacity: capacity}
	}
	return vs
}

func testParams() Params {
	p := DefaultParams()
	p.TimeLimit = 0
	p.MaxNonImproving = 30
	p.Logger = quiet
	return p
}

// checkAssignment asserts the hard constraints on a solved model.
func checkAssignment(t *testing.T, m *routing.Model, a *routing.Assignment) {
	t.Helper()
	p := m.Problem()
	seen := map[int]int{}
	for v := 0; v < a.NumVehicles(); v++ {
		capacity := p.Vehicle(v).Capacity
		for _, node := range a.Route(v) {
			seen[node]++
			c, err := a.Cumul(node, routing.CapacityDimension)
			if err != nil {
				t.Fatalf("capacity cumul: %v", err)
			}
			if c < 0 || c > capacity {
				t.Fatalf("node %d capacity cumul %d outside [0,%d]", node, c, capacity)
			}
		}
		if end, _ := a.EndCumul(v, routing.CapacityDimension); end > capacity {
			t.Fatalf("vehicle %d ends with capacity cumul %d > %d", v, end, capacity)
		}
	}
	for node := 0; node < p.NumNodes(); node++ {
		if p.IsDepot(node) {
			continue
		}
		if seen[node] != 1 {
			t.Fatalf("node %d visited %d times", node, seen[node])
		}
	}
	for _, pr := range p.Pairs() {
		if a.VehicleOf(pr.Pickup) != a.VehicleOf(pr.Dropoff) {
			t.Fatalf("booking %d split across vehicles", pr.BookingID)
		}
		cp, _ := a.Cumul(pr.Pickup, routing.DistanceDimension)
		cd, _ := a.Cumul(pr.Dropoff, routing.DistanceDimension)
		if cp > cd {
			t.Fatalf("booking %d: cumul pickup %d > dropoff %d", pr.BookingID, cp, cd)
		}
		direct := m.ArcCost(pr.Pickup, pr.Dropoff)
		if float64(cd-cp) > 1.5*float64(direct)+1 {
			t.Fatalf("booking %d: detour %d over 1.5 x %d", pr.BookingID, cd-cp, direct)
		}
	}
}

func TestSolveSingleBooking(t *testing.T) {
	m := newModel(t, fleet(1, 3), routing.Options{}, booking{pickup: at(10), dropoff: at(25)})
	res, err := Solve(context.Background(), m, testParams())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != routing.Solved || m.Status() != routing.Solved {
		t.Fatalf("status = %s / %s", res.Status, m.Status())
	}
	route := res.Assignment.Route(0)
	if len(route) != 2 || route[0] != 1 || route[1] != 2 {
		t.Fatalf("route = %v, want [1 2]", route)
	}
	cp, _ := m.CumulativeValue(1, routing.DistanceDimension)
	cd, _ := m.CumulativeValue(2, routing.DistanceDimension)
	if cd-cp != m.ArcCost(1, 2) {
		t.Fatalf("in-route distance %d, want direct %d", cd-cp, m.ArcCost(1, 2))
	}
	if res.RunID == "" {
		t.Fatalf("missing run id")
	}
	if got := GetMetrics(res.RunID); len(got) != 1 {
		t.Fatalf("recorded metrics = %v", got)
	}
}

func TestSolveSplitsOnCapacity(t *testing.T) {
	m := newModel(t, fleet(2, 1), routing.Options{},
		booking{pickup: at(10), dropoff: at(20)},
		booking{pickup: at(11), dropoff: at(21)},
	)
	res, err := Solve(context.Background(), m, testParams())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	a := res.Assignment
	if a.VehicleOf(1) == a.VehicleOf(3) {
		t.Fatalf("both bookings on vehicle %d with capacity 1", a.VehicleOf(1))
	}
	checkAssignment(t, m, a)
}

func TestSolveRejectsLongDetour(t *testing.T) {
	// From P1 at 10 the cheapest arc is P2 at 5, which would stretch booking 1 to 20 > 15.
	for _, st := range Strategies() {
		m := newModel(t, fleet(1, 3), routing.Options{},
			booking{pickup: at(10), dropoff: at(20)},
			booking{pickup: at(5), dropoff: at(1)},
		)
		params := testParams()
		params.FirstSolutionStrategy = st
		res, err := Solve(context.Background(), m, params)
		if err != nil {
			t.Fatalf("%s: Solve: %v", st, err)
		}
		checkAssignment(t, m, res.Assignment)
	}
}

func TestSolveInfeasible(t *testing.T) {
	cases := []struct {
		name string
		m    *routing.Model
	}{
		{"zero capacity", newModel(t, fleet(2, 0), routing.Options{}, booking{pickup: at(1), dropoff: at(2)})},
		{"two forced first stops on one vehicle", newModel(t, fleet(1, 3), routing.Options{},
			booking{pickup: at(1), dropoff: at(2), first: true},
			booking{pickup: at(3), dropoff: at(4), first: true},
		)},
	}
	for _, tc := range cases {
		res, err := Solve(context.Background(), tc.m, testParams())
		if !errors.Is(err, routing.ErrInfeasible) {
			t.Fatalf("%s: err = %v, want ErrInfeasible", tc.name, err)
		}
		if res.Status != routing.Infeasible || tc.m.Status() != routing.Infeasible {
			t.Fatalf("%s: status = %s", tc.name, res.Status)
		}
		if res.Assignment != nil {
			t.Fatalf("%s: infeasible result carries an assignment", tc.name)
		}
		if _, err := tc.m.CumulativeValue(1, routing.DistanceDimension); !errors.Is(err, routing.ErrNotSolved) {
			t.Fatalf("%s: cumul after infeasible: %v", tc.name, err)
		}
	}
}

func TestSolveForcedFirstStops(t *testing.T) {
	m := newModel(t, fleet(2, 3), routing.Options{},
		booking{pickup: at(1), dropoff: at(2), first: true},
		booking{pickup: at(3), dropoff: at(4), first: true},
		booking{pickup: at(5), dropoff: at(6)},
	)
	res, err := Solve(context.Background(), m, testParams())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	a := res.Assignment
	for _, node := range []int{1, 3} {
		v := a.VehicleOf(node)
		if a.First(v) != node {
			t.Fatalf("flagged pickup %d is not first on vehicle %d: %v", node, v, a.Route(v))
		}
	}
	checkAssignment(t, m, a)
}

func TestSolveExpiredBudget(t *testing.T) {
	m := newModel(t, fleet(2, 3), routing.Options{},
		booking{pickup: at(1), dropoff: at(9)},
		booking{pickup: at(2), dropoff: at(7)},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	res, err := Solve(ctx, m, testParams())
	switch res.Status {
	case routing.TimedOut:
		if !errors.Is(err, routing.ErrTimedOut) {
			t.Fatalf("timed out with err = %v", err)
		}
	case routing.Solved:
		if err != nil {
			t.Fatalf("solved with err = %v", err)
		}
	default:
		t.Fatalf("status = %s, err = %v; want SOLVED or TIMED_OUT", res.Status, err)
	}
}

func TestSolveEmptyProblemWithExpiredBudget(t *testing.T) {
	m := newModel(t, fleet(1, 3), routing.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, m, testParams())
	if err != nil || res.Status != routing.Solved {
		t.Fatalf("status = %s err = %v, want SOLVED", res.Status, err)
	}
	if res.Assignment.ObjectiveValue() != 0 {
		t.Fatalf("objective = %d", res.Assignment.ObjectiveValue())
	}
}

func TestSolveTwiceIsRejected(t *testing.T) {
	m := newModel(t, fleet(1, 3), routing.Options{}, booking{pickup: at(1), dropoff: at(2)})
	if _, err := Solve(context.Background(), m, testParams()); err != nil {
		t.Fatalf("first Solve: %v", err)
	}
	res, err := Solve(context.Background(), m, testParams())
	if !errors.Is(err, routing.ErrAlreadySearched) {
		t.Fatalf("second Solve: err = %v", err)
	}
	if res.Status != routing.Solved {
		t.Fatalf("status after rejected re-solve = %s", res.Status)
	}
}

func TestSolveRejectsBadParams(t *testing.T) {
	m := newModel(t, fleet(1, 3), routing.Options{}, booking{pickup: at(1), dropoff: at(2)})
	params := testParams()
	params.TimeLimit = -time.Second
	if _, err := Solve(context.Background(), m, params); !errors.Is(err, routing.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	params = testParams()
	params.GlobalSpanCoefficient = 1 << 62
	if _, err := Solve(context.Background(), m, params); !errors.Is(err, routing.ErrConfiguration) {
		t.Fatalf("huge span coefficient: err = %v", err)
	}
	params = testParams()
	params.SpanDimension = "time"
	if _, err := Solve(context.Background(), m, params); !errors.Is(err, routing.ErrConfiguration) {
		t.Fatalf("unknown span dimension: err = %v", err)
	}
	if m.Status() != routing.Unsolved {
		t.Fatalf("rejected params must leave the model unsolved, got %s", m.Status())
	}
}

func TestSolveConsolidatesWithFixedCost(t *testing.T) {
	vehicles := []routing.Vehicle{{Capacity: 3, FixedCost: 1000}, {Capacity: 3, FixedCost: 1000}}
	m := newModel(t, vehicles, routing.Options{},
		booking{pickup: at(10), dropoff: at(20)},
		booking{pickup: at(20), dropoff: at(30)},
	)
	params := testParams()
	params.GlobalSpanCoefficient = 0
	res, err := Solve(context.Background(), m, params)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	a := res.Assignment
	if a.VehicleOf(1) != a.VehicleOf(3) {
		t.Fatalf("fixed cost should put both bookings on one vehicle: %v", a.Routes())
	}
	if a.ObjectiveValue() != 20+1000 {
		t.Fatalf("objective = %d, want 1020", a.ObjectiveValue())
	}
	if res.Metrics.BestCost > res.Metrics.InitialCost {
		t.Fatalf("search worsened the plan: %d > %d", res.Metrics.BestCost, res.Metrics.InitialCost)
	}
}

func TestIterationsLimit(t *testing.T) {
	m := newModel(t, fleet(3, 3), routing.Options{},
		booking{pickup: at(10), dropoff: at(20)},
		booking{pickup: at(15), dropoff: at(25)},
		booking{pickup: at(40), dropoff: at(30)},
	)
	params := testParams()
	params.IterationsLimit = 1
	res, err := Solve(context.Background(), m, params)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Metrics.Iterations != 1 {
		t.Fatalf("iterations = %d, want 1", res.Metrics.Iterations)
	}
	checkAssignment(t, m, res.Assignment)
}

func randomBookings(seed int64, n int) []booking {
	rng := rand.New(rand.NewSource(seed))
	out := make([]booking, n)
	for i := range out {
		out[i] = booking{
			pickup:  geo.Point{Lat: 40 + rng.Float64()/10, Lng: -74 + rng.Float64()/10},
			dropoff: geo.Point{Lat: 40 + rng.Float64()/10, Lng: -74 + rng.Float64()/10},
		}
	}
	return out
}

func TestEveryStrategyHoldsConstraints(t *testing.T) {
	bookings := randomBookings(42, 6)
	for _, st := range append(Strategies(), Automatic) {
		m := newModel(t, fleet(4, 3), routing.Options{Scale: geo.DefaultScale}, bookings...)
		params := testParams()
		params.FirstSolutionStrategy = st
		res, err := Solve(context.Background(), m, params)
		if err != nil {
			t.Fatalf("%s: Solve: %v", st, err)
		}
		if res.Metrics.Strategy == "" {
			t.Fatalf("%s: strategy not recorded", st)
		}
		checkAssignment(t, m, res.Assignment)
		if err := m.Verify(res.Assignment); err != nil {
			t.Fatalf("%s: Verify: %v", st, err)
		}
	}
}

func TestSolveAllIsDeterministic(t *testing.T) {
	bookings := randomBookings(7, 5)
	models := make([]*routing.Model, 3)
	for i := range models {
		models[i] = newModel(t, fleet(3, 3), routing.Options{Scale: geo.DefaultScale}, bookings...)
	}
	params := testParams()
	params.Seed = 7
	results, err := SolveAll(context.Background(), models, params, 2)
	if err != nil {
		t.Fatalf("SolveAll: %v", err)
	}
	want := results[0].Assignment.ObjectiveValue()
	for i, r := range results {
		if r.Status != routing.Solved {
			t.Fatalf("model %d status = %s", i, r.Status)
		}
		if got := r.Assignment.ObjectiveValue(); got != want {
			t.Fatalf("model %d objective = %d, want %d", i, got, want)
		}
	}
	if results[0].RunID == results[1].RunID {
		t.Fatalf("run ids must differ")
	}
}

func TestSolveJobsReportsFailures(t *testing.T) {
	ok := newModel(t, fleet(1, 3), routing.Options{}, booking{pickup: at(1), dropoff: at(2)})
	bad := newModel(t, fleet(1, 0), routing.Options{}, booking{pickup: at(1), dropoff: at(2)})
	results, err := SolveJobs(context.Background(), []Job{{Model: ok, Params: testParams()}, {Model: bad, Params: testParams()}}, 0)
	if !errors.Is(err, routing.ErrInfeasible) {
		t.Fatalf("err = %v, want joined ErrInfeasible", err)
	}
	if results[0].Status != routing.Solved || results[1].Status != routing.Infeasible {
		t.Fatalf("statuses = %s, %s", results[0].Status, results[1].Status)
	}
}

// cancelOnLog cancels the search context once a log line containing marker is
// written, so the budget runs out at a known point of the search.
type cancelOnLog struct {
	marker string
	cancel context.CancelFunc
}

func (w cancelOnLog) Write(p []byte) (int, error) {
	if strings.Contains(string(p), w.marker) {
		w.cancel()
	}
	return len(p), nil
}

func TestSolveBudgetExpiresDuringImprovement(t *testing.T) {
	m := newModel(t, fleet(4, 3), routing.Options{Scale: geo.DefaultScale}, randomBookings(7, 12)...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	params := testParams()
	params.LNS = true
	params.MaxNonImproving = 1_000_000
	params.Logger = log.New(cancelOnLog{marker: "first solution", cancel: cancel}, "", 0)
	res, err := Solve(ctx, m, params)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != routing.Solved || !res.TimeLimited {
		t.Fatalf("status = %s time_limited = %t, want SOLVED and time limited", res.Status, res.TimeLimited)
	}
	if res.Metrics.Iterations != 0 {
		t.Fatalf("iterations = %d after the budget ran out", res.Metrics.Iterations)
	}
	if err := m.Verify(res.Assignment); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	checkAssignment(t, m, res.Assignment)
}

func TestSolveTimeLimitKeepsFirstSolution(t *testing.T) {
	m := newModel(t, fleet(4, 3), routing.Options{Scale: geo.DefaultScale}, randomBookings(11, 12)...)
	params := testParams()
	params.LNS = true
	params.MaxNonImproving = 1_000_000
	params.TimeLimit = 200 * time.Millisecond
	res, err := Solve(context.Background(), m, params)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != routing.Solved || !res.TimeLimited {
		t.Fatalf("status = %s time_limited = %t", res.Status, res.TimeLimited)
	}
	checkAssignment(t, m, res.Assignment)
}

// twoVehicleBoundModel has two otherwise identical vehicles whose distance
// capacities differ: only vehicle 1 can drive the booking.
func twoVehicleBoundModel(t *testing.T) *routing.Model {
	t.Helper()
	locs := []routing.Location{
		{Role: routing.Depot},
		{BookingID: 1, Role: routing.Pickup, Point: at(10)},
		{BookingID: 1, Role: routing.Dropoff, Point: at(20)},
	}
	p, err := routing.NewProblem(locs, fleet(2, 3))
	if err != nil {
		t.Fatalf("NewProblem: %v", err)
	}
	m, err := routing.NewModel(p, geo.FreeDepot(geo.Manhattan(p.Points(), 1), p.Depots()...))
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	if err := m.AddDimensionWithVehicleCapacity(m.ArcCostFunc(), 0, []int64{5, 1000}, true, routing.DistanceDimension); err != nil {
		t.Fatalf("distance dimension: %v", err)
	}
	if err := m.AddDimensionWithVehicleCapacity(p.BookingCountTransit(), 0, p.VehicleCapacities(), false, routing.CapacityDimension); err != nil {
		t.Fatalf("capacity dimension: %v", err)
	}
	if err := m.AddPickupDelivery(routing.DistanceDimension, 0, routing.ForceFirst); err != nil {
		t.Fatalf("AddPickupDelivery: %v", err)
	}
	return m
}

func TestDepthFirstTriesVehiclesWithDifferentCapacities(t *testing.T) {
	m := twoVehicleBoundModel(t)
	if _, err := m.CheckRoute(0, []int{1, 2}); err == nil {
		t.Fatalf("vehicle 0 must not fit the booking")
	}
	if _, err := m.CheckRoute(1, []int{1, 2}); err != nil {
		t.Fatalf("vehicle 1 must fit the booking: %v", err)
	}
	if vehicleSignature(m, 0) == vehicleSignature(m, 1) {
		t.Fatalf("vehicles with different distance capacities share a signature")
	}

	s := newSearcher(m, testParams(), &budget{ctx: context.Background()}, "t")
	pl, err := s.depthFirst()
	if err != nil {
		t.Fatalf("depthFirst: %v", err)
	}
	if got := pl.routes[1].Stops; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("vehicle 1 stops = %v, want [1 2]", got)
	}
	if !pl.routes[0].Empty() {
		t.Fatalf("vehicle 0 stops = %v, want none", pl.routes[0].Stops)
	}
}

func TestDepthFirstReportsLimitHit(t *testing.T) {
	var buf strings.Builder
	lg := log.New(&buf, "", 0)
	infeasible := func() *routing.Model {
		// each booking fits the route length alone, both together do not
		return newModel(t, fleet(1, 3), routing.Options{MaxRouteDistance: 15},
			booking{pickup: at(10), dropoff: at(20)},
			booking{pickup: at(30), dropoff: at(40)})
	}

	params := testParams()
	params.Logger = lg
	s := newSearcher(infeasible(), params, &budget{ctx: context.Background()}, "full")
	if _, err := s.depthFirst(); !errors.Is(err, routing.ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
	if !strings.Contains(buf.String(), "run=full strategy=depth-first no assignment") || !strings.Contains(buf.String(), "limit_hit=false") {
		t.Fatalf("log = %q", buf.String())
	}

	buf.Reset()
	s = newSearcher(infeasible(), params, &budget{ctx: context.Background()}, "capped")
	s.depthLimit = 1
	if _, err := s.depthFirst(); !errors.Is(err, routing.ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
	if !strings.Contains(buf.String(), "run=capped") || !strings.Contains(buf.String(), "limit_hit=true") {
		t.Fatalf("log = %q", buf.String())
	}
}
