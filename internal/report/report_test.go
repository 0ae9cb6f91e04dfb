package report

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"pdproute/internal/geo"
	"pdproute/internal/model"
	"pdproute/internal/opt"
	"pdproute/internal/routing"
)

func solvedModel(t *testing.T, routes [][]int, xs ...[2]float64) (*routing.Model, *routing.Assignment) {
	t.Helper()
	locs := []routing.Location{{Role: routing.Depot}}
	for i, x := range xs {
		locs = append(locs,
			routing.Location{BookingID: i + 1, Role: routing.Pickup, Point: geo.Point{Lat: x[0]}},
			routing.Location{BookingID: i + 1, Role: routing.Dropoff, Point: geo.Point{Lat: x[1]}},
		)
	}
	vs := make([]routing.Vehicle, len(routes))
	for i := range vs {
		vs[i] = routing.Vehicle{Capacity: 3}
	}
	p, err := routing.NewProblem(locs, vs)
	if err != nil {
		t.Fatalf("NewProblem: %v", err)
	}
	m, err := routing.NewPickupDeliveryModel(p, routing.Options{Scale: 1})
	if err != nil {
		t.Fatalf("NewPickupDeliveryModel: %v", err)
	}
	a, err := m.NewAssignment(routes)
	if err != nil {
		t.Fatalf("NewAssignment: %v", err)
	}
	return m, a
}

func TestBuildSingleBooking(t *testing.T) {
	m, a := solvedModel(t, [][]int{{1, 2}, {}}, [2]float64{10, 25})
	rep, err := Build(m, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rep.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(rep.Routes))
	}
	r0 := rep.Routes[0]
	if len(r0.Stops) != 2 || r0.Stops[0].Label != "P1" || r0.Stops[1].Label != "D1" {
		t.Fatalf("stops = %+v", r0.Stops)
	}
	if r0.Stops[1].Distance != 15 || r0.Stops[1].Capacity != 1 {
		t.Fatalf("dropoff stop = %+v", r0.Stops[1])
	}
	if len(r0.Detours) != 1 || r0.Detours[0].Ratio != 1.0 {
		t.Fatalf("detours = %+v, want ratio 1.0", r0.Detours)
	}
	if rep.TotalDistance != 15 || r0.Distance != 15 {
		t.Fatalf("distance total=%d route=%d, want 15", rep.TotalDistance, r0.Distance)
	}
	if rep.RouteSizes[2] != 1 || rep.RouteSizes[0] != 1 {
		t.Fatalf("route sizes = %v", rep.RouteSizes)
	}
}

func TestBuildDetourRatio(t *testing.T) {
	// 10 -> 12 -> 20 -> 19: booking 1 rides 10 for a direct 10, booking 2 rides 9 for 7
	m, a := solvedModel(t, [][]int{{1, 3, 2, 4}}, [2]float64{10, 20}, [2]float64{12, 19})
	rep, err := Build(m, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ds := rep.Routes[0].Detours
	if len(ds) != 2 {
		t.Fatalf("detours = %+v", ds)
	}
	if ds[0].BookingID != 1 || ds[0].Ratio != 1.0 {
		t.Fatalf("booking 1 = %+v", ds[0])
	}
	if ds[1].BookingID != 2 || ds[1].InRoute != 9 || ds[1].Direct != 7 {
		t.Fatalf("booking 2 = %+v", ds[1])
	}
}

func TestZeroDirectDistance(t *testing.T) {
	m, a := solvedModel(t, [][]int{{1, 2}}, [2]float64{7, 7})
	rep, err := Build(m, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := rep.Routes[0].Detours[0].Ratio; got != 1.0 {
		t.Fatalf("0/0 ratio = %v, want 1", got)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	m, a := solvedModel(t, [][]int{{1, 3, 2, 4}, {5, 6}}, [2]float64{10, 20}, [2]float64{12, 19}, [2]float64{40, 30})
	first, err := Build(m, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(m, a)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reports differ:\n%+v\n%+v", first, second)
	}
	var b1, b2 bytes.Buffer
	if err := Render(&b1, first); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := Render(&b2, second); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b1.String() != b2.String() {
		t.Fatalf("renders differ")
	}
}

func TestBuildWithoutAssignment(t *testing.T) {
	m, _ := solvedModel(t, [][]int{{1, 2}}, [2]float64{1, 2})
	if _, err := Build(m, nil); err == nil {
		t.Fatalf("nil assignment must fail")
	}
}

func TestRenderSolved(t *testing.T) {
	m, a := solvedModel(t, [][]int{{1, 2}, {}}, [2]float64{10, 25})
	rep, err := FromResult(m, opt.Result{RunID: "run-1", Status: routing.Solved, Assignment: a, Metrics: opt.Metrics{Strategy: "global-cheapest-arc", Elapsed: 3 * time.Millisecond}})
	if err != nil {
		t.Fatalf("FromResult: %v", err)
	}
	if rep.RunID != "run-1" || rep.Strategy != "global-cheapest-arc" || rep.ElapsedMs != 3 {
		t.Fatalf("report header = %+v", rep)
	}
	var buf bytes.Buffer
	if err := Render(&buf, rep); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Route for vehicle 0 (v0):",
		" P1 (capacity: 0, distance: 0) -> D1 (capacity: 1, distance: 15) -> end",
		"Distance of route: 15",
		"BookingId: 1, detour ratio: 1.000",
		"Route sizes: 0=1 2=1",
		"Total distance of all routes: 15",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "time-limited") {
		t.Fatalf("untimed run flagged as time-limited:\n%s", out)
	}
}

func TestRenderDistinguishesOutcomes(t *testing.T) {
	cases := []struct {
		rep  model.Report
		want string
	}{
		{model.Report{Status: "INFEASIBLE"}, "no assignment satisfies the constraints"},
		{model.Report{Status: "TIMED_OUT"}, "No solution found within the time limit"},
		{model.Report{Status: "SOLVED", TimeLimited: true}, "Solution found but time-limited"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		if err := Render(&buf, tc.rep); err != nil {
			t.Fatalf("Render: %v", err)
		}
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("%s: render = %q, want %q", tc.rep.Status, buf.String(), tc.want)
		}
	}
}
