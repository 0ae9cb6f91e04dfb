// Package report turns solved assignments into per-vehicle route listings.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"pdproute/internal/model"
	"pdproute/internal/opt"
	"pdproute/internal/routing"
)

// Build lists every vehicle's stops with cumulative distance and capacity, the
// detour ratio of each booking and the route size histogram. Building twice
// from the same assignment gives identical reports.
func Build(m *routing.Model, a *routing.Assignment) (model.Report, error) {
	if a == nil {
		return model.Report{}, routing.ErrNotSolved
	}
	p := m.Problem()
	_, hasCap := m.Dimension(routing.CapacityDimension)
	rep := model.Report{
		Status:        routing.Solved.String(),
		Objective:     a.ObjectiveValue(),
		TotalDistance: a.ArcCost(),
		RouteSizes:    map[int]int{},
	}
	for v := 0; v < a.NumVehicles(); v++ {
		ro := model.RouteOut{Vehicle: v, VehicleID: p.Vehicle(v).ID, Distance: a.RouteArcCost(v), Stops: []model.StopOut{}}
		// prefix[k] is the arc distance from the start to the k-th stop
		stops := a.Route(v)
		prefix := make([]int64, len(stops))
		prev := p.Vehicle(v).Start
		var dist int64
		for k, node := range stops {
			dist += m.ArcCost(prev, node)
			prefix[k] = dist
			prev = node
			loc := p.Location(node)
			so := model.StopOut{Node: node, Label: loc.Label(), Role: loc.Role.String(), BookingID: loc.BookingID, Distance: dist}
			if hasCap {
				c, err := a.Cumul(node, routing.CapacityDimension)
				if err != nil {
					return model.Report{}, fmt.Errorf("report: %w", err)
				}
				so.Capacity = c
			}
			ro.Stops = append(ro.Stops, so)
		}
		ro.Detours = detours(m, stops, prefix)
		rep.RouteSizes[len(stops)]++
		rep.Routes = append(rep.Routes, ro)
	}
	return rep, nil
}

func detours(m *routing.Model, stops []int, prefix []int64) []model.BookingDetour {
	p := m.Problem()
	pos := make(map[int]int, len(stops))
	for k, node := range stops {
		pos[node] = k
	}
	var out []model.BookingDetour
	for k, node := range stops {
		loc := p.Location(node)
		if loc.Role != routing.Pickup {
			continue
		}
		dk, ok := pos[p.Partner(node)]
		if !ok {
			continue
		}
		direct := m.ArcCost(node, p.Partner(node))
		inRoute := prefix[dk] - prefix[k]
		out = append(out, model.BookingDetour{BookingID: loc.BookingID, Direct: direct, InRoute: inRoute, Ratio: ratio(inRoute, direct)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingID < out[j].BookingID })
	return out
}

// ratio is inRoute/direct. A zero direct distance counts as one unit, and 0/0 is 1.
func ratio(inRoute, direct int64) float64 {
	if direct == 0 {
		if inRoute == 0 {
			return 1
		}
		return float64(inRoute)
	}
	return float64(inRoute) / float64(direct)
}

// FromResult builds the report of a finished search. Non-solved results carry
// only their status.
func FromResult(m *routing.Model, res opt.Result) (model.Report, error) {
	rep := model.Report{Status: res.Status.String()}
	if res.Status == routing.Solved {
		var err error
		if rep, err = Build(m, res.Assignment); err != nil {
			return model.Report{}, err
		}
	}
	rep.RunID = res.RunID
	rep.TimeLimited = res.TimeLimited
	rep.Strategy = res.Metrics.Strategy
	rep.ElapsedMs = res.Metrics.Elapsed.Milliseconds()
	return rep, nil
}

// Render writes the console listing. Infeasible and timed out runs get a
// one-line explanation instead of routes; a time-limited solution is flagged.
func Render(w io.Writer, r model.Report) error {
	var b strings.Builder
	if r.Name != "" {
		fmt.Fprintf(&b, "Instance %s\n", r.Name)
	}
	switch r.Status {
	case routing.Solved.String():
	case routing.Infeasible.String():
		fmt.Fprintf(&b, "No solution found: no assignment satisfies the constraints (status %s)\n", r.Status)
		_, err := io.WriteString(w, b.String())
		return err
	case routing.TimedOut.String():
		fmt.Fprintf(&b, "No solution found within the time limit (status %s)\n", r.Status)
		_, err := io.WriteString(w, b.String())
		return err
	default:
		fmt.Fprintf(&b, "No solution (status %s)\n", r.Status)
		_, err := io.WriteString(w, b.String())
		return err
	}
	if r.TimeLimited {
		b.WriteString("Solution found but time-limited: the search stopped before converging\n")
	}
	for _, ro := range r.Routes {
		fmt.Fprintf(&b, "Route for vehicle %d (%s):\n", ro.Vehicle, ro.VehicleID)
		for _, s := range ro.Stops {
			fmt.Fprintf(&b, " %s (capacity: %d, distance: %d) ->", s.Label, s.Capacity, s.Distance)
		}
		b.WriteString(" end\n")
		fmt.Fprintf(&b, "Distance of route: %d\n", ro.Distance)
		for _, d := range ro.Detours {
			fmt.Fprintf(&b, "BookingId: %d, detour ratio: %.3f\n", d.BookingID, d.Ratio)
		}
		b.WriteString("\n")
	}
	sizes := make([]int, 0, len(r.RouteSizes))
	for n := range r.RouteSizes {
		sizes = append(sizes, n)
	}
	sort.Ints(sizes)
	b.WriteString("Route sizes:")
	for _, n := range sizes {
		fmt.Fprintf(&b, " %d=%d", n, r.RouteSizes[n])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total distance of all routes: %d\n", r.TotalDistance)
	fmt.Fprintf(&b, "Objective: %d\n", r.Objective)
	_, err := io.WriteString(w, b.String())
	return err
}
