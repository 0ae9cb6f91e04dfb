package config

import (
	"fmt"
	"strings"
	"time"

	"pdproute/internal/geo"
	"pdproute/internal/model"
	"pdproute/internal/opt"
	"pdproute/internal/routing"
)

// DefaultVehicleCapacity applies when an instance sets neither a fleet nor a capacity.
const DefaultVehicleCapacity = 3

// Build turns an instance into a ready model plus the search parameters it
// asks for. Instances without a depot get one at the origin, placed first.
func Build(in model.ProblemIn) (*routing.Model, opt.Params, error) {
	params, err := buildParams(in.Search)
	if err != nil {
		return nil, params, err
	}
	locs, err := buildLocations(in.Locations)
	if err != nil {
		return nil, params, err
	}
	vehicles, err := buildVehicles(in, locs)
	if err != nil {
		return nil, params, err
	}
	p, err := routing.NewProblem(locs, vehicles)
	if err != nil {
		return nil, params, err
	}
	opts := routing.Options{Scale: in.Scale, MaxRouteDistance: in.MaxRouteDistance, MaxDetourRatio: in.MaxDetourRatio}
	if opts.CapacityMode, err = parseCapacityMode(in.CapacityMode); err != nil {
		return nil, params, err
	}
	if opts.FirstStop, err = parseFirstStop(in.FirstStop); err != nil {
		return nil, params, err
	}
	if opts.Cost, err = buildCost(in, p); err != nil {
		return nil, params, err
	}
	m, err := routing.NewPickupDeliveryModel(p, opts)
	if err != nil {
		return nil, params, err
	}
	return m, params, nil
}

func buildLocations(in []model.LocationIn) ([]routing.Location, error) {
	var out []routing.Location
	hasDepot := false
	for _, l := range in {
		if strings.EqualFold(l.Role, "depot") {
			hasDepot = true
			break
		}
	}
	if !hasDepot {
		out = append(out, routing.Location{Role: routing.Depot})
	}
	for i, l := range in {
		role, err := parseRole(l.Role)
		if err != nil {
			return nil, fmt.Errorf("config: location %d: %w", i, err)
		}
		out = append(out, routing.Location{
			BookingID:   l.BookingID,
			Role:        role,
			Point:       geo.Point{Lat: l.Location.Lat, Lng: l.Location.Lng},
			MustBeFirst: l.MustBeFirst,
		})
	}
	return out, nil
}

func parseRole(s string) (routing.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depot":
		return routing.Depot, nil
	case "pickup", "p":
		return routing.Pickup, nil
	case "dropoff", "drop-off", "delivery", "d":
		return routing.Dropoff, nil
	}
	return 0, &routing.ConfigError{Op: "parse role", Reason: fmt.Sprintf("unknown role %q", s)}
}

func buildVehicles(in model.ProblemIn, locs []routing.Location) ([]routing.Vehicle, error) {
	depot := -1
	maxID := 0
	for i, l := range locs {
		if l.Role == routing.Depot && depot < 0 {
			depot = i
		}
		if l.BookingID > maxID {
			maxID = l.BookingID
		}
	}
	if len(in.Vehicles) > 0 {
		out := make([]routing.Vehicle, len(in.Vehicles))
		for i, v := range in.Vehicles {
			out[i] = routing.Vehicle{ID: v.ID, Start: depot, End: depot, Capacity: v.Capacity, FixedCost: v.FixedCost}
			if v.Start != nil {
				out[i].Start = *v.Start
			}
			if v.End != nil {
				out[i].End = *v.End
			}
		}
		return out, nil
	}
	n := in.VehicleCount
	if n < 0 {
		return nil, &routing.ConfigError{Op: "build fleet", Reason: fmt.Sprintf("negative vehicle count %d", n)}
	}
	if n == 0 {
		n = 2 * maxID
	}
	if n == 0 {
		n = 1
	}
	capacity := in.VehicleCapacity
	if capacity == 0 {
		capacity = DefaultVehicleCapacity
	}
	out := make([]routing.Vehicle, n)
	for i := range out {
		out[i] = routing.Vehicle{Start: depot, End: depot, Capacity: capacity}
	}
	return out, nil
}

func parseCapacityMode(s string) (routing.CapacityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bookings", "count":
		return routing.CountBookings, nil
	case "load", "on-board", "onboard":
		return routing.OnBoardLoad, nil
	}
	return 0, &routing.ConfigError{Op: "parse capacity mode", Reason: fmt.Sprintf("unknown capacity mode %q", s)}
}

func parseFirstStop(s string) (routing.FirstStopPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "force-first":
		return routing.ForceFirst, nil
	case "forbid-first":
		return routing.ForbidFirst, nil
	}
	return 0, &routing.ConfigError{Op: "parse first stop", Reason: fmt.Sprintf("unknown first stop policy %q", s)}
}

// buildCost returns nil for the default scaled Manhattan metric with free depot arcs.
func buildCost(in model.ProblemIn, p *routing.Problem) (geo.CostFunc, error) {
	free := in.FreeDepotArcs == nil || *in.FreeDepotArcs
	wrap := func(fn geo.CostFunc) geo.CostFunc {
		if free {
			return geo.FreeDepot(fn, p.Depots()...)
		}
		return fn
	}
	switch strings.ToLower(strings.TrimSpace(in.Metric)) {
	case "", "manhattan":
		if free {
			return nil, nil
		}
		return geo.Manhattan(p.Points(), in.Scale), nil
	case "haversine":
		return wrap(geo.Haversine(p.Points())), nil
	case "matrix":
		if len(in.Matrix) != p.NumNodes() {
			return nil, &routing.ConfigError{Op: "build cost", Reason: fmt.Sprintf("matrix has %d rows for %d locations", len(in.Matrix), p.NumNodes())}
		}
		fn, err := geo.Matrix(in.Matrix)
		if err != nil {
			return nil, &routing.ConfigError{Op: "build cost", Reason: err.Error()}
		}
		return wrap(fn), nil
	}
	return nil, &routing.ConfigError{Op: "build cost", Reason: fmt.Sprintf("unknown metric %q", in.Metric)}
}

func buildParams(in model.SearchParamsIn) (opt.Params, error) {
	p := opt.DefaultParams()
	if in.FirstSolutionStrategy != "" {
		s, err := opt.ParseStrategy(in.FirstSolutionStrategy)
		if err != nil {
			return p, err
		}
		p.FirstSolutionStrategy = s
	}
	if in.TimeLimitMs != 0 {
		p.TimeLimit = time.Duration(in.TimeLimitMs) * time.Millisecond
	}
	if in.GlobalSpanCoefficient != nil {
		p.GlobalSpanCoefficient = *in.GlobalSpanCoefficient
	}
	if in.IterationsLimit != 0 {
		p.IterationsLimit = in.IterationsLimit
	}
	if in.Seed != 0 {
		p.Seed = in.Seed
	}
	if in.LNS != nil {
		p.LNS = *in.LNS
	}
	if in.MaxNonImproving != 0 {
		p.MaxNonImproving = in.MaxNonImproving
	}
	p.InitialRemovalWeights = in.RemovalWeights
	p.InitialInsertionWeights = in.InsertionWeights
	return p, p.Validate()
}
