package routing

import (
	"math"

	"pdproute/internal/geo"
)

// Dimension names registered by NewPickupDeliveryModel.
const (
	DistanceDimension = "distance"
	CapacityDimension = "capacity"
)

// CapacityMode selects the transit of the capacity dimension.
type CapacityMode int

const (
	// CountBookings adds one per pickup and never releases; capacity caps bookings per route.
	CountBookings CapacityMode = iota
	// OnBoardLoad adds one per pickup and releases one per dropoff.
	OnBoardLoad
)

func (c CapacityMode) String() string {
	if c == OnBoardLoad {
		return "load"
	}
	return "bookings"
}

// Options configures NewPickupDeliveryModel.
type Options struct {
	// Cost overrides the arc cost. Nil means scaled Manhattan distance with free depot arcs.
	Cost             geo.CostFunc
	Scale            float64
	MaxRouteDistance int64 // 0 means unbounded
	CapacityMode     CapacityMode
	MaxDetourRatio   float64
	FirstStop        FirstStopPolicy
}

// NewPickupDeliveryModel wires the usual ride-sharing model: arc costs, a
// start-at-zero distance dimension, a per-vehicle capacity dimension and the
// pickup and delivery constraints on distance.
func NewPickupDeliveryModel(p *Problem, opts Options) (*Model, error) {
	cost := opts.Cost
	if cost == nil {
		cost = geo.FreeDepot(geo.Manhattan(p.Points(), opts.Scale), p.Depots()...)
	}
	m, err := NewModel(p, cost)
	if err != nil {
		return nil, err
	}
	maxDist := opts.MaxRouteDistance
	if maxDist <= 0 {
		maxDist = math.MaxInt64
	}
	if err := m.AddDimension(m.ArcCostFunc(), 0, maxDist, true, DistanceDimension); err != nil {
		return nil, err
	}
	transit := p.BookingCountTransit()
	if opts.CapacityMode == OnBoardLoad {
		transit = p.LoadTransit()
	}
	if err := m.AddDimensionWithVehicleCapacity(transit, 0, p.VehicleCapacities(), false, CapacityDimension); err != nil {
		return nil, err
	}
	if err := m.AddPickupDelivery(DistanceDimension, opts.MaxDetourRatio, opts.FirstStop); err != nil {
		return nil, err
	}
	return m, nil
}
