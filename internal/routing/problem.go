// Package routing holds the pickup-and-delivery routing model: the problem
// instance, cumulative dimensions, pairing constraints and solved assignments.
package routing

import (
	"sort"
	"strconv"

	"pdproute/internal/geo"
)

// Role of a location within a booking.
type Role int

const (
	Depot Role = iota
	Pickup
	Dropoff
)

func (r Role) String() string {
	switch r {
	case Depot:
		return "DEPOT"
	case Pickup:
		return "PICKUP"
	case Dropoff:
		return "DROPOFF"
	default:
		return "UNKNOWN"
	}
}

// Location is one node of the problem.
type Location struct {
	BookingID   int
	Role        Role
	Point       geo.Point
	MustBeFirst bool
}

// Label renders the location as role initial plus booking id, e.g. P12.
func (l Location) Label() string {
	return l.Role.String()[:1] + strconv.Itoa(l.BookingID)
}

// Vehicle serves one route from Start to End. Both must be depot nodes.
type Vehicle struct {
	ID        string
	Start     int
	End       int
	Capacity  int64
	FixedCost int64
}

// Pair couples the pickup and dropoff node of a booking.
type Pair struct {
	BookingID int
	Pickup    int
	Dropoff   int
}

// Problem is the immutable instance: locations, vehicles and the booking pairs.
type Problem struct {
	locations []Location
	vehicles  []Vehicle
	pairs     []Pair
	partner   []int
	depots    []int
}

// NewProblem validates the locations and vehicles. Every pickup must have exactly
// one dropoff with the same booking id and vice versa.
func NewProblem(locations []Location, vehicles []Vehicle) (*Problem, error) {
	const op = "new problem"
	if len(locations) == 0 {
		return nil, configErr(op, "no locations")
	}
	if len(vehicles) == 0 {
		return nil, configErr(op, "no vehicles")
	}
	p := &Problem{
		locations: append([]Location(nil), locations...),
		vehicles:  append([]Vehicle(nil), vehicles...),
		partner:   make([]int, len(locations)),
	}
	pickups := map[int]int{}
	dropoffs := map[int]int{}
	for i, l := range locations {
		p.partner[i] = -1
		switch l.Role {
		case Depot:
			p.depots = append(p.depots, i)
		case Pickup:
			if _, dup := pickups[l.BookingID]; dup {
				return nil, configErr(op, "booking %d has more than one pickup", l.BookingID)
			}
			pickups[l.BookingID] = i
		case Dropoff:
			if _, dup := dropoffs[l.BookingID]; dup {
				return nil, configErr(op, "booking %d has more than one dropoff", l.BookingID)
			}
			dropoffs[l.BookingID] = i
		default:
			return nil, configErr(op, "location %d has unknown role %d", i, l.Role)
		}
	}
	if len(p.depots) == 0 {
		return nil, configErr(op, "no depot location")
	}
	for id, pi := range pickups {
		di, ok := dropoffs[id]
		if !ok {
			return nil, configErr(op, "booking %d has pickup but no dropoff", id)
		}
		p.pairs = append(p.pairs, Pair{BookingID: id, Pickup: pi, Dropoff: di})
		p.partner[pi] = di
		p.partner[di] = pi
	}
	for id := range dropoffs {
		if _, ok := pickups[id]; !ok {
			return nil, configErr(op, "booking %d has dropoff but no pickup", id)
		}
	}
	sort.Slice(p.pairs, func(i, j int) bool { return p.pairs[i].Pickup < p.pairs[j].Pickup })
	for i, v := range vehicles {
		if v.Capacity < 0 {
			return nil, configErr(op, "vehicle %d has negative capacity %d", i, v.Capacity)
		}
		if v.FixedCost < 0 {
			return nil, configErr(op, "vehicle %d has negative fixed cost %d", i, v.FixedCost)
		}
		if !p.isDepot(v.Start) || !p.isDepot(v.End) {
			return nil, configErr(op, "vehicle %d start/end (%d,%d) must be depot nodes", i, v.Start, v.End)
		}
		if p.vehicles[i].ID == "" {
			p.vehicles[i].ID = "v" + strconv.Itoa(i)
		}
	}
	return p, nil
}

func (p *Problem) isDepot(node int) bool {
	return node >= 0 && node < len(p.locations) && p.locations[node].Role == Depot
}

// NumNodes is the number of locations, depots included.
func (p *Problem) NumNodes() int { return len(p.locations) }

// NumVehicles is the fleet size.
func (p *Problem) NumVehicles() int { return len(p.vehicles) }

// Location returns the location at a node index.
func (p *Problem) Location(node int) Location { return p.locations[node] }

// Locations returns a copy of all locations.
func (p *Problem) Locations() []Location { return append([]Location(nil), p.locations...) }

// Vehicle returns the vehicle at an index.
func (p *Problem) Vehicle(v int) Vehicle { return p.vehicles[v] }

// Pairs returns the booking pairs ordered by pickup node.
func (p *Problem) Pairs() []Pair { return append([]Pair(nil), p.pairs...) }

// Partner returns the other node of the booking, or -1 for depots.
func (p *Problem) Partner(node int) int { return p.partner[node] }

// IsDepot reports whether node is a depot.
func (p *Problem) IsDepot(node int) bool { return p.isDepot(node) }

// Depots returns the depot node indices.
func (p *Problem) Depots() []int { return append([]int(nil), p.depots...) }

// Points returns the coordinates of every node, for building cost functions.
func (p *Problem) Points() []geo.Point {
	out := make([]geo.Point, len(p.locations))
	for i, l := range p.locations {
		out[i] = l.Point
	}
	return out
}

// VehicleCapacities returns the per-vehicle capacity array.
func (p *Problem) VehicleCapacities() []int64 {
	out := make([]int64, len(p.vehicles))
	for i, v := range p.vehicles {
		out[i] = v.Capacity
	}
	return out
}

// BookingCountTransit counts bookings picked up: +1 leaving a pickup, 0 otherwise.
// The cumulative value never decreases, so the capacity bounds bookings per vehicle.
func (p *Problem) BookingCountTransit() func(from, to int) int64 {
	return func(from, _ int) int64 {
		if p.locations[from].Role == Pickup {
			return 1
		}
		return 0
	}
}

// LoadTransit models on-board load: +1 leaving a pickup, -1 leaving a dropoff.
func (p *Problem) LoadTransit() func(from, to int) int64 {
	return func(from, _ int) int64 {
		switch p.locations[from].Role {
		case Pickup:
			return 1
		case Dropoff:
			return -1
		}
		return 0
	}
}
