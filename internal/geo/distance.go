// Package geo provides the travel-cost evaluators used by the routing model.
package geo

import (
	"fmt"
	"math"
)

// MaxSafeCost bounds a single arc cost so that route sums cannot overflow int64.
const MaxSafeCost int64 = 1 << 40

// DefaultScale turns coordinate degrees into integer cost units.
const DefaultScale = 10_000

// Point is a lat/lng pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// CostFunc returns the non-negative cost of travelling from one node index to another.
type CostFunc func(from, to int) int64

// Manhattan returns the L1 distance in degrees multiplied by scale, truncated.
func Manhattan(points []Point, scale float64) CostFunc {
	if scale <= 0 {
		scale = DefaultScale
	}
	return func(from, to int) int64 {
		if from == to {
			return 0
		}
		a, b := points[from], points[to]
		return int64((math.Abs(a.Lat-b.Lat) + math.Abs(a.Lng-b.Lng)) * scale)
	}
}

// Haversine returns great-circle distances in whole metres.
func Haversine(points []Point) CostFunc {
	return func(from, to int) int64 {
		if from == to {
			return 0
		}
		a, b := points[from], points[to]
		return int64(math.Round(HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)))
	}
}

// HaversineMeters is the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Matrix serves costs from a precomputed square matrix.
func Matrix(m [][]int64) (CostFunc, error) {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("distance matrix: row %d has %d entries, want %d", i, len(row), n)
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("distance matrix: negative cost %d at [%d][%d]", v, i, j)
			}
		}
	}
	return func(from, to int) int64 {
		if from == to {
			return 0
		}
		return m[from][to]
	}, nil
}

// FreeDepot makes every arc touching one of the depots free, so the vehicle's
// return position does not influence the objective.
func FreeDepot(fn CostFunc, depots ...int) CostFunc {
	free := make(map[int]struct{}, len(depots))
	for _, d := range depots {
		free[d] = struct{}{}
	}
	return func(from, to int) int64 {
		if _, ok := free[from]; ok {
			return 0
		}
		if _, ok := free[to]; ok {
			return 0
		}
		return fn(from, to)
	}
}

// Materialize evaluates fn for all n×n pairs and rejects negative or unsafe costs.
func Materialize(fn CostFunc, n int) ([][]int64, error) {
	out := make([][]int64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			v := fn(i, j)
			if v < 0 {
				return nil, fmt.Errorf("cost %d->%d is negative (%d)", i, j, v)
			}
			if v > MaxSafeCost {
				return nil, fmt.Errorf("cost %d->%d exceeds safe bound (%d > %d)", i, j, v, MaxSafeCost)
			}
			out[i][j] = v
		}
	}
	return out, nil
}
