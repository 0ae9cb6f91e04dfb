package routing

import (
	"math"

	"pdproute/internal/geo"
)

// MaxSpanCoefficient caps every global span coefficient regardless of the model.
const MaxSpanCoefficient int64 = 1 << 32

// objectiveHeadroom bounds coefficient * span so that adding arc and fixed
// costs to it cannot overflow int64.
const objectiveHeadroom = math.MaxInt64 / 4

// TransitFunc returns the increment of a dimension on the arc from -> to.
type TransitFunc = func(from, to int) int64

// Dimension is a cumulative per-vehicle quantity along a route.
type Dimension struct {
	name        string
	transit     [][]int64
	slackMax    int64
	capacity    []int64
	startAtZero bool
	spanCoeff   int64
	lo          map[int]int64
	hi          map[int]int64
}

// Name of the dimension.
func (d *Dimension) Name() string { return d.name }

// Capacity returns the upper bound for vehicle v.
func (d *Dimension) Capacity(v int) int64 { return d.capacity[v] }

// SpanCoefficient is the weight of the global span term in the objective.
func (d *Dimension) SpanCoefficient() int64 { return d.spanCoeff }

// Transit returns the materialised transit of an arc.
func (d *Dimension) Transit(from, to int) int64 { return d.transit[from][to] }

func (d *Dimension) bounds(node, vehicle int) (int64, int64) {
	lo, hi := int64(0), d.capacity[vehicle]
	if v, ok := d.lo[node]; ok && v > lo {
		lo = v
	}
	if v, ok := d.hi[node]; ok && v < hi {
		hi = v
	}
	return lo, hi
}

// AddDimension registers a dimension whose capacity is shared by every vehicle.
func (m *Model) AddDimension(transit TransitFunc, slackMax, capacity int64, startAtZero bool, name string) error {
	caps := make([]int64, m.problem.NumVehicles())
	for i := range caps {
		caps[i] = capacity
	}
	return m.AddDimensionWithVehicleCapacity(transit, slackMax, caps, startAtZero, name)
}

// AddDimensionWithVehicleCapacity registers a dimension with one capacity per vehicle.
func (m *Model) AddDimensionWithVehicleCapacity(transit TransitFunc, slackMax int64, capacities []int64, startAtZero bool, name string) error {
	const op = "add dimension"
	if err := m.configurable(op); err != nil {
		return err
	}
	if name == "" {
		return configErr(op, "empty dimension name")
	}
	if _, dup := m.byName[name]; dup {
		return configErr(op, "dimension %q already registered", name)
	}
	if transit == nil {
		return configErr(op, "dimension %q has no transit function", name)
	}
	if slackMax < 0 {
		return configErr(op, "dimension %q has negative slack %d", name, slackMax)
	}
	if len(capacities) != m.problem.NumVehicles() {
		return configErr(op, "dimension %q has %d capacities for %d vehicles", name, len(capacities), m.problem.NumVehicles())
	}
	caps := make([]int64, len(capacities))
	for i, c := range capacities {
		if c < 0 {
			return configErr(op, "dimension %q has negative capacity %d for vehicle %d", name, c, i)
		}
		// An unbounded capacity (e.g. math.MaxInt64) is clamped to keep sums safe.
		caps[i] = min(c, math.MaxInt64/4)
	}
	n := m.problem.NumNodes()
	tr := make([][]int64, n)
	for i := 0; i < n; i++ {
		tr[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			v := transit(i, j)
			if v > geo.MaxSafeCost || v < -geo.MaxSafeCost {
				return configErr(op, "dimension %q transit %d->%d out of safe range: %d", name, i, j, v)
			}
			tr[i][j] = v
		}
	}
	m.byName[name] = len(m.dims)
	m.dims = append(m.dims, &Dimension{
		name:        name,
		transit:     tr,
		slackMax:    slackMax,
		capacity:    caps,
		startAtZero: startAtZero,
		lo:          map[int]int64{},
		hi:          map[int]int64{},
	})
	return nil
}

// Dimension returns a registered dimension by name.
func (m *Model) Dimension(name string) (*Dimension, bool) {
	i, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.dims[i], true
}

// Dimensions returns the registered dimensions in registration order.
func (m *Model) Dimensions() []*Dimension { return append([]*Dimension(nil), m.dims...) }

// SetGlobalSpanCoefficient penalises max(end cumul) - min(start cumul) across
// vehicles, which balances route lengths instead of only minimising their sum.
func (m *Model) SetGlobalSpanCoefficient(name string, coeff int64) error {
	const op = "set global span coefficient"
	if err := m.configurable(op); err != nil {
		return err
	}
	i, ok := m.byName[name]
	if !ok {
		return configErr(op, "unknown dimension %q", name)
	}
	if coeff < 0 {
		return configErr(op, "negative coefficient %d for %q", coeff, name)
	}
	if err := m.checkSpan(op, m.dims[i], coeff); err != nil {
		return err
	}
	m.dims[i].spanCoeff = coeff
	return nil
}

func (m *Model) checkSpan(op string, d *Dimension, coeff int64) error {
	if coeff > MaxSpanCoefficient {
		return configErr(op, "coefficient %d for %q exceeds %d", coeff, d.name, MaxSpanCoefficient)
	}
	if b := m.spanBound(d); b > 0 && coeff > objectiveHeadroom/b {
		return configErr(op, "coefficient %d for %q overflows with a span of up to %d", coeff, d.name, b)
	}
	return nil
}

// spanBound is an upper bound on the global span of d. Cumuls stay within
// [0, capacity] and grow by at most transit plus slack per arc, from a start
// no higher than the largest cumul range floor.
func (m *Model) spanBound(d *Dimension) int64 {
	var maxCap, step, floor int64
	for _, c := range d.capacity {
		maxCap = max(maxCap, c)
	}
	for _, row := range d.transit {
		for _, v := range row {
			step = max(step, v)
		}
	}
	for _, lo := range d.lo {
		floor = max(floor, lo)
	}
	reach := satMul(satAdd(step, d.slackMax), int64(m.problem.NumNodes()+1))
	return min(maxCap, satAdd(floor, reach))
}

// satAdd and satMul work on non-negative values and saturate at math.MaxInt64.
func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func satMul(a, b int64) int64 {
	if a != 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}

// SetCumulRange narrows the allowed cumul of a dimension at one node.
func (m *Model) SetCumulRange(node int, name string, lo, hi int64) error {
	const op = "set cumul range"
	if err := m.configurable(op); err != nil {
		return err
	}
	i, ok := m.byName[name]
	if !ok {
		return configErr(op, "unknown dimension %q", name)
	}
	if node < 0 || node >= m.problem.NumNodes() {
		return configErr(op, "node %d out of range", node)
	}
	if lo < 0 || hi < lo {
		return configErr(op, "invalid range [%d,%d]", lo, hi)
	}
	m.dims[i].lo[node] = lo
	m.dims[i].hi[node] = hi
	return nil
}
