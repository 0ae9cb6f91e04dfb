package model

// Wire types for problem instances, search settings and solution reports.

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type LocationIn struct {
	BookingID   int      `json:"bookingId" yaml:"booking_id"`
	Role        string   `json:"role" yaml:"role"` // depot, pickup or dropoff
	Location    GeoPoint `json:"location" yaml:"location"`
	MustBeFirst bool     `json:"mustBeFirst,omitempty" yaml:"must_be_first,omitempty"`
}

type VehicleIn struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Capacity  int64  `json:"capacity" yaml:"capacity"`
	FixedCost int64  `json:"fixedCost,omitempty" yaml:"fixed_cost,omitempty"`
	// Start and End index the location list; nil means the first depot.
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}

type SearchParamsIn struct {
	FirstSolutionStrategy string    `json:"firstSolutionStrategy,omitempty" yaml:"first_solution_strategy,omitempty"`
	TimeLimitMs           int       `json:"timeLimitMs,omitempty" yaml:"time_limit_ms,omitempty"`
	GlobalSpanCoefficient *int64    `json:"globalSpanCoefficient,omitempty" yaml:"global_span_coefficient,omitempty"`
	IterationsLimit       int       `json:"iterationsLimit,omitempty" yaml:"iterations_limit,omitempty"`
	Seed                  int64     `json:"seed,omitempty" yaml:"seed,omitempty"`
	LNS                   *bool     `json:"lns,omitempty" yaml:"lns,omitempty"`
	MaxNonImproving       int       `json:"maxNonImproving,omitempty" yaml:"max_non_improving,omitempty"`
	RemovalWeights        []float64 `json:"removalWeights,omitempty" yaml:"removal_weights,omitempty"`
	InsertionWeights      []float64 `json:"insertionWeights,omitempty" yaml:"insertion_weights,omitempty"`
}

// ProblemIn is one instance file.
type ProblemIn struct {
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Locations []LocationIn `json:"locations" yaml:"locations"`
	// Vehicles lists the fleet explicitly. When empty, VehicleCount vehicles of
	// VehicleCapacity are created; a zero count means twice the highest booking id.
	Vehicles        []VehicleIn `json:"vehicles,omitempty" yaml:"vehicles,omitempty"`
	VehicleCount    int         `json:"vehicleCount,omitempty" yaml:"vehicle_count,omitempty"`
	VehicleCapacity int64       `json:"vehicleCapacity,omitempty" yaml:"vehicle_capacity,omitempty"`

	Metric           string    `json:"metric,omitempty" yaml:"metric,omitempty"` // manhattan, haversine or matrix
	Scale            float64   `json:"scale,omitempty" yaml:"scale,omitempty"`
	Matrix           [][]int64 `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	FreeDepotArcs    *bool     `json:"freeDepotArcs,omitempty" yaml:"free_depot_arcs,omitempty"`
	MaxRouteDistance int64     `json:"maxRouteDistance,omitempty" yaml:"max_route_distance,omitempty"`
	MaxDetourRatio   float64   `json:"maxDetourRatio,omitempty" yaml:"max_detour_ratio,omitempty"`
	CapacityMode     string    `json:"capacityMode,omitempty" yaml:"capacity_mode,omitempty"` // bookings or load
	FirstStop        string    `json:"firstStop,omitempty" yaml:"first_stop,omitempty"`       // force-first or forbid-first

	Search SearchParamsIn `json:"search,omitempty" yaml:"search,omitempty"`
}

type StopOut struct {
	Node      int    `json:"node"`
	Label     string `json:"label"`
	Role      string `json:"role"`
	BookingID int    `json:"bookingId"`
	Distance  int64  `json:"distance"`
	Capacity  int64  `json:"capacity"`
}

type BookingDetour struct {
	BookingID int     `json:"bookingId"`
	Direct    int64   `json:"direct"`
	InRoute   int64   `json:"inRoute"`
	Ratio     float64 `json:"ratio"`
}

type RouteOut struct {
	Vehicle   int             `json:"vehicle"`
	VehicleID string          `json:"vehicleId"`
	Stops     []StopOut       `json:"stops"`
	Distance  int64           `json:"distance"`
	Detours   []BookingDetour `json:"detours,omitempty"`
}

// Report is the rendered outcome of one search.
type Report struct {
	RunID         string      `json:"runId,omitempty"`
	Name          string      `json:"name,omitempty"`
	Status        string      `json:"status"`
	TimeLimited   bool        `json:"timeLimited,omitempty"`
	Strategy      string      `json:"strategy,omitempty"`
	Objective     int64       `json:"objective"`
	TotalDistance int64       `json:"totalDistance"`
	Routes        []RouteOut  `json:"routes,omitempty"`
	RouteSizes    map[int]int `json:"routeSizes,omitempty"` // stops per route -> number of routes
	ElapsedMs     int64       `json:"elapsedMs,omitempty"`
}
