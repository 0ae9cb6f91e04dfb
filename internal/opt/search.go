package opt

import (
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"pdproute/internal/routing"
)

const (
	defaultMaxNonImproving = 200
	snapshotEvery          = 50
)

// searcher holds the state of one Solve call.
type searcher struct {
	m      *routing.Model
	p      *routing.Problem
	b      *budget
	params Params
	runID  string
	rng    *rand.Rand
	log    *log.Logger
	met    *Metrics

	remW       []float64 // random, shaw
	insW       []float64 // greedy, regret2
	progress   rate.Sometimes
	depthLimit int
}

func newSearcher(m *routing.Model, params Params, b *budget, runID string) *searcher {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &searcher{
		m:        m,
		p:        m.Problem(),
		b:        b,
		params:   params,
		runID:    runID,
		rng:      rand.New(rand.NewSource(seed)),
		log:      params.logger(),
		met:      &Metrics{MoveImprovements: map[string]int{}},
		remW:     []float64{1, 1},
		insW:     []float64{1, 1},
		progress: rate.Sometimes{Interval: time.Second},

		depthLimit: depthFirstLimit,
	}
	if len(params.InitialRemovalWeights) == 2 {
		s.remW = []float64{params.InitialRemovalWeights[0], params.InitialRemovalWeights[1]}
	}
	if len(params.InitialInsertionWeights) == 2 {
		s.insW = []float64{params.InitialInsertionWeights[0], params.InitialInsertionWeights[1]}
	}
	return s
}

func (s *searcher) stop() bool {
	if s.params.IterationsLimit > 0 && s.met.Iterations >= s.params.IterationsLimit {
		return true
	}
	return s.b.done()
}

// improve runs local search to a local optimum, then ruin-and-recreate until
// it stalls. Every accepted change strictly lowers the objective.
func (s *searcher) improve(pl *plan) {
	s.descend(pl)
	if !s.params.LNS {
		return
	}
	limit := s.params.MaxNonImproving
	if limit == 0 {
		limit = defaultMaxNonImproving
	}
	for stale := 0; stale < limit && !s.stop(); {
		if s.ruinRecreate(pl) {
			stale = 0
			s.descend(pl)
		} else {
			stale++
		}
	}
	s.met.FinalRemovalWeights = [2]float64{s.remW[0], s.remW[1]}
	s.met.FinalInsertionWeights = [2]float64{s.insW[0], s.insW[1]}
}

type move struct {
	name  string
	apply func(*plan) bool
}

func (s *searcher) descend(pl *plan) {
	moves := []move{
		{"pair-relocate", s.pairRelocate},
		{"pair-exchange", s.pairExchange},
		{"or-opt", s.orOpt},
		{"two-opt", s.twoOpt},
	}
	for !s.stop() {
		s.met.Iterations++
		improved := false
		for _, mv := range moves {
			if mv.apply(pl) {
				s.met.Improvements++
				s.met.MoveImprovements[mv.name]++
				improved = true
				break
			}
			if s.b.done() {
				return
			}
		}
		s.report(pl)
		if !improved {
			return
		}
	}
}

func (s *searcher) report(pl *plan) {
	s.progress.Do(func() {
		s.log.Printf("opt: run=%s iter=%d cost=%d improvements=%d", s.runID, s.met.Iterations, pl.cost, s.met.Improvements)
	})
}

// pairRelocate moves one booking, pickup and dropoff together, to its best
// placement on any vehicle including its own.
func (s *searcher) pairRelocate(pl *plan) bool {
	owner := pl.vehicleOf()
	for _, pr := range s.p.Pairs() {
		v := owner[pr.Pickup]
		rest, err := s.m.CheckRoute(v, without(pl.routes[v].Stops, pr.Pickup, pr.Dropoff))
		if err != nil {
			continue
		}
		trial := pl.clone()
		trial.set(v, rest)
		ins, ok := trial.bestInsertion(pr, s.b)
		if s.b.done() {
			return false
		}
		if !ok {
			continue
		}
		if ins.cost < pl.cost {
			trial.set(ins.vehicle, ins.route)
			*pl = *trial
			return true
		}
	}
	return false
}

// pairExchange swaps two bookings between different vehicles, each placed at
// the cheapest position of its new route.
func (s *searcher) pairExchange(pl *plan) bool {
	owner := pl.vehicleOf()
	pairs := s.p.Pairs()
	for x := 0; x < len(pairs); x++ {
		for y := x + 1; y < len(pairs); y++ {
			a, b := pairs[x], pairs[y]
			va, vb := owner[a.Pickup], owner[b.Pickup]
			if va == vb {
				continue
			}
			if s.b.done() {
				return false
			}
			ra, ok := s.cheapestInRoute(va, without(pl.routes[va].Stops, a.Pickup, a.Dropoff), b)
			if !ok {
				continue
			}
			rb, ok := s.cheapestInRoute(vb, without(pl.routes[vb].Stops, b.Pickup, b.Dropoff), a)
			if !ok {
				continue
			}
			if pl.costWith2(va, ra, vb, rb) < pl.cost {
				pl.routes[va], pl.routes[vb] = ra, rb
				pl.cost = s.m.Objective(pl.routes)
				return true
			}
		}
	}
	return false
}

// cheapestInRoute inserts pr into stops at the position with the lowest arc cost.
func (s *searcher) cheapestInRoute(v int, stops []int, pr routing.Pair) (routing.RouteState, bool) {
	var best routing.RouteState
	bestCost := int64(math.MaxInt64)
	for i := 0; i <= len(stops); i++ {
		for j := i; j <= len(stops); j++ {
			rs, err := s.m.CheckRoute(v, withPair(stops, pr.Pickup, pr.Dropoff, i, j))
			if err != nil {
				continue
			}
			if rs.ArcCost < bestCost {
				best, bestCost = rs, rs.ArcCost
			}
		}
	}
	return best, bestCost != math.MaxInt64
}

// orOpt moves a run of one to three consecutive stops elsewhere in the same route.
func (s *searcher) orOpt(pl *plan) bool {
	for v := range pl.routes {
		stops := pl.routes[v].Stops
		n := len(stops)
		for l := 1; l <= 3 && l < n; l++ {
			for i := 0; i+l <= n; i++ {
				seg := stops[i : i+l]
				rest := make([]int, 0, n-l)
				rest = append(rest, stops[:i]...)
				rest = append(rest, stops[i+l:]...)
				for pos := 0; pos <= len(rest); pos++ {
					if pos == i {
						continue
					}
					if s.b.done() {
						return false
					}
					cand := make([]int, 0, n)
					cand = append(cand, rest[:pos]...)
					cand = append(cand, seg...)
					cand = append(cand, rest[pos:]...)
					if s.tryRoute(pl, v, cand) {
						return true
					}
				}
			}
		}
	}
	return false
}

// twoOpt reverses a stretch of a route.
func (s *searcher) twoOpt(pl *plan) bool {
	for v := range pl.routes {
		stops := pl.routes[v].Stops
		n := len(stops)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				if s.b.done() {
					return false
				}
				cand := append([]int(nil), stops...)
				// reverse segment [i,k]
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				if s.tryRoute(pl, v, cand) {
					return true
				}
			}
		}
	}
	return false
}

// tryRoute commits cand as route v when it is feasible and strictly better.
func (s *searcher) tryRoute(pl *plan, v int, cand []int) bool {
	rs, err := s.m.CheckRoute(v, cand)
	if err != nil {
		return false
	}
	if c := pl.costWith(v, rs); c < pl.cost {
		pl.routes[v] = rs
		pl.cost = c
		return true
	}
	return false
}

// ruinRecreate removes a few bookings and reinserts them, choosing the
// removal and insertion heuristics by roulette over adaptive weights.
func (s *searcher) ruinRecreate(pl *plan) bool {
	s.met.Iterations++
	k := 1 + s.rng.Intn(3)
	op := selectOp(s.remW, s.rng)
	s.met.RemovalSelects[op]++
	ip := selectOp(s.insW, s.rng)
	s.met.InsertSelects[ip]++

	var removed []routing.Pair
	switch op {
	case 0:
		removed = s.randomRemoval(k)
	case 1:
		removed = s.shawRemoval(k)
	}
	accepted := false
	if len(removed) > 0 {
		trial := pl.clone()
		if trial.removePairs(removed) {
			var err error
			switch ip {
			case 0:
				err = s.greedyInsert(trial, removed)
			case 1:
				err = s.regretInsert(trial, removed)
			}
			if err == nil && trial.cost < pl.cost {
				*pl = *trial
				accepted = true
			}
		}
	}
	if accepted {
		s.remW[op] += 0.1
		s.insW[ip] += 0.1
		s.met.Improvements++
		s.met.MoveImprovements["ruin-recreate"]++
	} else {
		// slight penalty for non-acceptance
		s.remW[op] = math.Max(0.01, s.remW[op]*0.999)
		s.insW[ip] = math.Max(0.01, s.insW[ip]*0.999)
	}
	if s.met.Iterations%snapshotEvery == 0 {
		s.met.Snapshots = append(s.met.Snapshots, WeightSnapshot{Iteration: s.met.Iterations, Removal: [2]float64{s.remW[0], s.remW[1]}, Insertion: [2]float64{s.insW[0], s.insW[1]}})
	}
	s.report(pl)
	return accepted
}

func (s *searcher) randomRemoval(k int) []routing.Pair {
	all := s.p.Pairs()
	var removed []routing.Pair
	for i := 0; i < k && len(all) > 0; i++ {
		j := s.rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval picks a random booking and the k-1 bookings whose pickups and
// dropoffs lie closest to it.
func (s *searcher) shawRemoval(k int) []routing.Pair {
	all := s.p.Pairs()
	if len(all) == 0 {
		return nil
	}
	seed := all[s.rng.Intn(len(all))]
	type scored struct {
		pr    routing.Pair
		score int64
	}
	var rel []scored
	for _, pr := range all {
		if pr == seed {
			continue
		}
		score := s.m.ArcCost(seed.Pickup, pr.Pickup) + s.m.ArcCost(seed.Dropoff, pr.Dropoff)
		rel = append(rel, scored{pr: pr, score: score})
	}
	sort.SliceStable(rel, func(i, j int) bool { return rel[i].score < rel[j].score })
	removed := []routing.Pair{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].pr)
	}
	return removed
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
