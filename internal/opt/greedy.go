// Package opt holds the two routers: the deterministic greedy baseline and
// the annealing-based router with its QUBO formulation and samplers.
package opt

import (
	"math"
	"sort"

	"rasd/internal/model"
	"rasd/internal/plan"
)

// Greedy is the deterministic baseline router. It is the fallback when the
// sampler degrades and the quality floor the annealing router is measured
// against.
type Greedy struct{}

type truckState struct {
	truck    model.Truck
	last     string
	elapsed  float64
	capLeft  float64
	assigned []string
}

// Solve assigns tanks in descending priority order to the feasible truck
// whose last stop is nearest, then orders each truck's stops nearest-neighbor
// from the depot. Ties break on truck index and tank id, so identical inputs
// always produce identical routes.
func (Greedy) Solve(inst *plan.Instance) model.RouteSet {
	states := make([]*truckState, len(inst.Trucks))
	for i, tr := range inst.Trucks {
		states[i] = &truckState{truck: tr, last: model.DepotID, capLeft: tr.Capacity}
	}

	var unserved []string
	for _, pr := range inst.Priorities {
		tid := pr.TankID
		best := -1
		bestDist := math.MaxFloat64
		for i, st := range states {
			if inst.Demand[tid] > st.capLeft {
				continue
			}
			if inst.Closures.Closed(st.last, tid) || inst.Closures.Closed(tid, model.DepotID) {
				continue
			}
			toTank := inst.Matrix.MinBetween(st.last, tid)
			back := inst.Matrix.MinBetween(tid, model.DepotID)
			if st.elapsed+toTank+inst.ServiceMin[tid]+back > st.truck.ShiftMin {
				continue
			}
			d := inst.Matrix.KmBetween(st.last, tid)
			if d < bestDist {
				bestDist = d
				best = i
			}
		}
		if best < 0 {
			unserved = append(unserved, tid)
			continue
		}
		st := states[best]
		st.elapsed += inst.Matrix.MinBetween(st.last, tid) + inst.ServiceMin[tid]
		st.capLeft -= inst.Demand[tid]
		st.assigned = append(st.assigned, tid)
		st.last = tid
	}

	routes := make([]model.Route, 0, len(states))
	for _, st := range states {
		rt, dropped := sequenceRoute(inst, st.truck, st.assigned)
		routes = append(routes, rt)
		unserved = append(unserved, dropped...)
	}
	sort.Strings(unserved)
	return model.RouteSet{Source: model.SourceBaseline, Routes: routes, Unserved: unserved}
}

// sequenceRoute orders a truck's assigned tanks nearest-neighbor from the
// depot, skipping closed edges, and trims the tail until the shift budget
// holds. Trimmed or unreachable tanks are returned as dropped.
func sequenceRoute(inst *plan.Instance, truck model.Truck, assigned []string) (model.Route, []string) {
	remaining := make(map[string]struct{}, len(assigned))
	for _, id := range assigned {
		remaining[id] = struct{}{}
	}

	seq := []string{model.DepotID}
	cur := model.DepotID
	var dropped []string
	for len(remaining) > 0 {
		next := ""
		bestD := math.MaxFloat64
		for id := range remaining {
			if inst.Closures.Closed(cur, id) {
				continue
			}
			d := inst.Matrix.KmBetween(cur, id)
			// Tank id breaks exact distance ties deterministically.
			if d < bestD || (d == bestD && (next == "" || id < next)) {
				bestD = d
				next = id
			}
		}
		if next == "" {
			// Every remaining direct edge is closed; there is no graph to
			// detour on, so the surplus tanks go unserved.
			for id := range remaining {
				dropped = append(dropped, id)
			}
			break
		}
		seq = append(seq, next)
		delete(remaining, next)
		cur = next
	}

	// Trim the tail until travel + service + return fits the shift budget.
	for len(seq) > 1 {
		if fitsShift(inst, truck, seq) {
			break
		}
		dropped = append(dropped, seq[len(seq)-1])
		seq = seq[:len(seq)-1]
	}
	seq = append(seq, model.DepotID)

	rt := model.Route{TruckID: truck.TruckID, Stops: seq}
	for i := 1; i < len(seq); i++ {
		rt.DistanceKm += inst.Matrix.KmBetween(seq[i-1], seq[i])
		rt.DriveMin += inst.Matrix.MinBetween(seq[i-1], seq[i])
	}
	for _, id := range seq {
		rt.ServiceMin += inst.ServiceMin[id]
	}
	sort.Strings(dropped)
	return rt, dropped
}

// fitsShift checks the open sequence (depot-first, no return leg yet)
// including the trip back to the depot.
func fitsShift(inst *plan.Instance, truck model.Truck, seq []string) bool {
	elapsed := 0.0
	for i := 1; i < len(seq); i++ {
		elapsed += inst.Matrix.MinBetween(seq[i-1], seq[i]) + inst.ServiceMin[seq[i]]
	}
	elapsed += inst.Matrix.MinBetween(seq[len(seq)-1], model.DepotID)
	return elapsed <= truck.ShiftMin
}
