package opt

import (
	"context"
	"log"
	"sort"

	"rasd/internal/config"
	"rasd/internal/model"
	"rasd/internal/plan"
)

// Anneal is the annealing-based router. It formulates tank→truck assignment
// as a QUBO, dispatches it to a Sampler, decodes the lowest-energy feasible
// sample, and sequences each truck's stops. On any sampler degradation it
// falls back to the Greedy baseline; the planning cycle always gets a usable
// route set.
type Anneal struct {
	Cfg     config.AnnealConfig
	Sampler Sampler
}

// Solve runs the annealing path. The returned RouteSet carries provenance:
// Source records which path produced it and Degraded+Reason explain a
// fallback.
func (a Anneal) Solve(ctx context.Context, inst *plan.Instance) model.RouteSet {
	if a.Sampler == nil {
		return a.fallback(inst, "no sampler configured")
	}
	ap := newAssignmentProblem(inst, a.Cfg)
	if len(ap.tanks) == 0 || len(ap.trucks) == 0 {
		return a.fallback(inst, "empty assignment problem")
	}

	cfg := a.Cfg
	for attempt := 0; attempt < 2; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		samples, err := a.Sampler.Sample(sctx, buildQUBO(ap, cfg), cfg.Reads)
		cancel()
		if err != nil {
			return a.fallback(inst, "sampler error: "+err.Error())
		}
		if len(samples) == 0 {
			return a.fallback(inst, "sampler returned no samples")
		}
		assignment, ok := decodeFeasible(ap, samples)
		if ok {
			return a.buildRoutes(inst, ap, assignment)
		}
		// One repair retry with stiffened constraint weights, then give up.
		cfg.WOnce *= cfg.StiffenFactor
		cfg.WCap *= cfg.StiffenFactor
	}
	return a.fallback(inst, "no feasible sample after retry")
}

func (a Anneal) fallback(inst *plan.Instance, reason string) model.RouteSet {
	log.Printf("router=anneal degraded=true reason=%q falling back to baseline", reason)
	rs := Greedy{}.Solve(inst)
	rs.Degraded = true
	rs.Reason = reason
	return rs
}

// decodeFeasible walks samples in ascending energy and returns the first
// whose decoded assignment respects uniqueness and capacity. A low-energy
// sample can still violate hard constraints; such samples are discarded.
func decodeFeasible(ap assignmentProblem, samples []Sample) (map[int][]int, bool) {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Energy < samples[j].Energy })
	for _, smp := range samples {
		if len(smp.Bits) != len(ap.trucks)*len(ap.tanks) {
			continue
		}
		assignment := make(map[int][]int, len(ap.trucks))
		feasible := true
		for pj := 0; pj < len(ap.tanks) && feasible; pj++ {
			owners := 0
			for ti := 0; ti < len(ap.trucks); ti++ {
				if smp.Bits[ap.varIndex(ti, pj)] != 0 {
					owners++
					assignment[ti] = append(assignment[ti], pj)
				}
			}
			if owners > 1 {
				feasible = false
			}
		}
		if !feasible {
			continue
		}
		for ti, pits := range assignment {
			load := 0.0
			for _, pj := range pits {
				load += ap.inst.Demand[ap.tanks[pj].TankID]
			}
			if load > ap.trucks[ti].Capacity {
				feasible = false
				break
			}
		}
		if feasible {
			return assignment, true
		}
	}
	return nil, false
}

// buildRoutes sequences each truck's assigned tanks with the same
// nearest-neighbor pass the baseline uses, so the two routers differ only in
// assignment quality.
func (a Anneal) buildRoutes(inst *plan.Instance, ap assignmentProblem, assignment map[int][]int) model.RouteSet {
	served := map[string]bool{}
	routes := make([]model.Route, 0, len(inst.Trucks))
	var unserved []string

	for ti, tr := range inst.Trucks {
		var assigned []string
		if ti < len(ap.trucks) {
			for _, pj := range assignment[ti] {
				assigned = append(assigned, ap.tanks[pj].TankID)
			}
		}
		sort.Strings(assigned)
		rt, dropped := sequenceRoute(inst, tr, assigned)
		routes = append(routes, rt)
		unserved = append(unserved, dropped...)
		for _, id := range rt.Stops {
			if id != model.DepotID {
				served[id] = true
			}
		}
	}
	for _, pr := range inst.Priorities {
		if !served[pr.TankID] && !contains(unserved, pr.TankID) {
			unserved = append(unserved, pr.TankID)
		}
	}
	sort.Strings(unserved)
	return model.RouteSet{Source: model.SourceAnneal, Routes: routes, Unserved: unserved}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
