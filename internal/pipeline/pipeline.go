// Package pipeline runs one planning cycle end to end: risk fusion, instance
// assembly, both routers, and KPI computation.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"rasd/internal/config"
	"rasd/internal/kpi"
	"rasd/internal/metrics"
	"rasd/internal/model"
	"rasd/internal/opt"
	"rasd/internal/plan"
	"rasd/internal/risk"
	"rasd/internal/travel"
)

// Inputs is everything a cycle consumes. All fields are read-only snapshots;
// concurrent cycles must each get their own copy.
type Inputs struct {
	Tanks     []model.Tank
	Forecasts []model.ForecastRecord
	Histories map[string]model.SensorHistory
	Depot     *model.Node
	Trucks    []model.Truck
	Closures  []model.ClosurePair

	// Algorithm selects the final route set: "anneal" (default) or
	// "baseline" to skip the sampler entirely.
	Algorithm string
}

type Pipeline struct {
	Cfg     config.Config
	Sampler opt.Sampler
}

// Run executes a cycle. Configuration errors abort with a *plan.ConfigError;
// sampler degradation never does — the plan then carries the baseline result
// with a degraded provenance flag.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (model.Plan, error) {
	start := time.Now()

	engine := risk.NewEngine(p.Cfg.Risk)
	priorities := engine.ComputeAll(in.Forecasts, in.Histories)

	inst, err := plan.BuildInstance(p.Cfg, in.Tanks, priorities, in.Depot, in.Trucks, in.Closures)
	if err != nil {
		metrics.PlanCycles.WithLabelValues("error").Inc()
		return model.Plan{}, err
	}
	if inst.CapacityShortfall > 0 {
		log.Printf("cycle=plan capacity_shortfall=%.0f units: some tanks are structurally unservable", inst.CapacityShortfall)
	}

	// Both routers read the same immutable instance; no synchronization
	// beyond the join is needed.
	var baseline, final model.RouteSet
	baseCh := make(chan model.RouteSet, 1)
	go func() { baseCh <- opt.Greedy{}.Solve(inst) }()

	if in.Algorithm == model.SourceBaseline {
		baseline = <-baseCh
		final = baseline
	} else {
		annealStart := time.Now()
		router := opt.Anneal{Cfg: p.Cfg.Anneal, Sampler: p.Sampler}
		final = router.Solve(ctx, inst)
		metrics.SamplerDuration.Observe(time.Since(annealStart).Seconds())
		baseline = <-baseCh
		if final.Degraded {
			metrics.DegradedCycles.Inc()
		}
	}

	attachPolylines(inst, &baseline, p.Cfg.Travel.PolylineSteps)
	attachPolylines(inst, &final, p.Cfg.Travel.PolylineSteps)

	out := model.Plan{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Source:      final.Source,
		Degraded:    final.Degraded,
		Reason:      final.Reason,
		Priorities:  inst.Priorities,
		Baseline:    baseline,
		Final:       final,
		BaselineKPI: kpi.Compute(p.Cfg.KPI, baseline, inst.Priorities, inst.Matrix),
		FinalKPI:    kpi.Compute(p.Cfg.KPI, final, inst.Priorities, inst.Matrix),
	}

	metrics.PlanCycles.WithLabelValues(out.Source).Inc()
	metrics.PlanDuration.Observe(time.Since(start).Seconds())
	log.Printf("cycle=plan id=%s source=%s degraded=%v served=%d missed=%d dist_km=%.1f dur=%s",
		out.ID, out.Source, out.Degraded, out.FinalKPI.ServedTotal, out.FinalKPI.MissedTotal,
		out.FinalKPI.DistanceKm, time.Since(start).Round(time.Millisecond))
	return out, nil
}

// attachPolylines samples display points for every leg of every route.
func attachPolylines(inst *plan.Instance, rs *model.RouteSet, steps int) {
	for ri := range rs.Routes {
		rt := &rs.Routes[ri]
		var line [][2]float64
		for i := 1; i < len(rt.Stops); i++ {
			a := inst.Nodes[inst.Matrix.Index[rt.Stops[i-1]]]
			b := inst.Nodes[inst.Matrix.Index[rt.Stops[i]]]
			leg := travel.SampleLeg(a, b, steps)
			if i > 1 {
				leg = leg[1:] // legs share endpoints
			}
			line = append(line, leg...)
		}
		rt.Polyline = line
	}
}
