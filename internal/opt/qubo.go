package opt

import (
	"math"

	"rasd/internal/config"
	"rasd/internal/model"
	"rasd/internal/plan"
)

// QUBO is a quadratic energy function over binary variables. Variable v
// encodes x[truck][tank] = "tank is served by truck"; lower energy is better.
// Linear terms index variables directly; quadratic terms are keyed i<j.
type QUBO struct {
	N         int
	Linear    []float64
	Quadratic map[[2]int]float64
	Offset    float64
}

// Energy evaluates the model for one bit assignment.
func (q *QUBO) Energy(bits []uint8) float64 {
	e := q.Offset
	for i, b := range bits {
		if b != 0 {
			e += q.Linear[i]
		}
	}
	for k, w := range q.Quadratic {
		if bits[k[0]] != 0 && bits[k[1]] != 0 {
			e += w
		}
	}
	return e
}

func (q *QUBO) addLinear(i int, w float64) { q.Linear[i] += w }

func (q *QUBO) addQuad(i, j int, w float64) {
	if i == j {
		q.Linear[i] += w
		return
	}
	if j < i {
		i, j = j, i
	}
	q.Quadratic[[2]int{i, j}] += w
}

// tierWeights returns the unserved penalty and coverage reward multiplier
// for a tier.
func tierWeights(t model.Tier) (unserved, serveMult float64) {
	switch t {
	case model.TierHigh:
		return 4000.0, 1.4
	case model.TierMedium:
		return 1200.0, 1.0
	default:
		return 300.0, 0.7
	}
}

// assignmentProblem is the trimmed view the QUBO is built over: the top-N
// candidates and the participating trucks.
type assignmentProblem struct {
	inst   *plan.Instance
	tanks  []model.PriorityRecord
	trucks []model.Truck
}

func (ap assignmentProblem) varIndex(ti, pj int) int { return ti*len(ap.tanks) + pj }

// newAssignmentProblem cuts the instance down per config. Priorities are
// already ranked; the cut keeps tier order first, score second, so a HIGH
// tank is never squeezed out by better-scored LOW tanks.
func newAssignmentProblem(inst *plan.Instance, cfg config.AnnealConfig) assignmentProblem {
	ranked := append([]model.PriorityRecord(nil), inst.Priorities...)
	// Stable: ties keep the instance's priority-then-id order.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Tier.Rank() < ranked[j-1].Tier.Rank(); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if cfg.TopN > 0 && len(ranked) > cfg.TopN {
		ranked = ranked[:cfg.TopN]
	}
	trucks := inst.Trucks
	if cfg.MaxTrucks > 0 && len(trucks) > cfg.MaxTrucks {
		trucks = trucks[:cfg.MaxTrucks]
	}
	return assignmentProblem{inst: inst, tanks: ranked, trucks: trucks}
}

// buildQUBO assembles the energy model:
//
//   - coverage reward: -WPriority * serveMult(tier) * priority per assignment
//   - travel/lateness: linear cost on the depot leg vs. the TTO deadline
//   - uniqueness: WOnce * s(s-1) plus unserved(tier) * (1-s)^2 per tank
//   - capacity: WCap * (load - cap)^2 per truck
//   - closure: WClosure per co-assigned pair split by a closed edge
//
// Constraint weights must dominate the coverage reward's dynamic range so a
// violation is never energetically preferable to one extra covered tank.
func buildQUBO(ap assignmentProblem, cfg config.AnnealConfig) *QUBO {
	nT := len(ap.trucks)
	nP := len(ap.tanks)
	q := &QUBO{
		N:         nT * nP,
		Linear:    make([]float64, nT*nP),
		Quadratic: map[[2]int]float64{},
	}

	for ti := 0; ti < nT; ti++ {
		for pj := 0; pj < nP; pj++ {
			pr := ap.tanks[pj]
			_, serveMult := tierWeights(pr.Tier)
			v := ap.varIndex(ti, pj)

			q.addLinear(v, -cfg.WPriority*serveMult*pr.Priority)

			travelMin := ap.inst.Matrix.MinBetween(model.DepotID, pr.TankID)
			q.addLinear(v, cfg.WTravel*travelMin)

			deadlineMin := math.Max(30.0, math.Min(12*60.0, pr.TTOHours*60.0))
			late := math.Max(0, travelMin-deadlineMin)
			q.addLinear(v, cfg.WLate*late)
		}
	}

	// Uniqueness + unserved: with s = sum_t x[t][p],
	// WOnce*s(s-1) contributes 2*WOnce per pair, and
	// unserved*(1-s)^2 expands to offset + (-unserved per var) + 2*unserved per pair.
	for pj := 0; pj < nP; pj++ {
		unserved, _ := tierWeights(ap.tanks[pj].Tier)
		q.Offset += unserved
		for ti := 0; ti < nT; ti++ {
			q.addLinear(ap.varIndex(ti, pj), -unserved)
		}
		for a := 0; a < nT; a++ {
			for b := a + 1; b < nT; b++ {
				q.addQuad(ap.varIndex(a, pj), ap.varIndex(b, pj), 2*cfg.WOnce+2*unserved)
			}
		}
	}

	// Capacity: WCap*(sum_j d_j x - cap)^2 per truck.
	for ti := 0; ti < nT; ti++ {
		cap := ap.trucks[ti].Capacity
		q.Offset += cfg.WCap * cap * cap
		for pj := 0; pj < nP; pj++ {
			d := ap.inst.Demand[ap.tanks[pj].TankID]
			q.addLinear(ap.varIndex(ti, pj), cfg.WCap*(d*d-2*cap*d))
			for pk := pj + 1; pk < nP; pk++ {
				dk := ap.inst.Demand[ap.tanks[pk].TankID]
				q.addQuad(ap.varIndex(ti, pj), ap.varIndex(ti, pk), 2*cfg.WCap*d*dk)
			}
		}
	}

	// Closure adjacency: discourage co-assigning two tanks whose direct edge
	// is closed, so the later sequencing step has fewer dead ends.
	if cfg.WClosure > 0 && ap.inst.Closures.Len() > 0 {
		for pj := 0; pj < nP; pj++ {
			for pk := pj + 1; pk < nP; pk++ {
				if !ap.inst.Closures.Closed(ap.tanks[pj].TankID, ap.tanks[pk].TankID) {
					continue
				}
				for ti := 0; ti < nT; ti++ {
					q.addQuad(ap.varIndex(ti, pj), ap.varIndex(ti, pk), cfg.WClosure)
				}
			}
		}
	}

	return q
}
