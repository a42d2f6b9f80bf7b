// Package risk fuses forecast and sensor signals into per-tank priorities.
package risk

import (
	"math"

	"rasd/internal/config"
	"rasd/internal/model"
)

// noForecastTTO stands in for a missing or NaN time-to-overflow: far enough
// out that the TTO component is negligible.
const noForecastTTO = 999.0

// Engine computes priority scores and tiers. It is stateless apart from its
// configuration and safe for concurrent use.
type Engine struct {
	cfg config.RiskConfig
}

func NewEngine(cfg config.RiskConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute fuses one tank's forecast record with its sensor history into a
// PriorityRecord. Deterministic: identical inputs always yield identical
// output. A tank with no history gets zero anomaly scores, never an error.
func (e *Engine) Compute(rec model.ForecastRecord, hist model.SensorHistory) model.PriorityRecord {
	tto := rec.TTOHours
	if math.IsNaN(tto) || tto < 0 {
		tto = noForecastTTO
	}
	level := rec.LevelPct
	if math.IsNaN(level) {
		level = 0
	}

	// Base urgency: inverse-time transform of TTO plus fill level. TTO = 0
	// (already overflowing) gives the maximum TTO component.
	rTTO := math.Exp(-math.Min(tto, noForecastTTO) / 24.0)
	rFill := clamp01(level / 100.0)
	base := 0.65*rTTO + 0.35*rFill

	gasAnom := anomalyScore(rec.GasNow, hist.Gas, e.cfg.ZStart, e.cfg.ZScale)
	tempAnom := anomalyScore(rec.TempC, hist.TempC, e.cfg.ZStart, e.cfg.ZScale)
	humAnom := anomalyScore(rec.HumPct, hist.Hum, e.cfg.ZStart, e.cfg.ZScale)
	envAnom := 0.5*tempAnom + 0.5*humAnom

	priority := clamp01(e.cfg.WBase*base + e.cfg.WGas*gasAnom + e.cfg.WEnv*envAnom)

	return model.PriorityRecord{
		TankID:   rec.TankID,
		Priority: priority,
		Tier:     e.tier(priority, tto),
		Base:     base,
		GasAnom:  gasAnom,
		EnvAnom:  envAnom,
		TTOHours: tto,
		LevelPct: level,
	}
}

// tier buckets a priority. Ties at a threshold go to the higher tier; an
// imminent overflow forces HIGH regardless of the fused score.
func (e *Engine) tier(priority, ttoHours float64) model.Tier {
	if ttoHours <= e.cfg.TTOCriticalHours || priority >= e.cfg.HighThreshold {
		return model.TierHigh
	}
	if priority >= e.cfg.MediumThreshold {
		return model.TierMedium
	}
	return model.TierLow
}

// ComputeAll runs Compute over a batch. Histories may be missing entries;
// those tanks simply get zero anomaly contributions.
func (e *Engine) ComputeAll(recs []model.ForecastRecord, hists map[string]model.SensorHistory) []model.PriorityRecord {
	out := make([]model.PriorityRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, e.Compute(rec, hists[rec.TankID]))
	}
	return out
}
