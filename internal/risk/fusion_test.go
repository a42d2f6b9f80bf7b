package risk

import (
	"math"
	"testing"

	"rasd/internal/config"
	"rasd/internal/model"
)

func TestRobustZ(t *testing.T) {
	hist := []float64{1, 2, 3, 4, 5, 6, 7}
	// median 4, MAD 2
	z, ok := RobustZ(8, hist)
	if !ok {
		t.Fatal("expected evidence")
	}
	want := (8.0 - 4.0) / (madScale * 2.0)
	if math.Abs(z-want) > 1e-12 {
		t.Fatalf("z: got %v want %v", z, want)
	}
}

func TestRobustZNoEvidence(t *testing.T) {
	if _, ok := RobustZ(5, nil); ok {
		t.Fatal("empty history must yield ok=false")
	}
	if _, ok := RobustZ(math.NaN(), []float64{1, 2, 3}); ok {
		t.Fatal("NaN input must yield ok=false")
	}
	if _, ok := RobustZ(100, []float64{5, 5, 5, 5}); ok {
		t.Fatal("flat history must yield ok=false")
	}
}

func TestRobustZSkipsNaNHistory(t *testing.T) {
	// NaN slots in a persisted window carry no evidence; the z-score over
	// {1..7} with NaN holes must equal the score over {1..7}.
	hist := []float64{1, math.NaN(), 2, 3, 4, math.NaN(), 5, 6, 7}
	z, ok := RobustZ(8, hist)
	if !ok {
		t.Fatal("expected evidence despite NaN holes")
	}
	want := (8.0 - 4.0) / (madScale * 2.0)
	if math.Abs(z-want) > 1e-12 {
		t.Fatalf("z: got %v want %v", z, want)
	}
	if _, ok := RobustZ(8, []float64{math.NaN(), math.NaN()}); ok {
		t.Fatal("all-NaN history must yield ok=false")
	}
}

func TestFlatHistoryScoresZero(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	rec := model.ForecastRecord{TankID: "t1", TTOHours: 999, LevelPct: 0, GasNow: 500, TempC: 20, HumPct: 50}
	hist := model.SensorHistory{
		Gas:   []float64{10, 10, 10, 10, 10},
		TempC: []float64{20, 20, 20, 20, 20},
		Hum:   []float64{50, 50, 50, 50, 50},
	}
	pr := e.Compute(rec, hist)
	if pr.GasAnom != 0 {
		t.Fatalf("gas anomaly on flat history: got %v want exactly 0", pr.GasAnom)
	}
	if pr.EnvAnom != 0 {
		t.Fatalf("env anomaly on flat history: got %v want exactly 0", pr.EnvAnom)
	}
}

func TestNoHistoryScoresZero(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	rec := model.ForecastRecord{TankID: "t1", TTOHours: 999, GasNow: 500, TempC: 40, HumPct: 90}
	pr := e.Compute(rec, model.SensorHistory{})
	if pr.GasAnom != 0 || pr.EnvAnom != 0 {
		t.Fatalf("anomalies without history: gas=%v env=%v want 0,0", pr.GasAnom, pr.EnvAnom)
	}
}

func TestOverflowingTankMaxUrgency(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	pr := e.Compute(model.ForecastRecord{TankID: "t1", TTOHours: 0, LevelPct: 100}, model.SensorHistory{})
	if math.Abs(pr.Base-1.0) > 1e-12 {
		t.Fatalf("base at tto=0 level=100: got %v want 1", pr.Base)
	}
	if pr.Tier != model.TierHigh {
		t.Fatalf("tier: got %s want HIGH", pr.Tier)
	}
}

func TestImminentTTOForcesHigh(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	pr := e.Compute(model.ForecastRecord{TankID: "t1", TTOHours: 20, LevelPct: 0}, model.SensorHistory{})
	if pr.Priority >= 0.45 {
		t.Fatalf("setup: priority %v should be below the MEDIUM threshold", pr.Priority)
	}
	if pr.Tier != model.TierHigh {
		t.Fatalf("tto=20h must force HIGH, got %s", pr.Tier)
	}
}

func TestDistantTTOScoresLow(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	pr := e.Compute(model.ForecastRecord{TankID: "t1", TTOHours: 999, LevelPct: 10}, model.SensorHistory{})
	if pr.Tier != model.TierLow {
		t.Fatalf("tier: got %s want LOW (priority %v)", pr.Tier, pr.Priority)
	}
}

func TestTierThresholdTies(t *testing.T) {
	cfg := config.Default().Risk
	e := NewEngine(cfg)
	// A tie at a threshold lands in the higher tier.
	if got := e.tier(cfg.HighThreshold, 999); got != model.TierHigh {
		t.Fatalf("at high threshold: got %s want HIGH", got)
	}
	if got := e.tier(cfg.MediumThreshold, 999); got != model.TierMedium {
		t.Fatalf("at medium threshold: got %s want MEDIUM", got)
	}
	if got := e.tier(cfg.MediumThreshold-1e-9, 999); got != model.TierLow {
		t.Fatalf("below medium threshold: got %s want LOW", got)
	}
}

func TestNaNInputsNeverPoisonOutput(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	rec := model.ForecastRecord{
		TankID:   "t1",
		TTOHours: math.NaN(),
		LevelPct: math.NaN(),
		GasNow:   math.NaN(),
		TempC:    math.NaN(),
		HumPct:   math.NaN(),
	}
	pr := e.Compute(rec, model.SensorHistory{Gas: []float64{1, 2, 3}, TempC: []float64{1, 2, 3}, Hum: []float64{1, 2, 3}})
	if math.IsNaN(pr.Priority) || math.IsNaN(pr.Base) || math.IsNaN(pr.GasAnom) || math.IsNaN(pr.EnvAnom) {
		t.Fatalf("NaN leaked into record: %+v", pr)
	}
	if pr.TTOHours != 999 {
		t.Fatalf("NaN tto: got %v want 999", pr.TTOHours)
	}
}

func TestComputeDeterministic(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	rec := model.ForecastRecord{TankID: "t1", TTOHours: 36, LevelPct: 70, GasNow: 42, TempC: 31, HumPct: 80}
	hist := model.SensorHistory{
		Gas:   []float64{10, 12, 11, 13, 10, 12, 14},
		TempC: []float64{20, 21, 22, 20, 21, 23, 19},
		Hum:   []float64{50, 52, 49, 51, 53, 48, 50},
	}
	a := e.Compute(rec, hist)
	b := e.Compute(rec, hist)
	if a != b {
		t.Fatalf("not deterministic: %+v vs %+v", a, b)
	}
	if a.Priority < 0 || a.Priority > 1 {
		t.Fatalf("priority out of [0,1]: %v", a.Priority)
	}
}

func TestComputeAllMissingHistory(t *testing.T) {
	e := NewEngine(config.Default().Risk)
	recs := []model.ForecastRecord{
		{TankID: "t1", TTOHours: 10, LevelPct: 80},
		{TankID: "t2", TTOHours: 200, LevelPct: 20},
	}
	out := e.ComputeAll(recs, nil)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].GasAnom != 0 || out[1].GasAnom != 0 {
		t.Fatal("missing histories must contribute zero anomaly")
	}
}
