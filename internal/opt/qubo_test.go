package opt

import (
	"math"
	"testing"

	"rasd/internal/config"
	"rasd/internal/model"
)

func quboInstance(t *testing.T) *QUBO {
	t.Helper()
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.195, Lon: 44.015},
		{TankID: "t2", Lat: 36.200, Lon: 44.005},
	}
	prs := []model.PriorityRecord{
		{TankID: "t1", Priority: 0.9, Tier: model.TierHigh, TTOHours: 6},
		{TankID: "t2", Priority: 0.4, Tier: model.TierLow, TTOHours: 200},
	}
	trucks := []model.Truck{
		{TruckID: "truck-1", Capacity: 10, ShiftMin: 480},
		{TruckID: "truck-2", Capacity: 10, ShiftMin: 480},
	}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, nil)
	ap := newAssignmentProblem(inst, config.Default().Anneal)
	return buildQUBO(ap, config.Default().Anneal)
}

func TestQUBOEnergyMatchesExpansion(t *testing.T) {
	q := &QUBO{N: 3, Linear: []float64{1, -2, 0.5}, Quadratic: map[[2]int]float64{{0, 1}: 3, {1, 2}: -1}, Offset: 7}
	cases := []struct {
		bits []uint8
		want float64
	}{
		{[]uint8{0, 0, 0}, 7},
		{[]uint8{1, 0, 0}, 8},
		{[]uint8{1, 1, 0}, 9},
		{[]uint8{0, 1, 1}, 4.5},
		{[]uint8{1, 1, 1}, 8.5},
	}
	for _, c := range cases {
		if got := q.Energy(c.bits); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("energy(%v): got %v want %v", c.bits, got, c.want)
		}
	}
}

func TestQUBOFlipDeltaConsistent(t *testing.T) {
	q := quboInstance(t)
	bits := make([]uint8, q.N)
	for i := 0; i < q.N; i += 2 {
		bits[i] = 1
	}
	base := q.Energy(bits)
	for v := 0; v < q.N; v++ {
		delta := q.flipDelta(bits, v)
		bits[v] ^= 1
		if got := q.Energy(bits); math.Abs(got-(base+delta)) > 1e-6 {
			t.Fatalf("flip %d: energy %v, base+delta %v", v, got, base+delta)
		}
		bits[v] ^= 1
	}
}

func TestQUBODoubleAssignmentCostsMore(t *testing.T) {
	q := quboInstance(t)
	// Variables: v = truck*2 + tank. Tank 0 on truck 0 only vs. on both.
	single := []uint8{1, 0, 0, 0}
	double := []uint8{1, 0, 1, 0}
	gap := q.Energy(double) - q.Energy(single)
	// Uniqueness contributes 2*WOnce per owner pair; the extra coverage
	// reward must never outweigh it.
	if gap <= 0 {
		t.Fatalf("double assignment must cost more: gap %v", gap)
	}
	if gap < 2*config.Default().Anneal.WOnce-config.Default().Anneal.WPriority*1.4 {
		t.Fatalf("uniqueness penalty too weak: gap %v", gap)
	}
}

func TestQUBOServingBeatsDropping(t *testing.T) {
	q := quboInstance(t)
	nothing := []uint8{0, 0, 0, 0}
	serveHigh := []uint8{1, 0, 0, 0}
	if q.Energy(serveHigh) >= q.Energy(nothing) {
		t.Fatalf("serving the HIGH tank must lower energy: %v vs %v",
			q.Energy(serveHigh), q.Energy(nothing))
	}
}

func TestQUBOCapacityPenalty(t *testing.T) {
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.195, Lon: 44.015},
		{TankID: "t2", Lat: 36.200, Lon: 44.005},
	}
	prs := []model.PriorityRecord{
		{TankID: "t1", Priority: 0.9, Tier: model.TierHigh, TTOHours: 6},
		{TankID: "t2", Priority: 0.8, Tier: model.TierHigh, TTOHours: 8},
	}
	// One truck that can hold a single HIGH tank (demand 3 each).
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 3, ShiftMin: 480}}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, nil)
	ap := newAssignmentProblem(inst, config.Default().Anneal)
	q := buildQUBO(ap, config.Default().Anneal)

	one := []uint8{1, 0}
	both := []uint8{1, 1}
	// load 6 vs cap 3: penalty WCap*(6-3)^2 - WCap*(3-3)^2 = 54, minus the
	// second tank's own gains; the QUBO accepting the overload is fine, the
	// decoder rejects it. Here we only pin the penalty arithmetic.
	wantPenalty := config.Default().Anneal.WCap * 9
	gotPenalty := (q.Energy(both) - q.Energy(one)) - (energyWithoutCapacity(ap, both) - energyWithoutCapacity(ap, one))
	if math.Abs(gotPenalty-wantPenalty) > 1e-6 {
		t.Fatalf("capacity penalty: got %v want %v", gotPenalty, wantPenalty)
	}
}

// energyWithoutCapacity rebuilds the model with WCap zeroed and evaluates it.
func energyWithoutCapacity(ap assignmentProblem, bits []uint8) float64 {
	cfg := config.Default().Anneal
	cfg.WCap = 0
	return buildQUBO(ap, cfg).Energy(bits)
}

func TestAssignmentProblemTopNCut(t *testing.T) {
	var tanks []model.Tank
	var prs []model.PriorityRecord
	coords := []float64{0.001, 0.002, 0.003, 0.004, 0.005}
	for i, d := range coords {
		id := string(rune('a' + i))
		tanks = append(tanks, model.Tank{TankID: id, Lat: 36.19 + d, Lon: 44.01})
		tier := model.TierLow
		score := 0.1 * float64(i+1)
		if i == 4 {
			// Lowest fused score but HIGH tier: must still lead the cut.
			tier = model.TierHigh
			score = 0.05
		}
		prs = append(prs, model.PriorityRecord{TankID: id, Priority: score, Tier: tier, TTOHours: 200})
	}
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 50, ShiftMin: 480}}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, nil)

	cfg := config.Default().Anneal
	cfg.TopN = 2
	ap := newAssignmentProblem(inst, cfg)
	if len(ap.tanks) != 2 {
		t.Fatalf("cut size: got %d want 2", len(ap.tanks))
	}
	// The HIGH tier tank survives the cut ahead of higher-scored LOW tanks.
	if ap.tanks[0].TankID != "e" {
		t.Fatalf("tier must lead the cut: got %s", ap.tanks[0].TankID)
	}
}
