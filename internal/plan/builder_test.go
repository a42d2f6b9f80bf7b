package plan

import (
	"errors"
	"testing"

	"rasd/internal/config"
	"rasd/internal/model"
)

var testDepot = &model.Node{Lat: 36.19, Lon: 44.01}

func testTanks() []model.Tank {
	return []model.Tank{
		{TankID: "t1", Lat: 36.20, Lon: 44.02},
		{TankID: "t2", Lat: 36.21, Lon: 44.00},
		{TankID: "t3", Lat: 36.18, Lon: 44.03},
	}
}

func testPriorities() []model.PriorityRecord {
	return []model.PriorityRecord{
		{TankID: "t1", Priority: 0.9, Tier: model.TierHigh, TTOHours: 6},
		{TankID: "t2", Priority: 0.5, Tier: model.TierMedium, TTOHours: 48},
		{TankID: "t3", Priority: 0.2, Tier: model.TierLow, TTOHours: 200},
	}
}

func testTrucks() []model.Truck {
	return []model.Truck{
		{TruckID: "truck-1", Capacity: 10, ShiftMin: 480},
		{TruckID: "truck-2", Capacity: 10, ShiftMin: 480},
	}
}

func TestBuildInstance(t *testing.T) {
	inst, err := BuildInstance(config.Default(), testTanks(), testPriorities(), testDepot, testTrucks(), nil)
	if err != nil {
		t.Fatalf("BuildInstance: %v", err)
	}
	if len(inst.Nodes) != 4 || inst.Nodes[0].ID != model.DepotID {
		t.Fatalf("nodes: %+v", inst.Nodes)
	}
	// Tier-derived demand and service.
	if inst.Demand["t1"] != 3 || inst.ServiceMin["t1"] != 18 {
		t.Fatalf("HIGH demand/service: %v/%v", inst.Demand["t1"], inst.ServiceMin["t1"])
	}
	if inst.Demand["t2"] != 2 || inst.ServiceMin["t2"] != 12 {
		t.Fatalf("MEDIUM demand/service: %v/%v", inst.Demand["t2"], inst.ServiceMin["t2"])
	}
	if inst.Demand["t3"] != 1 || inst.ServiceMin["t3"] != 7 {
		t.Fatalf("LOW demand/service: %v/%v", inst.Demand["t3"], inst.ServiceMin["t3"])
	}
	if inst.CapacityShortfall != 0 {
		t.Fatalf("unexpected shortfall %v", inst.CapacityShortfall)
	}
}

func TestBuildInstanceRanksPriorities(t *testing.T) {
	prs := []model.PriorityRecord{
		{TankID: "t3", Priority: 0.5, Tier: model.TierLow},
		{TankID: "t1", Priority: 0.9, Tier: model.TierHigh},
		{TankID: "t2", Priority: 0.5, Tier: model.TierMedium},
	}
	inst, err := BuildInstance(config.Default(), testTanks(), prs, testDepot, testTrucks(), nil)
	if err != nil {
		t.Fatalf("BuildInstance: %v", err)
	}
	got := []string{inst.Priorities[0].TankID, inst.Priorities[1].TankID, inst.Priorities[2].TankID}
	// Descending score, tank id breaks the 0.5 tie.
	want := []string{"t1", "t2", "t3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranked order: got %v want %v", got, want)
		}
	}
}

func TestBuildInstanceMissingDepot(t *testing.T) {
	_, err := BuildInstance(config.Default(), testTanks(), testPriorities(), nil, testTrucks(), nil)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestBuildInstanceNoTrucks(t *testing.T) {
	_, err := BuildInstance(config.Default(), testTanks(), testPriorities(), testDepot, nil, nil)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestBuildInstanceUnknownTank(t *testing.T) {
	prs := append(testPriorities(), model.PriorityRecord{TankID: "ghost", Priority: 0.8, Tier: model.TierHigh})
	_, err := BuildInstance(config.Default(), testTanks(), prs, testDepot, testTrucks(), nil)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError for unregistered tank, got %v", err)
	}
}

func TestBuildInstanceCapacityShortfall(t *testing.T) {
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 4, ShiftMin: 480}}
	inst, err := BuildInstance(config.Default(), testTanks(), testPriorities(), testDepot, trucks, nil)
	if err != nil {
		t.Fatalf("shortfall must not be an error: %v", err)
	}
	// Total demand 3+2+1=6 against capacity 4.
	if inst.CapacityShortfall != 2 {
		t.Fatalf("shortfall: got %v want 2", inst.CapacityShortfall)
	}
}

func TestBuildInstanceSafetyMargin(t *testing.T) {
	cfg := config.Default()
	cfg.Greedy.SafetyMarginMin = 30
	inst, err := BuildInstance(cfg, testTanks(), testPriorities(), testDepot, testTrucks(), nil)
	if err != nil {
		t.Fatalf("BuildInstance: %v", err)
	}
	if inst.Trucks[0].ShiftMin != 450 {
		t.Fatalf("shift after margin: got %v want 450", inst.Trucks[0].ShiftMin)
	}
}
