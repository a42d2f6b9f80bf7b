package opt

import (
	"reflect"
	"testing"

	"rasd/internal/config"
	"rasd/internal/model"
	"rasd/internal/plan"
)

var testDepot = &model.Node{Lat: 36.190, Lon: 44.010}

func lowPriority(id string, score float64) model.PriorityRecord {
	return model.PriorityRecord{TankID: id, Priority: score, Tier: model.TierLow, TTOHours: 200}
}

func mustInstance(t *testing.T, cfg config.Config, tanks []model.Tank, prs []model.PriorityRecord,
	trucks []model.Truck, closures []model.ClosurePair) *plan.Instance {
	t.Helper()
	inst, err := plan.BuildInstance(cfg, tanks, prs, testDepot, trucks, closures)
	if err != nil {
		t.Fatalf("BuildInstance: %v", err)
	}
	return inst
}

func TestGreedyDropsLowestPriorityOnCapacity(t *testing.T) {
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.195, Lon: 44.015},
		{TankID: "t2", Lat: 36.200, Lon: 44.005},
		{TankID: "t3", Lat: 36.185, Lon: 44.020},
		{TankID: "t4", Lat: 36.205, Lon: 44.012},
	}
	prs := []model.PriorityRecord{
		lowPriority("t1", 0.9),
		lowPriority("t2", 0.5),
		lowPriority("t3", 0.2),
		lowPriority("t4", 0.1),
	}
	// Capacity 3 covers three LOW tanks (1 unit each); the lowest score is
	// the one that goes unserved.
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 3, ShiftMin: 480}}
	rs := Greedy{}.Solve(mustInstance(t, config.Default(), tanks, prs, trucks, nil))

	if !reflect.DeepEqual(rs.Unserved, []string{"t4"}) {
		t.Fatalf("unserved: got %v want [t4]", rs.Unserved)
	}
	if rs.Source != model.SourceBaseline || rs.Degraded {
		t.Fatalf("provenance: %+v", rs)
	}
	stops := rs.Routes[0].Stops
	if stops[0] != model.DepotID || stops[len(stops)-1] != model.DepotID {
		t.Fatalf("route must start and end at the depot: %v", stops)
	}
	if len(stops) != 5 {
		t.Fatalf("stops: got %v", stops)
	}
}

func TestGreedyDeterministicOnIdenticalCoordinates(t *testing.T) {
	// All tanks at the exact same point: every distance ties, so ordering
	// must come from tank ids alone.
	tanks := []model.Tank{
		{TankID: "b", Lat: 36.2, Lon: 44.02},
		{TankID: "c", Lat: 36.2, Lon: 44.02},
		{TankID: "a", Lat: 36.2, Lon: 44.02},
	}
	prs := []model.PriorityRecord{
		lowPriority("b", 0.5),
		lowPriority("c", 0.5),
		lowPriority("a", 0.5),
	}
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 10, ShiftMin: 480}}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, nil)

	first := Greedy{}.Solve(inst)
	second := Greedy{}.Solve(inst)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("solve is not deterministic:\n%+v\n%+v", first, second)
	}
	want := []string{model.DepotID, "a", "b", "c", model.DepotID}
	if !reflect.DeepEqual(first.Routes[0].Stops, want) {
		t.Fatalf("tie-broken order: got %v want %v", first.Routes[0].Stops, want)
	}
}

func TestGreedyRespectsClosures(t *testing.T) {
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.195, Lon: 44.015},
		{TankID: "t2", Lat: 36.200, Lon: 44.005},
		{TankID: "t3", Lat: 36.185, Lon: 44.020},
	}
	prs := []model.PriorityRecord{
		lowPriority("t1", 0.9),
		lowPriority("t2", 0.5),
		lowPriority("t3", 0.2),
	}
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 10, ShiftMin: 480}}
	closures := []model.ClosurePair{{From: "t1", To: "t2"}}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, closures)

	rs := Greedy{}.Solve(inst)
	for _, rt := range rs.Routes {
		for i := 1; i < len(rt.Stops); i++ {
			if inst.Closures.Closed(rt.Stops[i-1], rt.Stops[i]) {
				t.Fatalf("route uses closed edge %s-%s: %v", rt.Stops[i-1], rt.Stops[i], rt.Stops)
			}
		}
	}
}

func TestGreedyClosedDepotEdgeGoesUnserved(t *testing.T) {
	tanks := []model.Tank{{TankID: "t1", Lat: 36.195, Lon: 44.015}}
	prs := []model.PriorityRecord{lowPriority("t1", 0.9)}
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 10, ShiftMin: 480}}
	closures := []model.ClosurePair{{From: model.DepotID, To: "t1"}}
	rs := Greedy{}.Solve(mustInstance(t, config.Default(), tanks, prs, trucks, closures))

	if !reflect.DeepEqual(rs.Unserved, []string{"t1"}) {
		t.Fatalf("unserved: got %v want [t1]", rs.Unserved)
	}
}

func TestGreedyShiftBudgetHolds(t *testing.T) {
	// Tanks far enough apart that a 60 minute shift cannot cover them all.
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.21, Lon: 44.03},
		{TankID: "t2", Lat: 36.05, Lon: 43.90},
		{TankID: "t3", Lat: 36.35, Lon: 43.85},
	}
	prs := []model.PriorityRecord{
		lowPriority("t1", 0.9),
		lowPriority("t2", 0.8),
		lowPriority("t3", 0.7),
	}
	trucks := []model.Truck{{TruckID: "truck-1", Capacity: 10, ShiftMin: 60}}
	inst := mustInstance(t, config.Default(), tanks, prs, trucks, nil)

	rs := Greedy{}.Solve(inst)
	for _, rt := range rs.Routes {
		if rt.DriveMin+rt.ServiceMin > 60+1e-9 {
			t.Fatalf("shift exceeded: drive %v + service %v > 60", rt.DriveMin, rt.ServiceMin)
		}
	}
	served := 0
	for _, rt := range rs.Routes {
		served += len(rt.Stops) - 2
	}
	if served+len(rs.Unserved) != 3 {
		t.Fatalf("tank conservation: served %d unserved %v", served, rs.Unserved)
	}
}

func TestGreedyServesEachTankOnce(t *testing.T) {
	tanks := []model.Tank{
		{TankID: "t1", Lat: 36.195, Lon: 44.015},
		{TankID: "t2", Lat: 36.200, Lon: 44.005},
		{TankID: "t3", Lat: 36.185, Lon: 44.020},
		{TankID: "t4", Lat: 36.205, Lon: 44.012},
	}
	prs := []model.PriorityRecord{
		lowPriority("t1", 0.9),
		lowPriority("t2", 0.7),
		lowPriority("t3", 0.5),
		lowPriority("t4", 0.3),
	}
	trucks := []model.Truck{
		{TruckID: "truck-1", Capacity: 2, ShiftMin: 480},
		{TruckID: "truck-2", Capacity: 2, ShiftMin: 480},
	}
	rs := Greedy{}.Solve(mustInstance(t, config.Default(), tanks, prs, trucks, nil))

	seen := map[string]int{}
	for _, rt := range rs.Routes {
		for _, id := range rt.Stops {
			if id != model.DepotID {
				seen[id]++
			}
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("tank %s served %d times", id, n)
		}
	}
	if len(seen)+len(rs.Unserved) != 4 {
		t.Fatalf("coverage: seen %v unserved %v", seen, rs.Unserved)
	}
}
