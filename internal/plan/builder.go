// Package plan assembles optimization instances and runs planning cycles.
package plan

import (
	"fmt"
	"sort"

	"rasd/internal/config"
	"rasd/internal/model"
	"rasd/internal/travel"
)

// ConfigError is a fatal configuration problem: the cycle cannot produce any
// usable plan and the operator has to fix the inputs.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Detail }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// Instance is the immutable optimization input consumed by both routers.
// A router invocation owns its Instance and must not mutate it.
type Instance struct {
	Nodes      []model.Node
	Matrix     *travel.Matrix
	Trucks     []model.Truck
	Closures   *travel.ClosureSet
	Priorities []model.PriorityRecord

	// Demand units and on-site service minutes per tank, derived from tier.
	Demand     map[string]float64
	ServiceMin map[string]float64

	// CapacityShortfall > 0 means the fleet cannot structurally cover every
	// tank this cycle. Reported, never silently dropped.
	CapacityShortfall float64
}

// demandForTier maps a tier onto demand units and service minutes.
func demandForTier(t model.Tier) (demand, serviceMin float64) {
	switch t {
	case model.TierHigh:
		return 3, 18
	case model.TierMedium:
		return 2, 12
	default:
		return 1, 7
	}
}

// BuildInstance validates and assembles the routing inputs for one cycle.
//
// Fatal configuration errors: missing depot node, a prioritized tank with no
// registered coordinates, an empty truck roster. A fleet too small for the
// tank set is not an error; the shortfall is recorded on the instance.
func BuildInstance(cfg config.Config, tanks []model.Tank, priorities []model.PriorityRecord,
	depot *model.Node, trucks []model.Truck, closures []model.ClosurePair) (*Instance, error) {

	if depot == nil {
		return nil, configErrorf("depot node missing")
	}
	if len(trucks) == 0 {
		return nil, configErrorf("no trucks configured")
	}

	tankByID := make(map[string]model.Tank, len(tanks))
	for _, t := range tanks {
		tankByID[t.TankID] = t
	}

	nodes := make([]model.Node, 0, len(priorities)+1)
	nodes = append(nodes, model.Node{ID: model.DepotID, Lat: depot.Lat, Lon: depot.Lon})
	demand := make(map[string]float64, len(priorities))
	service := make(map[string]float64, len(priorities))
	var totalDemand float64
	for _, pr := range priorities {
		tk, ok := tankByID[pr.TankID]
		if !ok {
			return nil, configErrorf("tank %q referenced by priorities has no registered coordinates", pr.TankID)
		}
		nodes = append(nodes, model.Node{ID: tk.TankID, Lat: tk.Lat, Lon: tk.Lon})
		d, s := demandForTier(pr.Tier)
		demand[pr.TankID] = d
		service[pr.TankID] = s
		totalDemand += d
	}

	m, err := travel.BuildMatrix(nodes, cfg.Travel.BaseSpeedKmh)
	if err != nil {
		return nil, configErrorf("%v", err)
	}

	// Copy and order priorities descending so routers see a ranked view.
	// Tank id breaks ties for determinism.
	ranked := append([]model.PriorityRecord(nil), priorities...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return ranked[i].TankID < ranked[j].TankID
	})

	var cap float64
	shifted := make([]model.Truck, len(trucks))
	for i, tr := range trucks {
		shifted[i] = tr
		shifted[i].ShiftMin = tr.ShiftMin - cfg.Greedy.SafetyMarginMin
		cap += tr.Capacity
	}

	inst := &Instance{
		Nodes:      nodes,
		Matrix:     m,
		Trucks:     shifted,
		Closures:   travel.NewClosureSet(closures),
		Priorities: ranked,
		Demand:     demand,
		ServiceMin: service,
	}
	if totalDemand > cap {
		inst.CapacityShortfall = totalDemand - cap
	}
	return inst, nil
}
