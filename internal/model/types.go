package model

import (
	"encoding/json"
	"math"
	"time"
)

// Core domain types for the planning cycle.

// Tank is a registered collection point. Coordinates are mandatory: a tank
// referenced by a forecast without a registered location is a configuration
// error at instance-build time.
type Tank struct {
	TankID string  `json:"tankId"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// ForecastRecord is the per-tank per-cycle input from the external
// forecast/anomaly source. Missing fields arrive as NaN and contribute
// nothing to the fused priority.
type ForecastRecord struct {
	TankID   string    `json:"tankId"`
	TTOHours float64   `json:"ttoHours"`
	LevelPct float64   `json:"levelPct"`
	GasNow   float64   `json:"gasNow"`
	TempC    float64   `json:"tempC"`
	HumPct   float64   `json:"humPct"`
	TS       time.Time `json:"ts,omitempty"`
}

// UnmarshalJSON seeds every numeric field with NaN before decoding, so an
// absent field takes the no-forecast path instead of reading as a literal
// zero (for ttoHours, zero means "overflowing right now").
func (r *ForecastRecord) UnmarshalJSON(data []byte) error {
	type plain ForecastRecord
	p := plain{
		TTOHours: math.NaN(),
		LevelPct: math.NaN(),
		GasNow:   math.NaN(),
		TempC:    math.NaN(),
		HumPct:   math.NaN(),
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ForecastRecord(p)
	return nil
}

// SensorHistory is the rolling reference window used for robust z-scores.
type SensorHistory struct {
	Gas   []float64 `json:"gas"`
	TempC []float64 `json:"tempC"`
	Hum   []float64 `json:"hum"`
}

type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Rank orders tiers by urgency, HIGH first.
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 0
	case TierMedium:
		return 1
	default:
		return 2
	}
}

// PriorityRecord is the fused risk output for one tank, immutable within a
// planning cycle.
type PriorityRecord struct {
	TankID   string  `json:"tankId"`
	Priority float64 `json:"priority"`
	Tier     Tier    `json:"tier"`
	Base     float64 `json:"base"`
	GasAnom  float64 `json:"gasAnom"`
	EnvAnom  float64 `json:"envAnom"`
	TTOHours float64 `json:"ttoHours"`
	LevelPct float64 `json:"levelPct"`
}

// DepotID is the distinguished node id for the depot.
const DepotID = "depot"

// Node is a routing location: the depot or a tank.
type Node struct {
	ID  string  `json:"nodeId"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Truck is a collection vehicle, fixed for the planning horizon. Capacity is
// in demand units (tier-weighted), shift budget in minutes.
type Truck struct {
	TruckID  string  `json:"truckId"`
	Capacity float64 `json:"capacity"`
	ShiftMin float64 `json:"shiftMin"`
}

// ClosurePair marks the direct edge between two nodes as unavailable.
// Pairs are unordered: the travel matrix is symmetric.
type ClosurePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Route is one truck's ordered stop sequence, depot first and last.
type Route struct {
	TruckID    string       `json:"truckId"`
	Stops      []string     `json:"stops"`
	DistanceKm float64      `json:"distanceKm"`
	DriveMin   float64      `json:"driveMin"`
	ServiceMin float64      `json:"serviceMin"`
	Polyline   [][2]float64 `json:"polyline,omitempty"`
}

// Route set provenance values.
const (
	SourceBaseline = "baseline"
	SourceAnneal   = "anneal"
)

// RouteSet is the complete output of one router invocation. Unserved lists
// tanks no truck could feasibly take this cycle; that is a normal
// partial-coverage outcome, not an error.
type RouteSet struct {
	Source   string   `json:"source"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
	Routes   []Route  `json:"routes"`
	Unserved []string `json:"unserved,omitempty"`
}

// KPIReport is the pure metrics record derived from a RouteSet.
type KPIReport struct {
	ServedTotal  int     `json:"servedTotal"`
	MissedTotal  int     `json:"missedTotal"`
	HighTotal    int     `json:"highTotal"`
	HighServed   int     `json:"highServed"`
	HighMissed   int     `json:"highMissed"`
	MediumTotal  int     `json:"mediumTotal"`
	MediumServed int     `json:"mediumServed"`
	MediumMissed int     `json:"mediumMissed"`
	LowTotal     int     `json:"lowTotal"`
	LowServed    int     `json:"lowServed"`
	LowMissed    int     `json:"lowMissed"`
	DistanceKm   float64 `json:"totalDistanceKm"`
	FuelL        float64 `json:"fuelLEst"`
	CO2Kg        float64 `json:"co2KgEst"`

	DistanceByTruckKm map[string]float64 `json:"distanceByTruckKm"`
	StopsByTruck      map[string]int     `json:"stopsByTruck"`
}

// Plan is one persisted planning cycle: the fused priorities, both route
// sets, their KPIs, and the provenance of the final answer.
type Plan struct {
	ID          string           `json:"id"`
	CreatedAt   time.Time        `json:"createdAt"`
	Source      string           `json:"source"`
	Degraded    bool             `json:"degraded"`
	Reason      string           `json:"reason,omitempty"`
	Priorities  []PriorityRecord `json:"priorities"`
	Baseline    RouteSet         `json:"baseline"`
	Final       RouteSet         `json:"final"`
	BaselineKPI KPIReport        `json:"baselineKpi"`
	FinalKPI    KPIReport        `json:"finalKpi"`
}

// Webhook subscription for plan lifecycle events.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}
