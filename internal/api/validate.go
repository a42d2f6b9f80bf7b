package api

import (
	"fmt"
	"math"
	"net/url"

	"rasd/internal/model"
)

// PlanRequest triggers one planning cycle.
type PlanRequest struct {
	// Algorithm selects the final route set: "anneal" (default) or "baseline".
	Algorithm string `json:"algorithm,omitempty"`
	// Reads overrides the sampler read budget for this cycle.
	Reads int `json:"reads,omitempty"`
}

func validatePlanRequest(req *PlanRequest) error {
	if req.Algorithm != "" && req.Algorithm != model.SourceAnneal && req.Algorithm != model.SourceBaseline {
		return fmt.Errorf("invalid algorithm: %s", req.Algorithm)
	}
	if req.Reads < 0 {
		return fmt.Errorf("reads must be >= 0")
	}
	return nil
}

// TankRegistry is the PUT /v1/tanks payload.
type TankRegistry struct {
	Depot *model.Node  `json:"depot,omitempty"`
	Tanks []model.Tank `json:"tanks"`
}

func validateTanks(reg *TankRegistry) error {
	if reg.Depot != nil {
		if err := validateCoords(reg.Depot.Lat, reg.Depot.Lon); err != nil {
			return fmt.Errorf("depot: %w", err)
		}
	}
	for _, t := range reg.Tanks {
		if t.TankID == "" {
			return fmt.Errorf("tank with empty id")
		}
		if t.TankID == model.DepotID {
			return fmt.Errorf("tank id %q is reserved", model.DepotID)
		}
		if err := validateCoords(t.Lat, t.Lon); err != nil {
			return fmt.Errorf("tank %s: %w", t.TankID, err)
		}
	}
	return nil
}

func validateCoords(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("invalid coordinates (%v, %v)", lat, lon)
	}
	return nil
}

func validateTrucks(trucks []model.Truck) error {
	if len(trucks) == 0 {
		return fmt.Errorf("truck list must not be empty")
	}
	seen := map[string]bool{}
	for _, t := range trucks {
		if t.TruckID == "" {
			return fmt.Errorf("truck with empty id")
		}
		if seen[t.TruckID] {
			return fmt.Errorf("duplicate truck id %s", t.TruckID)
		}
		seen[t.TruckID] = true
		if t.Capacity <= 0 {
			return fmt.Errorf("truck %s: capacity must be > 0", t.TruckID)
		}
		if t.ShiftMin <= 0 {
			return fmt.Errorf("truck %s: shiftMin must be > 0", t.TruckID)
		}
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	return nil
}
