// Package kpi derives reporting metrics from a route set. Pure: no side
// effects, no external calls, identical input yields identical output.
package kpi

import (
	"rasd/internal/config"
	"rasd/internal/model"
	"rasd/internal/travel"
)

// Compute aggregates distance, fuel, emissions, per-tier coverage and
// workload balance over one route set. Totals per tier come from the full
// PriorityRecord set, served counts from the routes.
func Compute(cfg config.KPIConfig, rs model.RouteSet, priorities []model.PriorityRecord, m *travel.Matrix) model.KPIReport {
	rep := model.KPIReport{
		DistanceByTruckKm: map[string]float64{},
		StopsByTruck:      map[string]int{},
	}

	served := map[string]bool{}
	for _, rt := range rs.Routes {
		stops := 0
		dist := 0.0
		for i, id := range rt.Stops {
			if id != model.DepotID {
				served[id] = true
				stops++
			}
			if i > 0 {
				dist += m.KmBetween(rt.Stops[i-1], id)
			}
		}
		rep.StopsByTruck[rt.TruckID] = stops
		rep.DistanceByTruckKm[rt.TruckID] = dist
		rep.DistanceKm += dist
	}

	for _, pr := range priorities {
		hit := served[pr.TankID]
		if hit {
			rep.ServedTotal++
		} else {
			rep.MissedTotal++
		}
		switch pr.Tier {
		case model.TierHigh:
			rep.HighTotal++
			if hit {
				rep.HighServed++
			} else {
				rep.HighMissed++
			}
		case model.TierMedium:
			rep.MediumTotal++
			if hit {
				rep.MediumServed++
			} else {
				rep.MediumMissed++
			}
		default:
			rep.LowTotal++
			if hit {
				rep.LowServed++
			} else {
				rep.LowMissed++
			}
		}
	}

	rep.FuelL = rep.DistanceKm * cfg.FuelLPerKm
	rep.CO2Kg = rep.FuelL * cfg.CO2KgPerL
	return rep
}
