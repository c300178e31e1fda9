package analyzer

import (
	"fmt"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// Surplus under this fraction of generation is flagged as a warning.
const powerWarningMargin = 0.1

// Accumulators under this charge are flagged when cycle analysis is on.
const accumulatorLowCharge = 20.0

// PowerOptions narrow a power analysis.
type PowerOptions struct {
	PlanetID            int  // 0 = all planets
	IncludeAccumulators bool // flag low accumulator charge
}

// PlanetPower is the per-planet power evaluation.
type PlanetPower struct {
	PlanetID                 int     `json:"planet_id"`
	PlanetName               string  `json:"planet_name,omitempty"`
	GenerationMW             float64 `json:"generation_mw"`
	ConsumptionMW            float64 `json:"consumption_mw"`
	SurplusMW                float64 `json:"surplus_mw"`
	UtilizationPercent       float64 `json:"utilization_percent"`
	AccumulatorChargePercent float64 `json:"accumulator_charge_percent"`
	Status                   string  `json:"status"` // ok, warning, deficit, no_data
}

// PowerReport is the full power analysis result.
type PowerReport struct {
	PlanetsAnalyzed    int           `json:"planets_analyzed"`
	Planets            []PlanetPower `json:"planets"`
	TotalGenerationMW  float64       `json:"total_generation_mw"`
	TotalConsumptionMW float64       `json:"total_consumption_mw"`
	Status             string        `json:"status"`
	Warnings           []string      `json:"warnings,omitempty"`
	Recommendations    []string      `json:"recommendations,omitempty"`
}

// AnalyzePower evaluates generation against consumption per planet.
func AnalyzePower(st *state.FactoryState, opts PowerOptions) PowerReport {
	report := PowerReport{Status: StatusHealthy}

	for _, planetID := range sortedPlanetIDs(st) {
		if opts.PlanetID != 0 && planetID != opts.PlanetID {
			continue
		}
		planet := st.Planets[planetID]
		report.PlanetsAnalyzed++

		pp := PlanetPower{
			PlanetID:   planet.PlanetID,
			PlanetName: planet.PlanetName,
			Status:     "no_data",
		}
		if planet.Power == nil {
			report.Planets = append(report.Planets, pp)
			continue
		}

		power := planet.Power
		pp.GenerationMW = power.GenerationMW
		pp.ConsumptionMW = power.ConsumptionMW
		pp.SurplusMW = power.SurplusMW
		pp.AccumulatorChargePercent = power.AccumulatorChargePercent
		if power.GenerationMW > 0 {
			pp.UtilizationPercent = power.ConsumptionMW / power.GenerationMW * 100
		}

		switch {
		case power.SurplusMW < 0:
			pp.Status = "deficit"
			report.Status = StatusCritical
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"planet %d consumes %.1f MW more than it generates", planet.PlanetID, -power.SurplusMW))
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"add at least %.1f MW of generation on planet %d", -power.SurplusMW, planet.PlanetID))

		case power.GenerationMW > 0 && power.SurplusMW < power.GenerationMW*powerWarningMargin:
			pp.Status = "warning"
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"planet %d has under %.0f%% power headroom", planet.PlanetID, powerWarningMargin*100))

		default:
			pp.Status = "ok"
		}

		if opts.IncludeAccumulators && power.AccumulatorChargePercent > 0 &&
			power.AccumulatorChargePercent < accumulatorLowCharge {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"planet %d accumulators at %.0f%% charge; the grid is draining reserves",
				planet.PlanetID, power.AccumulatorChargePercent))
		}

		report.TotalGenerationMW += power.GenerationMW
		report.TotalConsumptionMW += power.ConsumptionMW
		report.Planets = append(report.Planets, pp)
	}

	return report
}
