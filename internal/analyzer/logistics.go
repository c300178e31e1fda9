package analyzer

import (
	"sort"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// Default thresholds for belt saturation findings, in percent.
const (
	DefaultSaturationThreshold = 95.0
	nearSaturationThreshold    = 80.0
)

// LogisticsOptions narrow a logistics analysis.
type LogisticsOptions struct {
	PlanetID            int      // 0 = all planets
	ItemFilter          []string // empty = all items
	SaturationThreshold float64  // percent; 0 = default (95)
}

// BeltFinding is one belt at or near saturation.
type BeltFinding struct {
	PlanetID          int     `json:"planet_id"`
	BeltID            int     `json:"belt_id"`
	ItemType          string  `json:"item_type"`
	Throughput        float64 `json:"throughput"`
	MaxThroughput     float64 `json:"max_throughput"`
	SaturationPercent float64 `json:"saturation_percent"`
}

// ThroughputRequirement compares an item's consumption rate against
// the belt capacity observed carrying it.
type ThroughputRequirement struct {
	ItemName          string  `json:"item_name"`
	RequiredPerSecond float64 `json:"required_per_second"`
	BeltCapacity      float64 `json:"belt_capacity_per_second"`
	BeltsNeeded       float64 `json:"belts_needed"`
}

// LogisticsReport is the full logistics analysis result.
type LogisticsReport struct {
	PlanetsAnalyzed int                     `json:"planets_analyzed"`
	BeltsAnalyzed   int                     `json:"belts_analyzed"`
	SaturatedBelts  []BeltFinding           `json:"saturated_belts"`
	NearSaturation  []BeltFinding           `json:"near_saturation"`
	Requirements    []ThroughputRequirement `json:"throughput_requirements,omitempty"`
	Status          string                  `json:"status"`
}

// AnalyzeLogistics finds saturated belts and per-item throughput
// pressure.
func AnalyzeLogistics(st *state.FactoryState, opts LogisticsOptions) LogisticsReport {
	threshold := opts.SaturationThreshold
	if threshold <= 0 {
		threshold = DefaultSaturationThreshold
	}

	filter := make(map[string]bool, len(opts.ItemFilter))
	for _, item := range opts.ItemFilter {
		filter[item] = true
	}

	report := LogisticsReport{Status: StatusHealthy}

	for _, planetID := range sortedPlanetIDs(st) {
		if opts.PlanetID != 0 && planetID != opts.PlanetID {
			continue
		}
		planet := st.Planets[planetID]
		report.PlanetsAnalyzed++

		maxBeltCapacity := 0.0
		for _, belt := range planet.Belts {
			if len(filter) > 0 && !filter[belt.ItemType] {
				continue
			}
			report.BeltsAnalyzed++
			if belt.MaxThroughput > maxBeltCapacity {
				maxBeltCapacity = belt.MaxThroughput
			}

			finding := BeltFinding{
				PlanetID:          planet.PlanetID,
				BeltID:            belt.BeltID,
				ItemType:          belt.ItemType,
				Throughput:        belt.Throughput,
				MaxThroughput:     belt.MaxThroughput,
				SaturationPercent: belt.SaturationPercent,
			}
			switch {
			case belt.SaturationPercent >= threshold:
				report.SaturatedBelts = append(report.SaturatedBelts, finding)
			case belt.SaturationPercent >= nearSaturationThreshold:
				report.NearSaturation = append(report.NearSaturation, finding)
			}
		}

		report.Requirements = append(report.Requirements,
			planetRequirements(planet, filter, maxBeltCapacity)...)
	}

	sort.Slice(report.SaturatedBelts, func(i, j int) bool {
		return report.SaturatedBelts[i].SaturationPercent > report.SaturatedBelts[j].SaturationPercent
	})

	if len(report.SaturatedBelts) > 0 {
		report.Status = StatusDegraded
	}
	return report
}

// planetRequirements converts per-item consumption to belt pressure.
func planetRequirements(planet *state.PlanetState, filter map[string]bool, beltCapacity float64) []ThroughputRequirement {
	if beltCapacity <= 0 {
		return nil
	}

	names := make([]string, 0, len(planet.Production))
	for name := range planet.Production {
		if len(filter) > 0 && !filter[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var reqs []ThroughputRequirement
	for _, name := range names {
		metrics := planet.Production[name]
		if metrics.ConsumptionRate <= 0 {
			continue
		}
		perSecond := metrics.ConsumptionRate / 60
		reqs = append(reqs, ThroughputRequirement{
			ItemName:          name,
			RequiredPerSecond: perSecond,
			BeltCapacity:      beltCapacity,
			BeltsNeeded:       perSecond / beltCapacity,
		})
	}
	return reqs
}
