// Package analyzer computes production, power, and logistics reports
// from a factory state. Analyzers are pure functions over an already
// fetched state; they never touch a data source.
package analyzer

import (
	"fmt"
	"sort"

	"github.com/dysonmetrics/telemetry/internal/recipe"
	"github.com/dysonmetrics/telemetry/internal/state"
)

// Severity levels for findings.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Report statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// Starvation/blockage fractions that constitute a bottleneck.
const (
	bottleneckFraction = 0.3
	severeFraction     = 0.5
	lowEfficiencyMark  = 70.0
)

// BottleneckOptions narrow a bottleneck analysis.
type BottleneckOptions struct {
	PlanetID   int    // 0 = all planets
	TargetItem string // restrict traces to one item
	// Recipes enables upstream/downstream traces for TargetItem.
	Recipes *recipe.Database
}

// Bottleneck is a single production constraint finding.
type Bottleneck struct {
	PlanetID        int      `json:"planet_id"`
	PlanetName      string   `json:"planet_name,omitempty"`
	Type            string   `json:"type"` // input_starvation, output_blocked, low_efficiency, power_deficit
	RecipeID        int      `json:"recipe_id,omitempty"`
	AffectedCount   int      `json:"affected_count"`
	TotalCount      int      `json:"total_count"`
	Severity        string   `json:"severity"`
	Recommendation  string   `json:"recommendation"`
	UpstreamItems   []string `json:"upstream_items,omitempty"`
	DownstreamItems []string `json:"downstream_items,omitempty"`
}

// BottleneckReport is the full analysis result.
type BottleneckReport struct {
	PlanetsAnalyzed  int          `json:"planets_analyzed"`
	TotalAssemblers  int          `json:"total_assemblers"`
	BottlenecksFound int          `json:"bottlenecks_found"`
	Bottlenecks      []Bottleneck `json:"bottlenecks"`
	Status           string       `json:"status"`
}

// AnalyzeBottlenecks finds production constraints across the factory.
func AnalyzeBottlenecks(st *state.FactoryState, opts BottleneckOptions) BottleneckReport {
	report := BottleneckReport{Status: StatusHealthy}

	for _, planetID := range sortedPlanetIDs(st) {
		if opts.PlanetID != 0 && planetID != opts.PlanetID {
			continue
		}
		planet := st.Planets[planetID]
		report.PlanetsAnalyzed++
		report.TotalAssemblers += len(planet.Assemblers)

		report.Bottlenecks = append(report.Bottlenecks, planetBottlenecks(planet, opts)...)
	}

	report.BottlenecksFound = len(report.Bottlenecks)
	for _, b := range report.Bottlenecks {
		if b.Severity == SeverityHigh {
			report.Status = StatusCritical
			break
		}
		report.Status = StatusDegraded
	}
	return report
}

// planetBottlenecks inspects one planet's assembler groups and power.
func planetBottlenecks(planet *state.PlanetState, opts BottleneckOptions) []Bottleneck {
	var found []Bottleneck

	// Group assemblers by recipe.
	type group struct {
		total      int
		starved    int
		blocked    int
		efficiency float64
	}
	groups := make(map[int]*group)
	for _, a := range planet.Assemblers {
		g := groups[a.RecipeID]
		if g == nil {
			g = &group{}
			groups[a.RecipeID] = g
		}
		g.total++
		if a.InputStarved {
			g.starved++
		}
		if a.OutputBlocked {
			g.blocked++
		}
		g.efficiency += a.Efficiency
	}

	recipeIDs := make([]int, 0, len(groups))
	for id := range groups {
		recipeIDs = append(recipeIDs, id)
	}
	sort.Ints(recipeIDs)

	for _, recipeID := range recipeIDs {
		g := groups[recipeID]
		starvedFrac := float64(g.starved) / float64(g.total)
		blockedFrac := float64(g.blocked) / float64(g.total)
		avgEfficiency := g.efficiency / float64(g.total)

		switch {
		case starvedFrac >= bottleneckFraction:
			b := Bottleneck{
				PlanetID:      planet.PlanetID,
				PlanetName:    planet.PlanetName,
				Type:          "input_starvation",
				RecipeID:      recipeID,
				AffectedCount: g.starved,
				TotalCount:    g.total,
				Severity:      fractionSeverity(starvedFrac),
				Recommendation: fmt.Sprintf(
					"%d of %d assemblers on recipe %d are input starved; increase upstream supply or add belts feeding them",
					g.starved, g.total, recipeID),
			}
			attachTraces(&b, opts)
			found = append(found, b)

		case blockedFrac >= bottleneckFraction:
			found = append(found, Bottleneck{
				PlanetID:      planet.PlanetID,
				PlanetName:    planet.PlanetName,
				Type:          "output_blocked",
				RecipeID:      recipeID,
				AffectedCount: g.blocked,
				TotalCount:    g.total,
				Severity:      fractionSeverity(blockedFrac),
				Recommendation: fmt.Sprintf(
					"%d of %d assemblers on recipe %d are output blocked; add downstream consumption or storage",
					g.blocked, g.total, recipeID),
			})

		case avgEfficiency > 0 && avgEfficiency < lowEfficiencyMark:
			found = append(found, Bottleneck{
				PlanetID:      planet.PlanetID,
				PlanetName:    planet.PlanetName,
				Type:          "low_efficiency",
				RecipeID:      recipeID,
				AffectedCount: g.total,
				TotalCount:    g.total,
				Severity:      SeverityLow,
				Recommendation: fmt.Sprintf(
					"assemblers on recipe %d run at %.0f%% of theoretical output; check power and supply",
					recipeID, avgEfficiency),
			})
		}
	}

	if planet.Power != nil && planet.Power.SurplusMW < 0 {
		found = append(found, Bottleneck{
			PlanetID:   planet.PlanetID,
			PlanetName: planet.PlanetName,
			Type:       "power_deficit",
			Severity:   SeverityHigh,
			Recommendation: fmt.Sprintf(
				"power consumption exceeds generation by %.1f MW; all production is throttled until generation is added",
				-planet.Power.SurplusMW),
		})
	}

	return found
}

// attachTraces adds recipe-table traces when a target item and recipe
// database were supplied.
func attachTraces(b *Bottleneck, opts BottleneckOptions) {
	if opts.Recipes == nil || opts.TargetItem == "" {
		return
	}
	itemID, ok := opts.Recipes.ItemID(opts.TargetItem)
	if !ok {
		return
	}
	for _, id := range opts.Recipes.TraceUpstream(itemID, 5) {
		b.UpstreamItems = append(b.UpstreamItems, opts.Recipes.ItemName(id))
	}
	for _, id := range opts.Recipes.TraceDownstream(itemID, 5) {
		b.DownstreamItems = append(b.DownstreamItems, opts.Recipes.ItemName(id))
	}
}

func fractionSeverity(frac float64) string {
	switch {
	case frac >= severeFraction:
		return SeverityHigh
	case frac >= bottleneckFraction:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func sortedPlanetIDs(st *state.FactoryState) []int {
	ids := make([]int, 0, len(st.Planets))
	for id := range st.Planets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
