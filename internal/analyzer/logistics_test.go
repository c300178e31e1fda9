package analyzer

import (
	"testing"
	"time"

	"github.com/dysonmetrics/telemetry/internal/state"
)

func beltPlanet(id int, belts ...state.BeltMetrics) *state.PlanetState {
	planet := state.NewPlanetState(id, "")
	planet.Belts = belts
	return planet
}

func TestAnalyzeLogistics_Healthy(t *testing.T) {
	st := singlePlanetState(beltPlanet(1,
		state.NewBeltMetrics(1, "item_1101", 3, 6),
		state.NewBeltMetrics(2, "item_1104", 2, 6),
	))

	report := AnalyzeLogistics(st, LogisticsOptions{})
	if report.Status != StatusHealthy {
		t.Errorf("Status = %q, want healthy", report.Status)
	}
	if len(report.SaturatedBelts) != 0 || len(report.NearSaturation) != 0 {
		t.Errorf("findings on an idle network: %+v", report)
	}
	if report.BeltsAnalyzed != 2 {
		t.Errorf("BeltsAnalyzed = %d, want 2", report.BeltsAnalyzed)
	}
}

func TestAnalyzeLogistics_Saturation(t *testing.T) {
	st := singlePlanetState(beltPlanet(1,
		state.NewBeltMetrics(1, "item_1101", 6, 6),    // 100%, saturated
		state.NewBeltMetrics(2, "item_1101", 5.1, 6),  // 85%, near
		state.NewBeltMetrics(3, "item_1101", 3, 6),    // 50%, fine
		state.NewBeltMetrics(4, "item_1104", 5.88, 6), // 98%, saturated
	))

	report := AnalyzeLogistics(st, LogisticsOptions{})
	if len(report.SaturatedBelts) != 2 {
		t.Fatalf("saturated = %d, want 2", len(report.SaturatedBelts))
	}
	// Sorted worst first.
	if report.SaturatedBelts[0].BeltID != 1 {
		t.Errorf("worst belt = %d, want belt 1 at 100%%", report.SaturatedBelts[0].BeltID)
	}
	if len(report.NearSaturation) != 1 || report.NearSaturation[0].BeltID != 2 {
		t.Errorf("near saturation = %+v, want belt 2", report.NearSaturation)
	}
	if report.Status != StatusDegraded {
		t.Errorf("Status = %q, want degraded", report.Status)
	}
}

func TestAnalyzeLogistics_CustomThreshold(t *testing.T) {
	st := singlePlanetState(beltPlanet(1,
		state.NewBeltMetrics(1, "item_1101", 5.1, 6), // 85%
	))

	report := AnalyzeLogistics(st, LogisticsOptions{SaturationThreshold: 80})
	if len(report.SaturatedBelts) != 1 {
		t.Fatalf("saturated = %d at threshold 80, want 1", len(report.SaturatedBelts))
	}
}

func TestAnalyzeLogistics_ItemFilter(t *testing.T) {
	st := singlePlanetState(beltPlanet(1,
		state.NewBeltMetrics(1, "item_1101", 6, 6),
		state.NewBeltMetrics(2, "item_1104", 6, 6),
	))

	report := AnalyzeLogistics(st, LogisticsOptions{ItemFilter: []string{"item_1104"}})
	if report.BeltsAnalyzed != 1 {
		t.Errorf("BeltsAnalyzed = %d, want 1 with filter", report.BeltsAnalyzed)
	}
	if len(report.SaturatedBelts) != 1 || report.SaturatedBelts[0].BeltID != 2 {
		t.Errorf("saturated = %+v, want only belt 2", report.SaturatedBelts)
	}
}

func TestAnalyzeLogistics_ThroughputRequirements(t *testing.T) {
	planet := beltPlanet(1,
		state.NewBeltMetrics(1, "iron-ingot", 3, 6),
	)
	// 180 items/min consumed = 3/sec = half a 6/sec belt.
	planet.AddProduction("iron-ingot", 240, 180, 0)
	st := singlePlanetState(planet)

	report := AnalyzeLogistics(st, LogisticsOptions{})
	if len(report.Requirements) != 1 {
		t.Fatalf("requirements = %d, want 1", len(report.Requirements))
	}
	req := report.Requirements[0]
	if req.RequiredPerSecond != 3 {
		t.Errorf("RequiredPerSecond = %v, want 3", req.RequiredPerSecond)
	}
	if req.BeltCapacity != 6 {
		t.Errorf("BeltCapacity = %v, want 6", req.BeltCapacity)
	}
	if req.BeltsNeeded != 0.5 {
		t.Errorf("BeltsNeeded = %v, want 0.5", req.BeltsNeeded)
	}
}

func TestAnalyzeLogistics_MultiPlanet(t *testing.T) {
	st := state.New(time.Now())
	st.Planets[1] = beltPlanet(1, state.NewBeltMetrics(1, "item_1101", 6, 6))
	st.Planets[2] = beltPlanet(2, state.NewBeltMetrics(2, "item_1101", 1, 6))

	report := AnalyzeLogistics(st, LogisticsOptions{PlanetID: 2})
	if report.PlanetsAnalyzed != 1 {
		t.Errorf("PlanetsAnalyzed = %d, want 1", report.PlanetsAnalyzed)
	}
	if len(report.SaturatedBelts) != 0 {
		t.Errorf("saturated = %+v on the filtered planet", report.SaturatedBelts)
	}
}
