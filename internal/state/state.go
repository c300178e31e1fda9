// Package state defines the factory state model shared by all data
// sources. A FactoryState is one decoded observation of the running
// simulation: per-planet production, power, assembler, and belt
// metrics.
package state

import "time"

// ItemMetrics holds production metrics for a single item on a planet.
type ItemMetrics struct {
	ItemName        string
	ProductionRate  float64 // items/min
	ConsumptionRate float64 // items/min
	CurrentStorage  int
	NetRate         float64 // ProductionRate - ConsumptionRate
}

// NewItemMetrics builds ItemMetrics with the derived net rate.
func NewItemMetrics(name string, production, consumption float64, storage int) ItemMetrics {
	return ItemMetrics{
		ItemName:        name,
		ProductionRate:  production,
		ConsumptionRate: consumption,
		CurrentStorage:  storage,
		NetRate:         production - consumption,
	}
}

// AssemblerMetrics holds metrics for an individual assembler or smelter.
type AssemblerMetrics struct {
	AssemblerID    int
	RecipeID       int
	ProductionRate float64
	TheoreticalMax float64
	InputStarved   bool
	OutputBlocked  bool
	Efficiency     float64 // percent of theoretical max
}

// NewAssemblerMetrics builds AssemblerMetrics with the derived efficiency.
func NewAssemblerMetrics(id, recipeID int, rate, theoretical float64, starved, blocked bool) AssemblerMetrics {
	efficiency := 0.0
	if theoretical > 0 {
		efficiency = rate / theoretical * 100
	}
	return AssemblerMetrics{
		AssemblerID:    id,
		RecipeID:       recipeID,
		ProductionRate: rate,
		TheoreticalMax: theoretical,
		InputStarved:   starved,
		OutputBlocked:  blocked,
		Efficiency:     efficiency,
	}
}

// PowerMetrics holds power grid metrics for a planet.
type PowerMetrics struct {
	GenerationMW             float64
	ConsumptionMW            float64
	AccumulatorChargePercent float64
	SurplusMW                float64 // GenerationMW - ConsumptionMW
}

// NewPowerMetrics builds PowerMetrics with the derived surplus.
func NewPowerMetrics(generation, consumption, accumulatorPercent float64) PowerMetrics {
	return PowerMetrics{
		GenerationMW:             generation,
		ConsumptionMW:            consumption,
		AccumulatorChargePercent: accumulatorPercent,
		SurplusMW:                generation - consumption,
	}
}

// BeltMetrics holds throughput metrics for a single belt.
type BeltMetrics struct {
	BeltID            int
	ItemType          string
	Throughput        float64 // items/sec
	MaxThroughput     float64 // items/sec, by belt tier
	SaturationPercent float64
}

// NewBeltMetrics builds BeltMetrics with the derived saturation.
func NewBeltMetrics(id int, itemType string, throughput, maxThroughput float64) BeltMetrics {
	saturation := 0.0
	if maxThroughput > 0 {
		saturation = throughput / maxThroughput * 100
	}
	return BeltMetrics{
		BeltID:            id,
		ItemType:          itemType,
		Throughput:        throughput,
		MaxThroughput:     maxThroughput,
		SaturationPercent: saturation,
	}
}

// PlanetState holds the complete state for a single planet.
type PlanetState struct {
	PlanetID   int
	PlanetName string
	Production map[string]ItemMetrics
	Assemblers []AssemblerMetrics
	Power      *PowerMetrics
	Belts      []BeltMetrics
}

// NewPlanetState creates an empty planet state.
func NewPlanetState(id int, name string) *PlanetState {
	return &PlanetState{
		PlanetID:   id,
		PlanetName: name,
		Production: make(map[string]ItemMetrics),
	}
}

// AddProduction merges an assembler-level production row into the
// planet's per-item aggregate.
func (p *PlanetState) AddProduction(name string, production, consumption float64, storage int) {
	if existing, ok := p.Production[name]; ok {
		p.Production[name] = NewItemMetrics(
			name,
			existing.ProductionRate+production,
			existing.ConsumptionRate+consumption,
			existing.CurrentStorage+storage,
		)
		return
	}
	p.Production[name] = NewItemMetrics(name, production, consumption, storage)
}

// FactoryState is one complete observation across all planets.
type FactoryState struct {
	Timestamp time.Time
	GameTick  int64
	Planets   map[int]*PlanetState
}

// New creates an empty factory state stamped with the given time.
func New(ts time.Time) *FactoryState {
	return &FactoryState{
		Timestamp: ts,
		Planets:   make(map[int]*PlanetState),
	}
}

// Planet returns the state for a planet, or nil if unknown.
func (s *FactoryState) Planet(id int) *PlanetState {
	return s.Planets[id]
}
