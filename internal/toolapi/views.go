package toolapi

import (
	"sort"
	"time"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// itemView is the wire form of one item's production metrics.
type itemView struct {
	Name            string  `json:"name"`
	ProductionRate  float64 `json:"production_rate"`
	ConsumptionRate float64 `json:"consumption_rate"`
	NetRate         float64 `json:"net_rate"`
	Storage         int     `json:"storage"`
}

// powerView is the wire form of a planet's power metrics.
type powerView struct {
	GenerationMW             float64 `json:"generation_mw"`
	ConsumptionMW            float64 `json:"consumption_mw"`
	SurplusMW                float64 `json:"surplus_mw"`
	AccumulatorChargePercent float64 `json:"accumulator_charge_percent"`
}

// planetView is the wire form of one planet's state.
type planetView struct {
	PlanetID       int        `json:"planet_id"`
	PlanetName     string     `json:"planet_name,omitempty"`
	Power          *powerView `json:"power,omitempty"`
	Items          []itemView `json:"items"`
	AssemblerCount int        `json:"assembler_count"`
	BeltCount      int        `json:"belt_count"`
}

// stateView is the wire form of a factory state observation.
type stateView struct {
	DataSource string       `json:"data_source"`
	Timestamp  time.Time    `json:"timestamp"`
	GameTick   int64        `json:"game_tick"`
	Planets    []planetView `json:"planets"`
}

// buildStateView projects a factory state onto the wire form, filtered
// to one planet (0 = all) and an item name set (empty = all).
func buildStateView(st *state.FactoryState, source string, planetID int, items []string) stateView {
	filter := make(map[string]bool, len(items))
	for _, name := range items {
		filter[name] = true
	}

	view := stateView{
		DataSource: source,
		Timestamp:  st.Timestamp,
		GameTick:   st.GameTick,
		Planets:    []planetView{},
	}

	ids := make([]int, 0, len(st.Planets))
	for id := range st.Planets {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if planetID != 0 && id != planetID {
			continue
		}
		planet := st.Planets[id]

		pv := planetView{
			PlanetID:       planet.PlanetID,
			PlanetName:     planet.PlanetName,
			Items:          []itemView{},
			AssemblerCount: len(planet.Assemblers),
			BeltCount:      len(planet.Belts),
		}
		if planet.Power != nil {
			pv.Power = &powerView{
				GenerationMW:             planet.Power.GenerationMW,
				ConsumptionMW:            planet.Power.ConsumptionMW,
				SurplusMW:                planet.Power.SurplusMW,
				AccumulatorChargePercent: planet.Power.AccumulatorChargePercent,
			}
		}

		names := make([]string, 0, len(planet.Production))
		for name := range planet.Production {
			if len(filter) > 0 && !filter[name] {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			m := planet.Production[name]
			pv.Items = append(pv.Items, itemView{
				Name:            m.ItemName,
				ProductionRate:  m.ProductionRate,
				ConsumptionRate: m.ConsumptionRate,
				NetRate:         m.NetRate,
				Storage:         m.CurrentStorage,
			})
		}

		view.Planets = append(view.Planets, pv)
	}

	return view
}
