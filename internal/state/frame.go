package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Frame is the wire format pushed by the game plugin: lowercase JSON
// keys, a string-keyed planet map, and an epoch-seconds timestamp.
type Frame struct {
	Timestamp float64                `json:"timestamp"`
	GameTick  int64                  `json:"gameTick"`
	Planets   map[string]PlanetFrame `json:"planets"`
}

// PlanetFrame is the per-planet section of a frame.
type PlanetFrame struct {
	PlanetID   int               `json:"planetId"`
	PlanetName string            `json:"planetName"`
	Power      *PowerFrame       `json:"power"`
	Production []ProductionFrame `json:"production"`
	Belts      []BeltFrame       `json:"belts"`
}

// PowerFrame carries pre-computed MW values from the plugin.
type PowerFrame struct {
	GenerationMW       float64 `json:"generationMW"`
	ConsumptionMW      float64 `json:"consumptionMW"`
	AccumulatorPercent float64 `json:"accumulatorPercent"`
}

// ProductionFrame is one assembler-level production row.
type ProductionFrame struct {
	AssemblerID     int     `json:"assemblerId"`
	RecipeID        int     `json:"recipeId"`
	ProtoID         int     `json:"protoId"`
	ItemName        string  `json:"itemName"`
	ProductionRate  float64 `json:"productionRate"`
	ConsumptionRate float64 `json:"consumptionRate"`
	TheoreticalMax  float64 `json:"theoreticalMax"`
	Storage         int     `json:"storage"`
	InputStarved    bool    `json:"inputStarved"`
	OutputBlocked   bool    `json:"outputBlocked"`
}

// BeltFrame is one belt throughput row.
type BeltFrame struct {
	BeltID        int     `json:"beltId"`
	ItemType      int     `json:"itemType"`
	Throughput    float64 `json:"throughput"`
	MaxThroughput float64 `json:"maxThroughput"`
}

// FrameTimestamp converts the frame's embedded epoch-seconds value to
// a time.Time. A zero or missing timestamp yields the zero time.
func (f *Frame) FrameTimestamp() time.Time {
	if f.Timestamp <= 0 {
		return time.Time{}
	}
	sec := int64(f.Timestamp)
	nsec := int64((f.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// DecodeFrame parses a raw plugin frame into a FactoryState.
// Assembler-level production rows are aggregated per item.
func DecodeFrame(data []byte) (*FactoryState, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return FromFrame(&frame), nil
}

// FromFrame converts a decoded Frame into a FactoryState.
func FromFrame(frame *Frame) *FactoryState {
	ts := frame.FrameTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}

	st := New(ts)
	st.GameTick = frame.GameTick

	for idStr, pf := range frame.Planets {
		planetID := pf.PlanetID
		if planetID == 0 {
			if parsed, err := strconv.Atoi(idStr); err == nil {
				planetID = parsed
			}
		}

		planet := NewPlanetState(planetID, pf.PlanetName)

		if pf.Power != nil {
			power := NewPowerMetrics(
				pf.Power.GenerationMW,
				pf.Power.ConsumptionMW,
				pf.Power.AccumulatorPercent,
			)
			planet.Power = &power
		}

		for _, prod := range pf.Production {
			name := prod.ItemName
			if name == "" {
				if prod.RecipeID > 0 {
					name = "recipe_" + strconv.Itoa(prod.RecipeID)
				} else {
					name = "item_" + strconv.Itoa(prod.ProtoID)
				}
			}

			planet.AddProduction(name, prod.ProductionRate, prod.ConsumptionRate, prod.Storage)

			if prod.AssemblerID > 0 {
				planet.Assemblers = append(planet.Assemblers, NewAssemblerMetrics(
					prod.AssemblerID,
					prod.RecipeID,
					prod.ProductionRate,
					prod.TheoreticalMax,
					prod.InputStarved,
					prod.OutputBlocked,
				))
			}
		}

		for _, belt := range pf.Belts {
			if belt.BeltID <= 0 {
				continue
			}
			planet.Belts = append(planet.Belts, NewBeltMetrics(
				belt.BeltID,
				"item_"+strconv.Itoa(belt.ItemType),
				belt.Throughput,
				belt.MaxThroughput,
			))
		}

		st.Planets[planetID] = planet
	}

	return st
}
