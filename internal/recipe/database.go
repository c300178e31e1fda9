// Package recipe provides the read-only recipe and item reference
// table used for production math and dependency analysis. Data is
// embedded at build time; lookups are safe for concurrent use once
// loaded.
package recipe

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed data/items.json data/recipes.json data/buildings.json
var dataFS embed.FS

// Stack is an item quantity in a recipe.
type Stack struct {
	ItemID int `json:"item_id"`
	Count  int `json:"count"`
}

// Recipe is a single production recipe.
type Recipe struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Outputs  []Stack `json:"outputs"`
	Inputs   []Stack `json:"inputs"`
	Time     float64 `json:"time"` // seconds per cycle
	Building string  `json:"building"`
}

// PrimaryOutput returns the first output stack, or a zero stack.
func (r Recipe) PrimaryOutput() Stack {
	if len(r.Outputs) == 0 {
		return Stack{}
	}
	return r.Outputs[0]
}

// ItemsPerMinute is the primary output rate at the given building
// speed multiplier.
func (r Recipe) ItemsPerMinute(buildingSpeed float64) float64 {
	if r.Time <= 0 {
		return 0
	}
	cyclesPerMinute := 60.0 / r.Time * buildingSpeed
	return cyclesPerMinute * float64(r.PrimaryOutput().Count)
}

// InputsPerMinute returns per-item input requirements at the given
// building speed multiplier.
func (r Recipe) InputsPerMinute(buildingSpeed float64) map[int]float64 {
	if r.Time <= 0 {
		return nil
	}
	cyclesPerMinute := 60.0 / r.Time * buildingSpeed
	reqs := make(map[int]float64, len(r.Inputs))
	for _, in := range r.Inputs {
		reqs[in.ItemID] = float64(in.Count) * cyclesPerMinute
	}
	return reqs
}

// Database holds the loaded reference table.
type Database struct {
	items       map[int]string
	itemsByName map[string]int
	recipes     map[int]Recipe
	byOutput    map[int][]int // item ID -> producing recipe IDs
	speeds      map[string]map[string]float64
}

// Load parses the embedded data files.
func Load() (*Database, error) {
	db := &Database{
		items:       make(map[int]string),
		itemsByName: make(map[string]int),
		recipes:     make(map[int]Recipe),
		byOutput:    make(map[int][]int),
	}

	itemData, err := dataFS.ReadFile("data/items.json")
	if err != nil {
		return nil, fmt.Errorf("read items data: %w", err)
	}
	var rawItems map[string]string
	if err := json.Unmarshal(itemData, &rawItems); err != nil {
		return nil, fmt.Errorf("parse items data: %w", err)
	}
	for idStr, name := range rawItems {
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", idStr, err)
		}
		db.items[id] = name
		db.itemsByName[name] = id
	}

	recipeData, err := dataFS.ReadFile("data/recipes.json")
	if err != nil {
		return nil, fmt.Errorf("read recipes data: %w", err)
	}
	var recipes []Recipe
	if err := json.Unmarshal(recipeData, &recipes); err != nil {
		return nil, fmt.Errorf("parse recipes data: %w", err)
	}
	for _, r := range recipes {
		db.recipes[r.ID] = r
		for _, out := range r.Outputs {
			db.byOutput[out.ItemID] = append(db.byOutput[out.ItemID], r.ID)
		}
	}
	for itemID := range db.byOutput {
		sort.Ints(db.byOutput[itemID])
	}

	speedData, err := dataFS.ReadFile("data/buildings.json")
	if err != nil {
		return nil, fmt.Errorf("read buildings data: %w", err)
	}
	if err := json.Unmarshal(speedData, &db.speeds); err != nil {
		return nil, fmt.Errorf("parse buildings data: %w", err)
	}

	return db, nil
}

// ItemCount returns the number of known items.
func (db *Database) ItemCount() int { return len(db.items) }

// RecipeCount returns the number of known recipes.
func (db *Database) RecipeCount() int { return len(db.recipes) }

// ItemName resolves an item ID to its name, with a stable placeholder
// for unknown IDs.
func (db *Database) ItemName(id int) string {
	if name, ok := db.items[id]; ok {
		return name
	}
	return fmt.Sprintf("item_%d", id)
}

// ItemID resolves an item name to its ID.
func (db *Database) ItemID(name string) (int, bool) {
	id, ok := db.itemsByName[name]
	return id, ok
}

// Recipe returns a recipe by ID.
func (db *Database) Recipe(id int) (Recipe, bool) {
	r, ok := db.recipes[id]
	return r, ok
}

// RecipesForItem returns all recipes producing the item.
func (db *Database) RecipesForItem(itemID int) []Recipe {
	ids := db.byOutput[itemID]
	recipes := make([]Recipe, 0, len(ids))
	for _, id := range ids {
		recipes = append(recipes, db.recipes[id])
	}
	return recipes
}

// BuildingSpeed returns the speed multiplier for a building type and
// tier, defaulting to 1.0 when unknown.
func (db *Database) BuildingSpeed(building, tier string) float64 {
	tiers, ok := db.speeds[building]
	if !ok {
		return 1.0
	}
	speed, ok := tiers[tier]
	if !ok {
		return 1.0
	}
	return speed
}

// TheoreticalRate is the primary output rate of a recipe in a building
// of the given tier, in items per minute.
func (db *Database) TheoreticalRate(recipeID int, tier string) float64 {
	r, ok := db.recipes[recipeID]
	if !ok {
		return 0
	}
	return r.ItemsPerMinute(db.BuildingSpeed(r.Building, tier))
}

// IsRawResource reports whether no known recipe produces the item.
func (db *Database) IsRawResource(itemID int) bool {
	return len(db.byOutput[itemID]) == 0
}
