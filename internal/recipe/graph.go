package recipe

import "sort"

// DependencyNode is one node in a production dependency graph.
type DependencyNode struct {
	ItemID        int               `json:"item_id"`
	ItemName      string            `json:"item_name"`
	RecipeID      int               `json:"recipe_id,omitempty"`
	IsRawResource bool              `json:"is_raw_resource"`
	Dependencies  []*DependencyNode `json:"dependencies,omitempty"`
}

// DependencyGraph builds the upstream dependency tree for an item,
// following the first producing recipe at each level, down to raw
// resources or maxDepth.
func (db *Database) DependencyGraph(itemID, maxDepth int) *DependencyNode {
	return db.buildNode(itemID, 0, maxDepth)
}

func (db *Database) buildNode(itemID, depth, maxDepth int) *DependencyNode {
	node := &DependencyNode{
		ItemID:   itemID,
		ItemName: db.ItemName(itemID),
	}

	producers := db.byOutput[itemID]
	if len(producers) == 0 {
		node.IsRawResource = true
		return node
	}
	node.RecipeID = producers[0]

	if depth >= maxDepth {
		return node
	}

	recipe := db.recipes[node.RecipeID]
	for _, in := range recipe.Inputs {
		node.Dependencies = append(node.Dependencies, db.buildNode(in.ItemID, depth+1, maxDepth))
	}
	return node
}

// TraceUpstream returns the distinct upstream item IDs feeding the
// given item, breadth-limited by maxDepth, in ascending order.
func (db *Database) TraceUpstream(itemID, maxDepth int) []int {
	visited := make(map[int]bool)
	db.traceUp(itemID, 0, maxDepth, visited)
	delete(visited, itemID)
	return sortedKeys(visited)
}

func (db *Database) traceUp(itemID, depth, maxDepth int, visited map[int]bool) {
	if depth > maxDepth || visited[itemID] {
		return
	}
	visited[itemID] = true
	for _, recipeID := range db.byOutput[itemID] {
		for _, in := range db.recipes[recipeID].Inputs {
			db.traceUp(in.ItemID, depth+1, maxDepth, visited)
		}
	}
}

// TraceDownstream returns the distinct item IDs that consume the given
// item, directly or transitively, limited by maxDepth, in ascending
// order.
func (db *Database) TraceDownstream(itemID, maxDepth int) []int {
	visited := make(map[int]bool)
	db.traceDown(itemID, 0, maxDepth, visited)
	delete(visited, itemID)
	return sortedKeys(visited)
}

func (db *Database) traceDown(itemID, depth, maxDepth int, visited map[int]bool) {
	if depth > maxDepth || visited[itemID] {
		return
	}
	visited[itemID] = true
	for _, r := range db.recipes {
		for _, in := range r.Inputs {
			if in.ItemID != itemID {
				continue
			}
			for _, out := range r.Outputs {
				db.traceDown(out.ItemID, depth+1, maxDepth, visited)
			}
		}
	}
}

// ChainStep is one level of a production chain requirement.
type ChainStep struct {
	ItemID        int     `json:"item_id"`
	ItemName      string  `json:"item_name"`
	RecipeID      int     `json:"recipe_id,omitempty"`
	RatePerMinute float64 `json:"rate_per_minute"`
	Buildings     float64 `json:"buildings"` // buildings needed at mk1 speed
	Level         int     `json:"level"`
	IsRawResource bool    `json:"is_raw_resource"`
}

// ProductionChain expands the full requirement chain to sustain
// targetRate items/min of the given item. Requirements for shared
// intermediates accumulate across branches.
func (db *Database) ProductionChain(itemID int, targetRate float64, maxDepth int) []ChainStep {
	rates := make(map[int]float64)
	levels := make(map[int]int)
	db.expandChain(itemID, targetRate, 0, maxDepth, rates, levels)

	ids := make([]int, 0, len(rates))
	for id := range rates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if levels[ids[i]] != levels[ids[j]] {
			return levels[ids[i]] < levels[ids[j]]
		}
		return ids[i] < ids[j]
	})

	steps := make([]ChainStep, 0, len(ids))
	for _, id := range ids {
		step := ChainStep{
			ItemID:        id,
			ItemName:      db.ItemName(id),
			RatePerMinute: rates[id],
			Level:         levels[id],
			IsRawResource: db.IsRawResource(id),
		}
		if producers := db.byOutput[id]; len(producers) > 0 {
			step.RecipeID = producers[0]
			r := db.recipes[producers[0]]
			if perBuilding := r.ItemsPerMinute(db.BuildingSpeed(r.Building, "mk1")); perBuilding > 0 {
				step.Buildings = rates[id] / perBuilding
			}
		}
		steps = append(steps, step)
	}
	return steps
}

func (db *Database) expandChain(itemID int, rate float64, level, maxDepth int, rates map[int]float64, levels map[int]int) {
	rates[itemID] += rate
	if existing, ok := levels[itemID]; !ok || level > existing {
		levels[itemID] = level
	}

	if level >= maxDepth {
		return
	}
	producers := db.byOutput[itemID]
	if len(producers) == 0 {
		return
	}

	r := db.recipes[producers[0]]
	out := float64(r.PrimaryOutput().Count)
	if out <= 0 {
		return
	}
	cyclesPerMinute := rate / out
	for _, in := range r.Inputs {
		db.expandChain(in.ItemID, cyclesPerMinute*float64(in.Count), level+1, maxDepth, rates, levels)
	}
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
