package world

import (
	"math"

	"github.com/agargo/server/internal/core/ecs"
)

type gridKey struct {
	cx int32
	cy int32
}

// Grid is a uniform spatial index over entity ids. An entity is inserted into
// every bucket its circle overlaps; queries dedup by id. Derived, rebuildable
// cache — never a source of truth. Game loop only, no locks.
type Grid struct {
	cellSize    float32
	invCellSize float32
	cells       map[gridKey][]ecs.EntityID
	entries     map[ecs.EntityID][]gridKey
	seen        map[ecs.EntityID]struct{} // query dedup scratch
}

func NewGrid(cellSize float32) *Grid {
	if cellSize <= 0 {
		cellSize = 20
	}
	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1 / cellSize,
		cells:       make(map[gridKey][]ecs.EntityID, 256),
		entries:     make(map[ecs.EntityID][]gridKey, 1024),
		seen:        make(map[ecs.EntityID]struct{}, 64),
	}
}

func (g *Grid) coord(v float32) int32 {
	return int32(math.Floor(float64(v * g.invCellSize)))
}

// Insert places an entity into every bucket overlapped by its circle.
func (g *Grid) Insert(id ecs.EntityID, x, y, radius float32) {
	if radius < 0 {
		radius = 0
	}
	minX := g.coord(x - radius)
	maxX := g.coord(x + radius)
	minY := g.coord(y - radius)
	maxY := g.coord(y + radius)

	keys := g.entries[id]
	keys = keys[:0]
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			k := gridKey{cx: cx, cy: cy}
			g.cells[k] = append(g.cells[k], id)
			keys = append(keys, k)
		}
	}
	g.entries[id] = keys
}

// Update re-buckets an entity after it moved or resized.
func (g *Grid) Update(id ecs.EntityID, x, y, radius float32) {
	g.Remove(id)
	g.Insert(id, x, y, radius)
}

// Remove takes an entity out of every bucket it occupies.
func (g *Grid) Remove(id ecs.EntityID) {
	keys, ok := g.entries[id]
	if !ok {
		return
	}
	for _, k := range keys {
		bucket := g.cells[k]
		for i, other := range bucket {
			if other == id {
				bucket[i] = bucket[len(bucket)-1]
				bucket = bucket[:len(bucket)-1]
				break
			}
		}
		if len(bucket) == 0 {
			delete(g.cells, k)
		} else {
			g.cells[k] = bucket
		}
	}
	delete(g.entries, id)
}

// Reset clears the whole index for a per-tick rebuild.
func (g *Grid) Reset() {
	clear(g.cells)
	clear(g.entries)
}

// QueryRect appends to out every entity whose buckets intersect the rectangle,
// deduplicated, in unspecified order. Callers sort when order matters.
func (g *Grid) QueryRect(minX, minY, maxX, maxY float32, out []ecs.EntityID) []ecs.EntityID {
	clear(g.seen)
	x0, x1 := g.coord(minX), g.coord(maxX)
	y0, y1 := g.coord(minY), g.coord(maxY)
	for cx := x0; cx <= x1; cx++ {
		for cy := y0; cy <= y1; cy++ {
			for _, id := range g.cells[gridKey{cx: cx, cy: cy}] {
				if _, dup := g.seen[id]; dup {
					continue
				}
				g.seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// QueryNeighbors appends entities whose buckets fall within radius of a point.
// Coarse bucket-level test only; callers do exact circle checks.
func (g *Grid) QueryNeighbors(x, y, radius float32, out []ecs.EntityID) []ecs.EntityID {
	return g.QueryRect(x-radius, y-radius, x+radius, y+radius, out)
}

// Len returns the number of indexed entities.
func (g *Grid) Len() int {
	return len(g.entries)
}
