package world

import (
	"testing"

	"github.com/agargo/server/internal/core/ecs"
)

func TestGrid_LargeEntitySpansBuckets(t *testing.T) {
	g := NewGrid(10)
	id := ecs.EntityID(1)

	// Radius 25 around (50,50) covers buckets [2..7] on both axes.
	g.Insert(id, 50, 50, 25)

	// A query far inside the span must still find it once.
	got := g.QueryRect(70, 70, 75, 75, nil)
	if len(got) != 1 || got[0] != id {
		t.Fatalf("QueryRect=%v want [%d]", got, id)
	}

	// A query outside the circle's bounding box must not.
	got = g.QueryRect(200, 200, 210, 210, nil)
	if len(got) != 0 {
		t.Fatalf("QueryRect outside span=%v want empty", got)
	}
}

func TestGrid_QueryDeduplicates(t *testing.T) {
	g := NewGrid(10)
	id := ecs.EntityID(7)
	g.Insert(id, 50, 50, 30) // many buckets

	got := g.QueryRect(0, 0, 100, 100, nil)
	if len(got) != 1 {
		t.Fatalf("expected one dedup'd result, got %v", got)
	}
}

func TestGrid_RemoveClearsAllBuckets(t *testing.T) {
	g := NewGrid(10)
	id := ecs.EntityID(3)
	g.Insert(id, 15, 15, 20)
	if g.Len() != 1 {
		t.Fatalf("Len=%d want 1", g.Len())
	}

	g.Remove(id)
	if g.Len() != 0 {
		t.Fatalf("Len=%d want 0 after remove", g.Len())
	}
	if got := g.QueryRect(-10, -10, 40, 40, nil); len(got) != 0 {
		t.Fatalf("removed entity still queryable: %v", got)
	}
}

func TestGrid_UpdateRebuckets(t *testing.T) {
	g := NewGrid(10)
	id := ecs.EntityID(9)
	g.Insert(id, 5, 5, 2)
	g.Update(id, 95, 95, 2)

	if got := g.QueryRect(0, 0, 10, 10, nil); len(got) != 0 {
		t.Fatalf("entity still at old position: %v", got)
	}
	got := g.QueryRect(90, 90, 100, 100, nil)
	if len(got) != 1 || got[0] != id {
		t.Fatalf("entity missing at new position: %v", got)
	}
}

func TestGrid_QueryNeighbors(t *testing.T) {
	g := NewGrid(20)
	near := ecs.EntityID(1)
	far := ecs.EntityID(2)
	g.Insert(near, 100, 100, 5)
	g.Insert(far, 400, 400, 5)

	got := g.QueryNeighbors(110, 110, 30, nil)
	if len(got) != 1 || got[0] != near {
		t.Fatalf("QueryNeighbors=%v want [%d]", got, near)
	}
}
