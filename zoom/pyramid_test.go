package zoom

import (
	"testing"

	"mapimport/model"
)

func TestCollectAncestorsWalksSixLevels(t *testing.T) {
	pairs := collectAncestors([]model.Coord{{X: 4, Y: 4}})
	if len(pairs) != maxZoomLevel {
		t.Fatalf("expected %d ancestor pairs, got %d", maxZoomLevel, len(pairs))
	}
	for z := 1; z <= maxZoomLevel; z++ {
		found := false
		for _, p := range pairs {
			if p.zoom == z {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing zoom level %d", z)
		}
	}
}

func TestCollectAncestorsDeduplicatesSharedParents(t *testing.T) {
	// (0,0) and (1,0) share the same parent at every zoom level.
	pairs := collectAncestors([]model.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	if len(pairs) != maxZoomLevel {
		t.Fatalf("expected deduped %d pairs, got %d", maxZoomLevel, len(pairs))
	}
}

func TestCollectAncestorsNegativeCoordsStayContiguous(t *testing.T) {
	pairs := collectAncestors([]model.Coord{{X: -1, Y: -1}})
	if len(pairs) != maxZoomLevel {
		t.Fatalf("expected %d pairs, got %d", maxZoomLevel, len(pairs))
	}
	for _, p := range pairs {
		if p.zoom == 1 && (p.coord.X != -1 || p.coord.Y != -1) {
			t.Fatalf("expected parent((-1,-1)) == (-1,-1), got %v", p.coord)
		}
	}
}
