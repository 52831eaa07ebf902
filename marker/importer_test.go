package marker

import (
	"errors"
	"testing"

	"mapimport/model"
)

type recordingStore struct {
	saved []string
	pos   [][2]int
	fail  map[string]bool
}

func (s *recordingStore) SaveMarker(tenantID, gridID string, posX, posY int, icon, name string) error {
	if s.fail[name] {
		return errors.New("boom")
	}
	s.saved = append(s.saved, gridID)
	s.pos = append(s.pos, [2]int{posX, posY})
	return nil
}

func TestImportMarkersResolvesGridAndOffset(t *testing.T) {
	store := &recordingStore{}
	im := New(store)

	imported := map[string]struct{}{"1_2": {}}
	markers := []model.HmapMarker{
		{Name: "shop", TileX: 150, TileY: 250, ResourceName: "gfx/shop"},
	}

	res := im.ImportMarkers("tenant-a", imported, markers)
	if res.Imported != 1 || res.Skipped != 0 {
		t.Fatalf("expected 1 imported, got %+v", res)
	}
	if len(store.saved) != 1 || store.saved[0] != "1_2" {
		t.Fatalf("expected marker saved against grid 1_2, got %v", store.saved)
	}
	if store.pos[0] != [2]int{50, 50} {
		t.Fatalf("expected intra-grid offset (50, 50), got %v", store.pos[0])
	}
}

func TestImportMarkersSkipsUnimportedGrid(t *testing.T) {
	im := New(&recordingStore{})
	markers := []model.HmapMarker{{Name: "far", TileX: 5000, TileY: 5000}}

	res := im.ImportMarkers("tenant-a", map[string]struct{}{"1_2": {}}, markers)
	if res.Imported != 0 || res.Skipped != 1 {
		t.Fatalf("expected the marker to be skipped, got %+v", res)
	}
}

func TestImportMarkersSkipsOnPersistenceFailure(t *testing.T) {
	store := &recordingStore{fail: map[string]bool{"shop": true}}
	im := New(store)

	res := im.ImportMarkers("tenant-a", map[string]struct{}{"1_2": {}}, []model.HmapMarker{
		{Name: "shop", TileX: 150, TileY: 250},
	})
	if res.Imported != 0 || res.Skipped != 1 {
		t.Fatalf("expected save failure to count as skipped, got %+v", res)
	}
}

func TestImportMarkersUsesPlaceholderIcon(t *testing.T) {
	var gotIcon string
	store := &iconCapturingStore{capture: func(icon string) { gotIcon = icon }}
	im := New(store)

	im.ImportMarkers("tenant-a", map[string]struct{}{"0_0": {}}, []model.HmapMarker{
		{Name: "camp", TileX: 10, TileY: 10},
	})
	if gotIcon != model.PlaceholderMarkerIcon {
		t.Fatalf("expected placeholder icon, got %q", gotIcon)
	}
}

type iconCapturingStore struct {
	capture func(icon string)
}

func (s *iconCapturingStore) SaveMarker(_, _ string, _, _ int, icon, _ string) error {
	s.capture(icon)
	return nil
}
