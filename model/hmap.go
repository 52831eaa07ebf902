package model

import "fmt"

// Tileset is one entry in a grid's ordered tileset list. The index of
// a Tileset within HmapGridData.Tilesets is the "tileset index" that
// TileIndices references.
type Tileset struct {
	ResourceName string
}

// HmapGridData is one 100x100 terrain grid as read from a .hmap file.
type HmapGridData struct {
	TileX       int64
	TileY       int64
	Tilesets    []Tileset
	TileIndices [GridCells]byte
	ZMap        *[GridCells]float64 // nil if the grid carries no height data
}

// GridID derives the file- and tenant-unique grid identifier from its
// grid coordinates.
func (g HmapGridData) GridID() string {
	return fmt.Sprintf("%d_%d", g.TileX, g.TileY)
}

func (g HmapGridData) Coord() Coord { return Coord{X: g.TileX, Y: g.TileY} }

// TilesetAt returns the tileset for a cell's raw index, and false if
// the index is out of range (the cell is "missing").
func (g HmapGridData) TilesetAt(tileIdx byte) (Tileset, bool) {
	if int(tileIdx) >= len(g.Tilesets) {
		return Tileset{}, false
	}
	return g.Tilesets[tileIdx], true
}

// HmapMarker is a point of interest placed at an absolute tile
// coordinate. Both marker kinds of the .hmap format share this type:
// ResourceName is set for a resource marker and empty for an "other"
// marker.
type HmapMarker struct {
	Name         string
	TileX        int64
	TileY        int64
	ResourceName string // empty => placeholder icon
}

// PlaceholderMarkerIcon is used for HmapOtherMarker-shaped markers,
// i.e. ones with no resource icon of their own.
const PlaceholderMarkerIcon = "gfx/terobjs/mm/custom"

// Icon returns the resource to render for this marker.
func (m HmapMarker) Icon() string {
	if m.ResourceName != "" {
		return m.ResourceName
	}
	return PlaceholderMarkerIcon
}

// HmapContainer is the fully parsed contents of one .hmap file, valid
// for the duration of a single import call.
type HmapContainer struct {
	HeaderVersion []byte // opaque, not interpreted by the core

	segmentOrder []int64 // first-occurrence order, for stable tie-breaking
	grids        map[int64][]HmapGridData
	markers      map[int64][]HmapMarker
}

// NewHmapContainer builds an empty container ready for incremental
// population by HmapReader.
func NewHmapContainer(header []byte) *HmapContainer {
	return &HmapContainer{
		HeaderVersion: header,
		grids:         make(map[int64][]HmapGridData),
		markers:       make(map[int64][]HmapMarker),
	}
}

// RegisterSegment ensures a segment id is known, preserving
// first-occurrence order, without attaching any grid or marker to it
// yet.
func (c *HmapContainer) RegisterSegment(segmentID int64) {
	c.ensureSegment(segmentID)
}

// AddGrid appends a grid to a segment, registering the segment on
// first sight (preserving first-occurrence order).
func (c *HmapContainer) AddGrid(segmentID int64, g HmapGridData) {
	c.ensureSegment(segmentID)
	c.grids[segmentID] = append(c.grids[segmentID], g)
}

// AddMarker appends a marker to a segment.
func (c *HmapContainer) AddMarker(segmentID int64, m HmapMarker) {
	c.ensureSegment(segmentID)
	c.markers[segmentID] = append(c.markers[segmentID], m)
}

func (c *HmapContainer) ensureSegment(segmentID int64) {
	if _, ok := c.grids[segmentID]; !ok {
		c.segmentOrder = append(c.segmentOrder, segmentID)
		c.grids[segmentID] = nil
		c.markers[segmentID] = nil
	}
}

// SegmentIDs returns segment ids in stable first-occurrence order.
func (c *HmapContainer) SegmentIDs() []int64 {
	out := make([]int64, len(c.segmentOrder))
	copy(out, c.segmentOrder)
	return out
}

// GridsForSegment returns the ordered grid list for a segment.
func (c *HmapContainer) GridsForSegment(id int64) []HmapGridData {
	return c.grids[id]
}

// MarkersForSegment returns the ordered marker list for a segment.
func (c *HmapContainer) MarkersForSegment(id int64) []HmapMarker {
	return c.markers[id]
}
