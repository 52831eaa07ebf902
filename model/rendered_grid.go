package model

import "image"

// RenderedGrid is the handoff object between a producer (rendering)
// and the consumer (persistence) inside one segment's pipeline. It
// owns Image and must be released on every exit path.
type RenderedGrid struct {
	Grid     HmapGridData
	MapID    uint64
	TenantID string
	TilePath string // relative to the configured storage root
	Image    *image.RGBA
}

// Release drops the owned pixel buffer. Safe to call more than once.
func (r *RenderedGrid) Release() {
	r.Image = nil
}
