package importer

import "mapimport/model"

// BatchContext accumulates grid rows, tile rows, and storage-MB deltas
// until a flush threshold is hit. It is owned exclusively by the
// pipeline consumer and is never shared across segments.
type BatchContext struct {
	batchSize int

	grids []model.GridRecord
	tiles []model.TileRecord
	mb    float64
}

// NewBatchContext builds an accumulator that flushes once either
// pending list reaches batchSize.
func NewBatchContext(batchSize int) *BatchContext {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BatchContext{batchSize: batchSize}
}

// Add appends one grid/tile pair and its storage delta.
func (b *BatchContext) Add(grid model.GridRecord, tile model.TileRecord, deltaMB float64) {
	b.grids = append(b.grids, grid)
	b.tiles = append(b.tiles, tile)
	b.mb += deltaMB
}

// ShouldFlush is true once either pending list has reached the batch
// size threshold.
func (b *BatchContext) ShouldFlush() bool {
	return len(b.grids) >= b.batchSize || len(b.tiles) >= b.batchSize
}

// HasPendingItems is true if any of grids, tiles, or mb is nonzero.
func (b *BatchContext) HasPendingItems() bool {
	return len(b.grids) > 0 || len(b.tiles) > 0 || b.mb != 0
}

// ExtractBatch atomically returns and resets all pending state.
func (b *BatchContext) ExtractBatch() ([]model.GridRecord, []model.TileRecord, float64) {
	grids, tiles, mb := b.grids, b.tiles, b.mb
	b.grids = nil
	b.tiles = nil
	b.mb = 0
	return grids, tiles, mb
}
