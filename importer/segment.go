// Package importer drives one segment through map selection, bounded
// concurrent rendering, and batched persistence.
package importer

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"mapimport/model"
	"mapimport/quota"
	"mapimport/render"
)

// TileResourceProvider resolves a tileset resource name to an owned
// texture, or nil if it could not be resolved. Satisfied by
// *tileresource.Service.
type TileResourceProvider interface {
	GetTileImage(ctx context.Context, resourceName string) *render.Texture
}

// Config tunes one SegmentImporter's pipeline.
type Config struct {
	StorageRoot       string
	RenderParallelism int
	ChannelCapacity   int
	BatchSize         int
}

// SegmentImporter imports one segment's grids onto a target map.
type SegmentImporter struct {
	db       *gorm.DB
	quotaSvc *quota.Service
	tileSvc  TileResourceProvider
	cfg      Config
}

// New builds a SegmentImporter. Zero-valued Config fields fall back
// to the spec's defaults.
func New(db *gorm.DB, quotaSvc *quota.Service, tileSvc TileResourceProvider, cfg Config) *SegmentImporter {
	if cfg.RenderParallelism <= 0 {
		cfg.RenderParallelism = 4
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &SegmentImporter{db: db, quotaSvc: quotaSvc, tileSvc: tileSvc, cfg: cfg}
}

// Result is what one segment import produces.
type Result struct {
	MapID          uint64
	IsNewMap       bool
	GridsImported  int
	GridsSkipped   int
	CreatedGridIDs []string
	ImportedCoords []model.Coord
	TilesRendered  int
}

// ImportSegment runs the full per-segment pipeline: map selection,
// bounded producer/consumer rendering, and batched persistence.
func (si *SegmentImporter) ImportSegment(ctx context.Context, tenantID string, mode model.ImportMode, grids []model.HmapGridData) (Result, error) {
	mapID, isNew, toImport, skipped, err := si.selectMap(tenantID, mode, grids)
	if err != nil {
		return Result{}, err
	}

	res := Result{MapID: mapID, IsNewMap: isNew, GridsSkipped: skipped}
	if len(toImport) == 0 {
		return res, nil
	}

	rendered := make(chan *model.RenderedGrid, si.cfg.ChannelCapacity)
	sem := semaphore.NewWeighted(int64(si.cfg.RenderParallelism))

	producerCtx, cancelProducers := context.WithCancel(ctx)
	defer cancelProducers()

	producerErr := make(chan error, 1)
	go si.runProducers(producerCtx, sem, tenantID, mapID, toImport, rendered, producerErr, cancelProducers)

	imported, coords, tilesRendered, consumeErr := si.consume(ctx, tenantID, mapID, rendered)

	var firstProducerErr error
	select {
	case firstProducerErr = <-producerErr:
	default:
	}

	res.GridsImported = len(imported)
	res.CreatedGridIDs = imported
	res.ImportedCoords = coords
	res.TilesRendered = tilesRendered

	si.clearTileCache()

	if firstProducerErr != nil {
		return res, firstProducerErr
	}
	if consumeErr != nil {
		return res, consumeErr
	}
	return res, nil
}

// clearTileCache calls ClearMemoryCache on the tile resource provider
// if it supports it; the interface itself only requires GetTileImage
// so plain test doubles need not implement it.
func (si *SegmentImporter) clearTileCache() {
	if clearer, ok := si.tileSvc.(interface{ ClearMemoryCache() }); ok {
		clearer.ClearMemoryCache()
	}
}

func (si *SegmentImporter) selectMap(tenantID string, mode model.ImportMode, grids []model.HmapGridData) (mapID uint64, isNew bool, toImport []model.HmapGridData, skipped int, err error) {
	if mode == model.CreateNew {
		mapID, err = si.createMap(tenantID)
		if err != nil {
			return 0, false, nil, 0, err
		}
		return mapID, true, grids, 0, nil
	}

	ids := make([]string, len(grids))
	for i, g := range grids {
		ids[i] = g.GridID()
	}

	var existing []model.GridRecord
	if err := si.db.Model(&model.GridRecord{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&existing).Error; err != nil {
		return 0, false, nil, 0, &model.PersistenceError{Op: "select_map.lookup_existing", Err: err}
	}

	existingSet := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		existingSet[e.ID] = struct{}{}
	}

	if len(existing) > 0 {
		mapID = existing[0].MapID
	} else {
		mapID, err = si.createMap(tenantID)
		if err != nil {
			return 0, false, nil, 0, err
		}
		isNew = true
	}

	toImport = make([]model.HmapGridData, 0, len(grids))
	for _, g := range grids {
		if _, present := existingSet[g.GridID()]; present {
			skipped++
			continue
		}
		toImport = append(toImport, g)
	}
	return mapID, isNew, toImport, skipped, nil
}

func (si *SegmentImporter) createMap(tenantID string) (uint64, error) {
	rec := model.MapRecord{
		Name:     fmt.Sprintf("import-%d", time.Now().UnixNano()),
		TenantID: tenantID,
	}
	if err := si.db.Create(&rec).Error; err != nil {
		return 0, &model.PersistenceError{Op: "create_map", Err: err}
	}
	return rec.ID, nil
}

func (si *SegmentImporter) runProducers(ctx context.Context, sem *semaphore.Weighted, tenantID string, mapID uint64, grids []model.HmapGridData, out chan<- *model.RenderedGrid, errOut chan<- error, cancel context.CancelFunc) {
	defer close(out)

	var firstErr error
	var wg sync.WaitGroup
	for _, g := range grids {
		if ctx.Err() != nil {
			firstErr = model.ErrCanceled
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			firstErr = model.ErrCanceled
			break
		}

		grid := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			textures := si.resolveTextures(ctx, grid)
			img := render.Render(grid, textures)

			rg := &model.RenderedGrid{
				Grid:     grid,
				MapID:    mapID,
				TenantID: tenantID,
				TilePath: filepath.Join("tenants", tenantID, fmt.Sprint(mapID), "0", fmt.Sprintf("%d_%d.png", grid.TileX, grid.TileY)),
				Image:    img,
			}
			select {
			case out <- rg:
			case <-ctx.Done():
				rg.Release()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		select {
		case errOut <- firstErr:
		default:
		}
		cancel()
	}
}

func (si *SegmentImporter) resolveTextures(ctx context.Context, grid model.HmapGridData) []*render.Texture {
	textures := make([]*render.Texture, len(grid.Tilesets))
	for i, tset := range grid.Tilesets {
		textures[i] = si.tileSvc.GetTileImage(ctx, tset.ResourceName)
	}
	return textures
}

func (si *SegmentImporter) consume(ctx context.Context, tenantID string, mapID uint64, in <-chan *model.RenderedGrid) (imported []string, coords []model.Coord, tilesRendered int, err error) {
	batch := NewBatchContext(si.cfg.BatchSize)

	flush := func() error {
		if !batch.HasPendingItems() {
			return nil
		}
		grids, tiles, mb := batch.ExtractBatch()
		return si.flush(tenantID, grids, tiles, mb)
	}

	var firstErr error
	canceled := false

	for rg := range in {
		if canceled || (ctx.Err() != nil && firstErr == nil) {
			if ctx.Err() != nil && firstErr == nil {
				firstErr = model.ErrCanceled
				canceled = true
			}
			rg.Release()
			continue
		}

		size, writeErr := si.writeTile(rg)
		if writeErr != nil {
			if firstErr == nil {
				firstErr = writeErr
			}
			rg.Release()
			continue
		}

		tileRec := model.TileRecord{
			MapID:          rg.MapID,
			Zoom:           0,
			CoordX:         rg.Grid.TileX,
			CoordY:         rg.Grid.TileY,
			FilePath:       rg.TilePath,
			CacheTimestamp: time.Now().Unix(),
			TenantID:       rg.TenantID,
			FileSizeBytes:  size,
		}
		gridRec := model.GridRecord{
			ID:         rg.Grid.GridID(),
			MapID:      rg.MapID,
			CoordX:     rg.Grid.TileX,
			CoordY:     rg.Grid.TileY,
			NextUpdate: time.Now().Add(-time.Minute),
			TenantID:   rg.TenantID,
		}
		batch.Add(gridRec, tileRec, float64(size)/(1024*1024))
		imported = append(imported, gridRec.ID)
		coords = append(coords, rg.Grid.Coord())
		tilesRendered++
		rg.Release()

		if batch.ShouldFlush() {
			if flushErr := flush(); flushErr != nil && firstErr == nil {
				firstErr = flushErr
			}
		}
	}

	if flushErr := flush(); flushErr != nil && firstErr == nil {
		firstErr = flushErr
	}

	return imported, coords, tilesRendered, firstErr
}

func (si *SegmentImporter) writeTile(rg *model.RenderedGrid) (int64, error) {
	fullPath := filepath.Join(si.cfg.StorageRoot, rg.TilePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, &model.IoError{Path: fullPath, Op: "mkdir", Err: err}
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return 0, &model.IoError{Path: fullPath, Op: "create", Err: err}
	}
	defer f.Close()

	if err := png.Encode(f, rg.Image); err != nil {
		return 0, &model.IoError{Path: fullPath, Op: "encode", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		return 0, &model.IoError{Path: fullPath, Op: "stat", Err: err}
	}
	return info.Size(), nil
}

func (si *SegmentImporter) flush(tenantID string, grids []model.GridRecord, tiles []model.TileRecord, mb float64) error {
	return si.db.Transaction(func(tx *gorm.DB) error {
		if len(grids) > 0 {
			if err := tx.Create(&grids).Error; err != nil {
				return &model.PersistenceError{Op: "flush.grids", Err: err}
			}
		}
		if len(tiles) > 0 {
			if err := tx.Create(&tiles).Error; err != nil {
				return &model.PersistenceError{Op: "flush.tiles", Err: err}
			}
		}
		if mb != 0 {
			if err := si.quotaSvc.Apply(tx, tenantID, mb); err != nil {
				return err
			}
		}
		return nil
	})
}
