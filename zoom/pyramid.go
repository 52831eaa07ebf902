// Package zoom recomputes ancestor zoom levels after a map's base
// tiles have changed.
package zoom

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	xdraw "golang.org/x/image/draw"
	"gorm.io/gorm"

	"mapimport/model"
	"mapimport/quota"
)

const maxZoomLevel = 6

// pair is one (zoom, coord) ancestor to rebuild.
type pair struct {
	zoom  int
	coord model.Coord
}

// Builder recomputes zoom levels 1..6 above a map's freshly imported
// base tiles.
type Builder struct {
	db          *gorm.DB
	quotaSvc    *quota.Service
	storageRoot string
}

// New builds a zoom pyramid Builder.
func New(db *gorm.DB, quotaSvc *quota.Service, storageRoot string) *Builder {
	return &Builder{db: db, quotaSvc: quotaSvc, storageRoot: storageRoot}
}

// Rebuild walks every touched coordinate up through six ancestor zoom
// levels and regenerates each one, strictly in ascending zoom order.
func (b *Builder) Rebuild(mapID uint64, tenantID string, touched []model.Coord) error {
	pairs := collectAncestors(touched)

	byZoom := make(map[int][]model.Coord)
	for _, p := range pairs {
		byZoom[p.zoom] = append(byZoom[p.zoom], p.coord)
	}

	for z := 1; z <= maxZoomLevel; z++ {
		for _, c := range byZoom[z] {
			if err := b.updateZoomLevel(mapID, c, z, tenantID); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectAncestors walks parent() six times per coordinate and
// deduplicates the resulting (zoom, coord) pairs. Grounded on
// TileHash.CalculateParents's ancestor-collection shape, fixed here
// to exactly six levels.
func collectAncestors(touched []model.Coord) []pair {
	seen := make(map[pair]struct{})
	var out []pair

	for _, c := range touched {
		cur := c
		for z := 1; z <= maxZoomLevel; z++ {
			cur = cur.Parent()
			p := pair{zoom: z, coord: cur}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// updateZoomLevel composites the four children of coord at zoom-1
// into one half-resolution tile at (zoom, coord), writes the PNG, and
// upserts the TileRecord. Missing children render as a transparent
// quadrant.
func (b *Builder) updateZoomLevel(mapID uint64, coord model.Coord, zoom int, tenantID string) error {
	childZoom := zoom - 1
	canvas := image.NewRGBA(image.Rect(0, 0, model.GridWidth*2, model.GridHeight*2))

	children := []struct {
		coord model.Coord
		ox    int
		oy    int
	}{
		{model.Coord{X: coord.X * 2, Y: coord.Y * 2}, 0, 0},
		{model.Coord{X: coord.X*2 + 1, Y: coord.Y * 2}, model.GridWidth, 0},
		{model.Coord{X: coord.X * 2, Y: coord.Y*2 + 1}, 0, model.GridHeight},
		{model.Coord{X: coord.X*2 + 1, Y: coord.Y*2 + 1}, model.GridWidth, model.GridHeight},
	}

	for _, child := range children {
		img, err := b.loadChildTile(mapID, childZoom, child.coord)
		if err != nil {
			return err
		}
		if img == nil {
			continue // transparent quadrant
		}
		draw.Draw(canvas, image.Rect(child.ox, child.oy, child.ox+model.GridWidth, child.oy+model.GridHeight), img, image.Point{}, draw.Src)
	}

	out := image.NewRGBA(image.Rect(0, 0, model.GridWidth, model.GridHeight))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)

	relPath := filepath.Join("tenants", tenantID, fmt.Sprint(mapID), fmt.Sprint(zoom), fmt.Sprintf("%d_%d.png", coord.X, coord.Y))
	fullPath := filepath.Join(b.storageRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return &model.IoError{Path: fullPath, Op: "mkdir", Err: err}
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return &model.IoError{Path: fullPath, Op: "create", Err: err}
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return &model.IoError{Path: fullPath, Op: "encode", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		return &model.IoError{Path: fullPath, Op: "stat", Err: err}
	}

	rec := model.TileRecord{
		MapID:          mapID,
		Zoom:           zoom,
		CoordX:         coord.X,
		CoordY:         coord.Y,
		FilePath:       relPath,
		CacheTimestamp: time.Now().Unix(),
		TenantID:       tenantID,
		FileSizeBytes:  info.Size(),
	}
	if err := b.db.Save(&rec).Error; err != nil {
		return &model.PersistenceError{Op: "zoom.upsert_tile", Err: err}
	}

	mb := float64(info.Size()) / (1024 * 1024)
	if mb != 0 {
		if err := b.quotaSvc.Apply(b.db, tenantID, mb); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) loadChildTile(mapID uint64, zoom int, coord model.Coord) (image.Image, error) {
	var rec model.TileRecord
	err := b.db.Model(&model.TileRecord{}).
		Where("map_id = ? AND zoom = ? AND coord_x = ? AND coord_y = ?", mapID, zoom, coord.X, coord.Y).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "zoom.load_child", Err: err}
	}

	f, err := os.Open(filepath.Join(b.storageRoot, rec.FilePath))
	if err != nil {
		return nil, nil // tile row exists but file is gone; treat as missing
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, &model.IoError{Path: rec.FilePath, Op: "decode", Err: err}
	}
	return img, nil
}
