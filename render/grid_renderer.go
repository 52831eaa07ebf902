// Package render rasterizes one parsed grid into a 100x100 RGBA tile
// through three deterministic passes: base sampling, cliff shading,
// and priority borders.
package render

import (
	"image"
	"image/color"

	"mapimport/model"
)

const (
	cliffThreshold = 2.0
	epsilon        = 0.01
)

var missingColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Texture is an owned RGBA tileset texture, as handed out by
// tileresource.Service. A nil Texture at a given tileset index means
// "unavailable" and renders as the missing-tile gray.
type Texture struct {
	Pix    []byte // RGBA, row-major, 4 bytes/px
	Width  int
	Height int
}

func (t *Texture) at(x, y int) color.RGBA {
	mx := euclideanMod(x, t.Width)
	my := euclideanMod(y, t.Height)
	i := (my*t.Width + mx) * 4
	return color.RGBA{R: t.Pix[i], G: t.Pix[i+1], B: t.Pix[i+2], A: t.Pix[i+3]}
}

func euclideanMod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

// Render produces a deterministic 100x100 RGBA tile for one grid.
// textures[i] is the texture for tileset index i, or nil if that
// tileset's resource was unavailable.
func Render(grid model.HmapGridData, textures []*Texture) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, model.GridWidth, model.GridHeight))

	basePass(img, grid, textures)
	if grid.ZMap != nil {
		cliffPass(img, grid.ZMap)
	}
	priorityBorderPass(img, grid)

	return img
}

func basePass(img *image.RGBA, grid model.HmapGridData, textures []*Texture) {
	for y := 0; y < model.GridHeight; y++ {
		for x := 0; x < model.GridWidth; x++ {
			idx := y*model.GridWidth + x
			tsetIdx := grid.TileIndices[idx]

			var c color.RGBA
			if int(tsetIdx) >= len(textures) || textures[tsetIdx] == nil {
				c = missingColor
			} else {
				c = textures[tsetIdx].at(x, y)
			}
			img.SetRGBA(x, y, c)
		}
	}
}

func cliffPass(img *image.RGBA, zmap *[model.GridCells]float64) {
	for y := 1; y <= model.GridHeight-2; y++ {
		for x := 1; x <= model.GridWidth-2; x++ {
			idx := y*model.GridWidth + x
			z := zmap[idx]
			if !isCliff(zmap, x, y, z) {
				continue
			}
			stampCliff(img, x, y)
		}
	}
}

func isCliff(zmap *[model.GridCells]float64, x, y int, z float64) bool {
	neighbors := [4]int{
		y*model.GridWidth + (x - 1),
		y*model.GridWidth + (x + 1),
		(y-1)*model.GridWidth + x,
		(y+1)*model.GridWidth + x,
	}
	for _, idx := range neighbors {
		if absf(zmap[idx]-z) >= cliffThreshold+epsilon {
			return true
		}
	}
	return false
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// stampCliff blends a 3x3 neighborhood toward black: the center cell
// at factor 1.0 (pure black), the 8 surrounding cells at factor 0.1.
// Stamps are applied in row-major traversal order and overlapping
// stamps compound sequentially; this is part of the rendering
// contract, not an implementation detail.
func stampCliff(img *image.RGBA, cx, cy int) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := cx+dx, cy+dy
			if x < 0 || x >= model.GridWidth || y < 0 || y >= model.GridHeight {
				continue
			}
			factor := 0.1
			if dx == 0 && dy == 0 {
				factor = 1.0
			}
			darken(img, x, y, factor)
		}
	}
}

func darken(img *image.RGBA, x, y int, factor float64) {
	c := img.RGBAAt(x, y)
	img.SetRGBA(x, y, color.RGBA{
		R: scaleChannel(c.R, factor),
		G: scaleChannel(c.G, factor),
		B: scaleChannel(c.B, factor),
		A: c.A,
	})
}

func scaleChannel(v uint8, factor float64) uint8 {
	return uint8(float64(v) * (1 - factor))
}

// priorityBorderPass overwrites a cell with opaque black whenever any
// 4-cardinal neighbor (in-grid, no wrap) has a strictly higher raw
// tileIndices value. Computed purely from the original indices, so it
// is independent of whatever cliffPass painted.
func priorityBorderPass(img *image.RGBA, grid model.HmapGridData) {
	for y := 0; y < model.GridHeight; y++ {
		for x := 0; x < model.GridWidth; x++ {
			idx := y*model.GridWidth + x
			self := grid.TileIndices[idx]

			if hasHigherPriorityNeighbor(grid, x, y, self) {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
}

func hasHigherPriorityNeighbor(grid model.HmapGridData, x, y int, self byte) bool {
	type offset struct{ dx, dy int }
	for _, o := range [4]offset{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx, ny := x+o.dx, y+o.dy
		if nx < 0 || nx >= model.GridWidth || ny < 0 || ny >= model.GridHeight {
			continue
		}
		if grid.TileIndices[ny*model.GridWidth+nx] > self {
			return true
		}
	}
	return false
}
