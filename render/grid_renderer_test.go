package render

import (
	"bytes"
	"image/color"
	"testing"

	"mapimport/model"
)

func solidTexture(w, h int, c color.RGBA) *Texture {
	pix := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4] = c.R
		pix[i*4+1] = c.G
		pix[i*4+2] = c.B
		pix[i*4+3] = c.A
	}
	return &Texture{Pix: pix, Width: w, Height: h}
}

func blankGrid() model.HmapGridData {
	return model.HmapGridData{
		TileX:    0,
		TileY:    0,
		Tilesets: []model.Tileset{{ResourceName: "grass"}},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	grid := blankGrid()
	textures := []*Texture{solidTexture(4, 4, color.RGBA{10, 20, 30, 255})}

	a := Render(grid, textures)
	b := Render(grid, textures)
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("expected byte-identical renders of the same grid")
	}
}

func TestTextureWrap(t *testing.T) {
	grid := blankGrid()
	// 7x5 texture with a distinctive top-left pixel.
	tex := solidTexture(7, 5, color.RGBA{1, 2, 3, 255})
	tex.Pix[0], tex.Pix[1], tex.Pix[2], tex.Pix[3] = 200, 201, 202, 255

	img := Render(grid, []*Texture{tex})
	got := img.RGBAAt(0, 0)
	want := tex.at(0, 0)
	if got != want {
		t.Fatalf("top-left pixel = %v, want %v", got, want)
	}
}

func TestCliffThresholdBoundary(t *testing.T) {
	base := []model.Tileset{{ResourceName: "grass"}}
	tex := solidTexture(1, 1, color.RGBA{100, 100, 100, 255})

	mkGrid := func(diff float64) model.HmapGridData {
		g := model.HmapGridData{TileX: 0, TileY: 0, Tilesets: base}
		var z [model.GridCells]float64
		z[50*model.GridWidth+50] = 0
		z[50*model.GridWidth+51] = diff
		g.ZMap = &z
		return g
	}

	notCliff := Render(mkGrid(2.00), []*Texture{tex})
	if notCliff.RGBAAt(50, 50) != (color.RGBA{100, 100, 100, 255}) {
		t.Fatalf("2.00 diff should not trigger a cliff, got %v", notCliff.RGBAAt(50, 50))
	}

	isCliffImg := Render(mkGrid(2.01), []*Texture{tex})
	if isCliffImg.RGBAAt(50, 50) == (color.RGBA{100, 100, 100, 255}) {
		t.Fatal("2.01 diff should trigger a cliff and darken the center cell")
	}
}

func TestMissingTileset(t *testing.T) {
	g := model.HmapGridData{TileX: 0, TileY: 0, Tilesets: []model.Tileset{{ResourceName: "grass"}}}
	g.TileIndices[0] = 5 // out of range: only one tileset defined

	img := Render(g, []*Texture{solidTexture(1, 1, color.RGBA{1, 1, 1, 255})})
	if img.RGBAAt(0, 0) != missingColor {
		t.Fatalf("expected missing-tileset gray at (0,0), got %v", img.RGBAAt(0, 0))
	}
}

func TestMissingTilesetOverriddenByPriorityBorder(t *testing.T) {
	g := model.HmapGridData{TileX: 0, TileY: 0, Tilesets: []model.Tileset{{ResourceName: "grass"}}}
	g.TileIndices[0] = 5  // (0,0): missing
	g.TileIndices[1] = 9  // (1,0): higher priority neighbor forces (0,0) black

	img := Render(g, []*Texture{solidTexture(1, 1, color.RGBA{1, 1, 1, 255})})
	if img.RGBAAt(0, 0) != (color.RGBA{0, 0, 0, 255}) {
		t.Fatalf("expected opaque black border pixel, got %v", img.RGBAAt(0, 0))
	}
}

func TestPriorityBorderIndependentOfZMap(t *testing.T) {
	g := model.HmapGridData{TileX: 0, TileY: 0, Tilesets: []model.Tileset{{ResourceName: "grass"}}}
	g.TileIndices[5*model.GridWidth+5] = 1
	g.TileIndices[5*model.GridWidth+6] = 9 // forces (5,5) black regardless of zMap

	tex := solidTexture(1, 1, color.RGBA{50, 50, 50, 255})

	withoutZ := Render(g, []*Texture{tex, tex})
	withZ := g
	var z [model.GridCells]float64
	z[5*model.GridWidth+5] = 100 // would be a dramatic cliff if it mattered here
	withZ.ZMap = &z
	withZImg := Render(withZ, []*Texture{tex, tex})

	want := color.RGBA{0, 0, 0, 255}
	if withoutZ.RGBAAt(5, 5) != want || withZImg.RGBAAt(5, 5) != want {
		t.Fatalf("priority border pixel must be opaque black regardless of zMap presence")
	}
}
