package engine

import (
	"image"
	"image/color"
	"testing"
)

func solidTile(idx int, c color.RGBA) Tile {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return Tile{Index: idx, Raster: img}
}

func TestStitchGridGeometry(t *testing.T) {
	tiles := make([]Tile, 9)
	for i := range tiles {
		tiles[i] = solidTile(i, color.RGBA{A: 255})
	}
	// Distinct corner tiles to verify row-major placement.
	tiles[0] = solidTile(0, color.RGBA{R: 255, A: 255})
	tiles[8] = solidTile(8, color.RGBA{B: 255, A: 255})

	out, side := stitchGrid(tiles)
	if side != 3 {
		t.Fatalf("side = %d, want 3", side)
	}
	if got := out.Bounds(); got.Dx() != 30 || got.Dy() != 30 {
		t.Fatalf("stitched bounds = %v, want 30x30", got)
	}

	r, _, _, _ := out.At(2, 2).RGBA()
	if r>>8 < 200 {
		t.Error("tile 0 not placed at top-left")
	}
	_, _, b, _ := out.At(27, 27).RGBA()
	if b>>8 < 200 {
		t.Error("tile 8 not placed at bottom-right")
	}
}

func TestToTensorUnitRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 0, B: 127, A: 255})
		}
	}
	tn := toTensorUnit(img, 4, 4)

	if len(tn.Shape) != 4 || tn.Shape[1] != 3 {
		t.Fatalf("shape = %v, want NCHW with 3 channels", tn.Shape)
	}
	if len(tn.Floats) != 3*4*4 {
		t.Fatalf("len = %d", len(tn.Floats))
	}
	// Channel-first: red plane first, all ones.
	if tn.Floats[0] != 1.0 {
		t.Errorf("red plane value = %f, want 1.0", tn.Floats[0])
	}
	if tn.Floats[16] != 0.0 {
		t.Errorf("green plane value = %f, want 0.0", tn.Floats[16])
	}
	for _, v := range tn.Floats {
		if v < 0 || v > 1 {
			t.Fatalf("value %f outside [0,1]", v)
		}
	}
}

func TestToTensorStandardizedCentersChannels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	// Mid grey lands near zero after standardization.
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 122, G: 117, B: 104, A: 255})
		}
	}
	tn := toTensorStandardized(img, 2, 2)
	for _, v := range tn.Floats {
		if v > 0.1 || v < -0.1 {
			t.Errorf("standardized mid-grey value %f not near zero", v)
		}
	}
}

func TestCosineSimilarityExactCases(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{3, 4}); got != 0.6 {
		t.Errorf("cos = %v, want 0.6", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal cos = %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero magnitude cos = %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched dims cos = %v, want 0", got)
	}
}

func TestTileIndexFor(t *testing.T) {
	tests := []struct {
		cx, cy float64
		side   int
		want   int
	}{
		{0.5, 0.5, 3, 4},
		{0.0, 0.0, 3, 0},
		{0.99, 0.99, 3, 8},
		{1.0, 1.0, 3, 8}, // far edge clamps into the last cell
		{0.1, 0.9, 3, 6},
		{0.6, 0.1, 4, 2},
	}
	for _, tt := range tests {
		if got := tileIndexFor(tt.cx, tt.cy, tt.side); got != tt.want {
			t.Errorf("tileIndexFor(%v, %v, %d) = %d, want %d", tt.cx, tt.cy, tt.side, got, tt.want)
		}
	}
}
