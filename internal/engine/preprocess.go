package engine

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Per-channel standardization constants for the vision and segmentation
// encoders, matching the exported models' training-time preprocessing.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// rescale resamples an image to the given size.
func rescale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// gridSide returns the side length of the square grid holding n tiles.
func gridSide(n int) int {
	return int(math.Round(math.Sqrt(float64(n))))
}

// stitchGrid composes all tiles into one square row-major raster. Cell size
// is taken from the first tile; every tile is resampled to it. Returns the
// raster and the grid side length.
func stitchGrid(tiles []Tile) (*image.RGBA, int) {
	side := gridSide(len(tiles))
	if side < 1 {
		side = 1
	}
	cellW := tiles[0].Raster.Bounds().Dx()
	cellH := tiles[0].Raster.Bounds().Dy()
	if cellW == 0 || cellH == 0 {
		cellW, cellH = 100, 100
	}

	out := image.NewRGBA(image.Rect(0, 0, cellW*side, cellH*side))
	for _, t := range tiles {
		row := t.Index / side
		col := t.Index % side
		dst := image.Rect(col*cellW, row*cellH, (col+1)*cellW, (row+1)*cellH)
		xdraw.CatmullRom.Scale(out, dst, t.Raster, t.Raster.Bounds(), xdraw.Over, nil)
	}
	return out, side
}

// toTensorUnit converts an image to an NCHW float32 tensor with pixel
// values scaled into [0,1]. Detector-path numeric semantics.
func toTensorUnit(img image.Image, w, h int) Tensor {
	scaled := rescale(img, w, h)
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			i := y*w + x
			data[i] = float32(r>>8) / 255.0
			data[plane+i] = float32(g>>8) / 255.0
			data[2*plane+i] = float32(b>>8) / 255.0
		}
	}
	return Tensor{Shape: []int64{1, 3, int64(h), int64(w)}, Floats: data}
}

// toTensorStandardized converts an image to an NCHW float32 tensor with
// per-channel mean/std standardization. Embedding and segmentation paths.
func toTensorStandardized(img image.Image, w, h int) Tensor {
	scaled := rescale(img, w, h)
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			i := y*w + x
			data[i] = (float32(r>>8)/255.0 - clipMean[0]) / clipStd[0]
			data[plane+i] = (float32(g>>8)/255.0 - clipMean[1]) / clipStd[1]
			data[2*plane+i] = (float32(b>>8)/255.0 - clipMean[2]) / clipStd[2]
		}
	}
	return Tensor{Shape: []int64{1, 3, int64(h), int64(w)}, Floats: data}
}

// tileCenter returns the geometric center of a tile's raster, the default
// click point.
func tileCenter(t Tile) image.Point {
	b := t.Raster.Bounds()
	return image.Pt(b.Dx()/2, b.Dy()/2)
}

// cosineSimilarity computes the cosine similarity of two vectors. Zero
// magnitude on either side yields 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, ma, mb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		ma += float64(a[i]) * float64(a[i])
		mb += float64(b[i]) * float64(b[i])
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
