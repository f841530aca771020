package engine

import (
	"fmt"
	"image"
)

// detection is one decoded object-detector hit.
type detection struct {
	label string
	score float32
	// Box center, normalized to [0,1] in model input space.
	cx, cy float64
}

// decodeDetections unpacks the detector's raw output tensor. Layout is
// [1, 4+numClasses(+mask coefficients), anchors] with box centers in model
// input pixel space. Rows past the class block are ignored. Only hits with
// score strictly above the threshold survive.
func decodeDetections(out Tensor, classes []string, inputW, inputH int) ([]detection, error) {
	if len(out.Shape) != 3 || out.Shape[0] != 1 {
		return nil, fmt.Errorf("unexpected detector output shape %v", out.Shape)
	}
	rows := int(out.Shape[1])
	anchors := int(out.Shape[2])
	if rows < 4+len(classes) {
		return nil, fmt.Errorf("detector output has %d rows, need %d", rows, 4+len(classes))
	}
	if len(out.Floats) < rows*anchors {
		return nil, fmt.Errorf("detector output truncated: %d values", len(out.Floats))
	}

	at := func(row, a int) float32 { return out.Floats[row*anchors+a] }

	var hits []detection
	for a := 0; a < anchors; a++ {
		best := -1
		var bestScore float32
		for c := 0; c < len(classes); c++ {
			if s := at(4+c, a); s > bestScore {
				bestScore = s
				best = c
			}
		}
		if best < 0 || bestScore <= detectorScoreThreshold {
			continue
		}
		hits = append(hits, detection{
			label: classes[best],
			score: bestScore,
			cx:    float64(at(0, a)) / float64(inputW),
			cy:    float64(at(1, a)) / float64(inputH),
		})
	}
	return hits, nil
}

// tileIndexFor maps a normalized box center to a row-major tile index in a
// side×side grid. Centers on the far edge clamp into the last cell.
func tileIndexFor(cx, cy float64, side int) int {
	col := int(cx * float64(side))
	row := int(cy * float64(side))
	if col >= side {
		col = side - 1
	}
	if row >= side {
		row = side - 1
	}
	if col < 0 {
		col = 0
	}
	if row < 0 {
		row = 0
	}
	return row*side + col
}

// tileLocalPoint converts a normalized center to coordinates inside the
// tile it falls in, scaled to that tile's raster size.
func tileLocalPoint(cx, cy float64, side int, t Tile) image.Point {
	cellSpan := 1.0 / float64(side)
	col := float64(t.Index % side)
	row := float64(t.Index / side)
	fx := (cx - col*cellSpan) / cellSpan
	fy := (cy - row*cellSpan) / cellSpan
	b := t.Raster.Bounds()
	p := image.Pt(int(fx*float64(b.Dx())), int(fy*float64(b.Dy())))
	// Clamp to the raster so jittered clicks stay on the tile.
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X >= b.Dx() {
		p.X = b.Dx() - 1
	}
	if p.Y >= b.Dy() {
		p.Y = b.Dy() - 1
	}
	return p
}

func labelAllowed(label string, allowed []string) bool {
	for _, a := range allowed {
		if a == label {
			return true
		}
	}
	return false
}
