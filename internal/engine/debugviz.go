package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"tilepilot/internal/logging"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
)

// Debug raster dumps. Only active when the engine was constructed with
// WithDebugDir; failures here never affect the solve.

// dumpVerdictDebug writes the stitched grid with accepted tiles outlined.
func (e *Engine) dumpVerdictDebug(tag string, tiles []Tile, sol Solution) {
	if e.debugDir == "" || len(tiles) == 0 {
		return
	}

	stitched, side := stitchGrid(tiles)
	dc := gg.NewContextForImage(stitched)
	cellW := float64(stitched.Bounds().Dx()) / float64(side)
	cellH := float64(stitched.Bounds().Dy()) / float64(side)

	for i, accepted := range sol.Decisions {
		row := float64(i / side)
		col := float64(i % side)
		if accepted {
			dc.SetRGBA(0, 0.8, 0, 0.9)
		} else {
			dc.SetRGBA(0.8, 0, 0, 0.4)
		}
		dc.SetLineWidth(3)
		dc.DrawRectangle(col*cellW+2, row*cellH+2, cellW-4, cellH-4)
		dc.Stroke()
	}

	e.savePNG(tag, dc)
}

// dumpDetectorDebug additionally marks raw detection centers.
func (e *Engine) dumpDetectorDebug(category string, tiles []Tile, side int, hits []detection, allowed []string, sol Solution) {
	if e.debugDir == "" || len(tiles) == 0 {
		return
	}

	stitched, _ := stitchGrid(tiles)
	dc := gg.NewContextForImage(stitched)
	w := float64(stitched.Bounds().Dx())
	h := float64(stitched.Bounds().Dy())
	cellW := w / float64(side)
	cellH := h / float64(side)

	for i, accepted := range sol.Decisions {
		if !accepted {
			continue
		}
		row := float64(i / side)
		col := float64(i % side)
		dc.SetRGBA(0, 0.8, 0, 0.9)
		dc.SetLineWidth(3)
		dc.DrawRectangle(col*cellW+2, row*cellH+2, cellW-4, cellH-4)
		dc.Stroke()
	}

	for _, d := range hits {
		if labelAllowed(d.label, allowed) {
			dc.SetRGBA(0, 0.4, 1, 0.9)
		} else {
			dc.SetRGBA(0.6, 0.6, 0.6, 0.7)
		}
		dc.DrawCircle(d.cx*w, d.cy*h, 5)
		dc.Fill()
		dc.DrawString(fmt.Sprintf("%s %.2f", d.label, d.score), d.cx*w+8, d.cy*h)
	}

	e.savePNG("detector-"+category, dc)
}

func (e *Engine) savePNG(tag string, dc *gg.Context) {
	if err := os.MkdirAll(e.debugDir, 0755); err != nil {
		logging.EngineDebug("debug dir unavailable: %v", err)
		return
	}
	name := fmt.Sprintf("%s_%s.png", tag, uuid.NewString()[:8])
	path := filepath.Join(e.debugDir, name)
	if err := dc.SavePNG(path); err != nil {
		logging.EngineDebug("debug dump failed: %v", err)
		return
	}
	logging.EngineDebug("debug raster written: %s", path)
}
