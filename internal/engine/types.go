// Package engine implements the on-device inference pipeline: prompt to
// category resolution, model selection, preprocessing, and per-tile
// accept/reject decisions. All models run locally through an injected
// Runtime; sessions are opened lazily and cached for the process lifetime.
package engine

import (
	"errors"
	"image"
)

// Tile is one image cell of a challenge grid. Immutable once extracted.
type Tile struct {
	// Index is 0-based, row-major within the grid.
	Index int

	// Raster is the decoded tile image.
	Raster image.Image

	// SourceRect is the tile's bounding box in page coordinates, used by
	// the interaction player to map click points back onto the page.
	SourceRect image.Rectangle
}

// Solution is a complete per-tile verdict. Never partially populated: Detect
// returns either a valid Solution or an error.
type Solution struct {
	// Decisions has one entry per tile, row-major.
	Decisions []bool

	// Points holds the click point for each tile, in tile-local raster
	// coordinates. Only meaningful where the matching decision is true.
	Points []image.Point

	// Confidence is in [0,1]. A nominal per-path constant, not an
	// aggregate of individual detections.
	Confidence float64
}

// Accepted returns the indices of tiles marked true.
func (s Solution) Accepted() []int {
	var out []int
	for i, d := range s.Decisions {
		if d {
			out = append(out, i)
		}
	}
	return out
}

// Tensor is a dense NCHW (or token-sequence) tensor crossing the Runtime
// boundary. Exactly one of Floats or Ints is populated.
type Tensor struct {
	Shape  []int64
	Floats []float32
	Ints   []int64
}

// ModelRunner is an opened, runnable handle to one model. Inputs and outputs
// are positional, in the order declared by the model's manifest spec.
type ModelRunner interface {
	Run(inputs []Tensor) ([]Tensor, error)
	Close() error
}

// Runtime opens model sessions. The production implementation wraps ONNX
// Runtime; tests inject fakes.
type Runtime interface {
	Open(path string, inputs, outputs []string) (ModelRunner, error)
}

// Failure taxonomy. Callers match with errors.Is.
var (
	// ErrUnknownCategory: the prompt resolved to nothing in the alias
	// table. Reported, not retried.
	ErrUnknownCategory = errors.New("unknown challenge category")

	// ErrModelUnavailable: a required model session could not be created.
	// Sticky: every later Detect fails fast until process restart.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Nominal confidence constants per inference path.
const (
	detectorConfidence = 0.8
	classifyConfidence = 0.7
	segmentConfidence  = 0.75
)

// Decision thresholds. All comparisons are strict.
const (
	detectorScoreThreshold = 0.5
	classifyThreshold      = 0.3
	segmentThreshold       = 0.5
)
