package engine

import (
	"context"
	"fmt"
	"image"
	"sync"

	"tilepilot/internal/logging"
	"tilepilot/internal/registry"
)

// Engine owns the cached model sessions and produces Solutions. Construct
// with New; collaborators are injected, there are no package-level
// singletons.
type Engine struct {
	reg *registry.Registry
	rt  Runtime

	mu       sync.Mutex
	sessions map[string]ModelRunner
	down     error // sticky cause once a session failed to open

	calibrated bool
	debugDir   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCalibratedThresholds makes the classification path use the per-category
// similarity cutoffs shipped in the manifest instead of the flat default.
func WithCalibratedThresholds() Option {
	return func(e *Engine) { e.calibrated = true }
}

// WithDebugDir enables annotated raster dumps for every solve.
func WithDebugDir(dir string) Option {
	return func(e *Engine) { e.debugDir = dir }
}

// New constructs an Engine over a registry and a model runtime.
func New(reg *registry.Registry, rt Runtime, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		rt:       rt,
		sessions: make(map[string]ModelRunner),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// session returns the cached runner for a model, opening it on first use.
// A creation failure poisons the engine: every later call short-circuits to
// ErrModelUnavailable until process restart.
func (e *Engine) session(name string) (ModelRunner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.down != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, e.down)
	}
	if s, ok := e.sessions[name]; ok {
		return s, nil
	}

	spec, err := e.reg.Model(name)
	if err != nil {
		e.down = err
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	path, err := e.reg.ModelPath(name)
	if err != nil {
		e.down = err
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	timer := logging.StartTimer(logging.CategoryEngine, "open "+name)
	s, err := e.rt.Open(path, spec.Inputs, spec.Outputs)
	timer.Stop()
	if err != nil {
		e.down = err
		logging.EngineError("failed to open model %s: %v", name, err)
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	e.sessions[name] = s
	logging.Engine("model session opened: %s (%s)", name, path)
	return s, nil
}

// Detect maps a free-text prompt and a set of tiles to a complete Solution.
// largeGrid forces the segmentation path even for 9-tile grids ("select all
// squares" area challenges). Fails rather than returning a partial result.
func (e *Engine) Detect(ctx context.Context, prompt string, tiles []Tile, largeGrid bool) (Solution, error) {
	timer := logging.StartTimer(logging.CategoryEngine, "Detect")
	defer timer.Stop()

	if len(tiles) == 0 {
		return Solution{}, fmt.Errorf("no tiles to classify")
	}
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}

	labels := e.reg.Labels()
	category, err := ResolveCategory(prompt, labels.ChallengeAlias)
	if err != nil {
		return Solution{}, err
	}
	logging.EngineDebug("prompt %q resolved to category %q (%d tiles, largeGrid=%v)",
		prompt, category, len(tiles), largeGrid)

	var sol Solution
	switch {
	case e.reg.IsDetectorCategory(category):
		sol, err = e.detectorPath(category, tiles)
	case len(tiles) == 9 && !largeGrid:
		sol, err = e.classifyPath(category, tiles)
	default:
		sol, err = e.segmentPath(category, tiles)
	}
	if err != nil {
		return Solution{}, err
	}

	logging.Engine("solution for %q: %d/%d tiles accepted, confidence %.2f",
		category, len(sol.Accepted()), len(tiles), sol.Confidence)
	return sol, nil
}

// detectorPath runs the object detector once over the lone tile, or over all
// tiles stitched into a square raster, and maps surviving boxes to tiles.
func (e *Engine) detectorPath(category string, tiles []Tile) (Solution, error) {
	s, err := e.session(registry.ModelDetector)
	if err != nil {
		return Solution{}, err
	}
	spec, err := e.reg.Model(registry.ModelDetector)
	if err != nil {
		return Solution{}, err
	}
	w, h := spec.InputSize[0], spec.InputSize[1]

	var input Tensor
	var side int
	if len(tiles) == 1 {
		input = toTensorUnit(tiles[0].Raster, w, h)
		side = 1
	} else {
		stitched, n := stitchGrid(tiles)
		input = toTensorUnit(stitched, w, h)
		side = n
	}

	outs, err := s.Run([]Tensor{input})
	if err != nil {
		return Solution{}, fmt.Errorf("detector inference: %w", err)
	}
	if len(outs) == 0 {
		return Solution{}, fmt.Errorf("detector produced no output")
	}

	hits, err := decodeDetections(outs[0], spec.Classes, w, h)
	if err != nil {
		return Solution{}, err
	}

	allowed := e.reg.AllowedDetectorLabels(category)
	sol := emptySolution(len(tiles), detectorConfidence)
	for i := range tiles {
		sol.Points[i] = tileCenter(tiles[i])
	}
	kept := 0
	for _, d := range hits {
		if !labelAllowed(d.label, allowed) {
			continue
		}
		idx := tileIndexFor(d.cx, d.cy, side)
		if idx >= len(tiles) {
			continue
		}
		sol.Decisions[idx] = true
		sol.Points[idx] = tileLocalPoint(d.cx, d.cy, side, tiles[idx])
		kept++
	}
	logging.EngineDebug("detector: %d raw hits, %d matched %q", len(hits), kept, category)

	e.dumpDetectorDebug(category, tiles, side, hits, allowed, sol)
	return sol, nil
}

// classifyPath scores each tile independently against the encoded prompt.
func (e *Engine) classifyPath(category string, tiles []Tile) (Solution, error) {
	text, err := e.encodePrompt(category)
	if err != nil {
		return Solution{}, err
	}

	vision, err := e.session(registry.ModelVisionEncoder)
	if err != nil {
		return Solution{}, err
	}
	spec, err := e.reg.Model(registry.ModelVisionEncoder)
	if err != nil {
		return Solution{}, err
	}
	w, h := spec.InputSize[0], spec.InputSize[1]

	threshold := float64(classifyThreshold)
	if e.calibrated {
		if t, ok := e.reg.CalibratedThreshold(category); ok {
			threshold = t
		}
	}

	sol := emptySolution(len(tiles), classifyConfidence)
	for i, t := range tiles {
		outs, err := vision.Run([]Tensor{toTensorStandardized(t.Raster, w, h)})
		if err != nil {
			return Solution{}, fmt.Errorf("vision inference (tile %d): %w", i, err)
		}
		if len(outs) == 0 {
			return Solution{}, fmt.Errorf("vision encoder produced no output")
		}
		sim := cosineSimilarity(text, outs[0].Floats)
		if sim > threshold {
			sol.Decisions[i] = true
		}
		sol.Points[i] = tileCenter(t)
		logging.EngineDebug("classify tile %d: similarity %.4f (threshold %.4f)", i, sim, threshold)
	}

	e.dumpVerdictDebug("classify-"+category, tiles, sol)
	return sol, nil
}

// segmentPath runs text-conditioned segmentation over the stitched grid and
// accepts tiles whose sub-region mean mask intensity clears the threshold.
func (e *Engine) segmentPath(category string, tiles []Tile) (Solution, error) {
	s, err := e.session(registry.ModelSegmenter)
	if err != nil {
		return Solution{}, err
	}
	spec, err := e.reg.Model(registry.ModelSegmenter)
	if err != nil {
		return Solution{}, err
	}
	w, h := spec.InputSize[0], spec.InputSize[1]

	stitched, side := stitchGrid(tiles)
	ids, mask := tokenize(category)
	inputs := []Tensor{
		{Shape: []int64{1, contextLength}, Ints: ids},
		toTensorStandardized(stitched, w, h),
		{Shape: []int64{1, contextLength}, Ints: mask},
	}

	outs, err := s.Run(inputs)
	if err != nil {
		return Solution{}, fmt.Errorf("segmentation inference: %w", err)
	}
	if len(outs) == 0 {
		return Solution{}, fmt.Errorf("segmenter produced no output")
	}

	logits := outs[0]
	if len(logits.Floats) < w*h {
		return Solution{}, fmt.Errorf("segmentation mask truncated: %d values", len(logits.Floats))
	}

	sol := emptySolution(len(tiles), segmentConfidence)
	cellW, cellH := w/side, h/side
	for i, t := range tiles {
		row := t.Index / side
		col := t.Index % side
		var sum float64
		var n int
		for y := row * cellH; y < (row+1)*cellH; y++ {
			for x := col * cellW; x < (col+1)*cellW; x++ {
				sum += sigmoid(float64(logits.Floats[y*w+x]))
				n++
			}
		}
		mean := sum / float64(n)
		if mean > segmentThreshold {
			sol.Decisions[i] = true
		}
		sol.Points[i] = tileCenter(t)
		logging.EngineDebug("segment tile %d: mean mask %.4f", i, mean)
	}

	e.dumpVerdictDebug("segment-"+category, tiles, sol)
	return sol, nil
}

// encodePrompt runs the text encoder once and returns the prompt embedding.
func (e *Engine) encodePrompt(category string) ([]float32, error) {
	s, err := e.session(registry.ModelTextEncoder)
	if err != nil {
		return nil, err
	}
	ids, mask := tokenize(category)
	outs, err := s.Run([]Tensor{
		{Shape: []int64{1, contextLength}, Ints: ids},
		{Shape: []int64{1, contextLength}, Ints: mask},
	})
	if err != nil {
		return nil, fmt.Errorf("text inference: %w", err)
	}
	if len(outs) == 0 || len(outs[0].Floats) == 0 {
		return nil, fmt.Errorf("text encoder produced no output")
	}
	return outs[0].Floats, nil
}

// TestModels opens every model declared in the manifest and reports the
// result per model. Backs the TEST_MODELS coordinator operation. Each
// model is probed independently so one broken asset never masks the
// state of the rest, and probing never poisons the engine; a successful
// probe leaves the session cached for later solves.
func (e *Engine) TestModels() map[string]error {
	results := make(map[string]error)
	for _, name := range e.reg.ModelNames() {
		results[name] = e.probe(name)
	}
	return results
}

func (e *Engine) probe(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[name]; ok {
		return nil
	}
	spec, err := e.reg.Model(name)
	if err != nil {
		return err
	}
	path, err := e.reg.ModelPath(name)
	if err != nil {
		return err
	}
	s, err := e.rt.Open(path, spec.Inputs, spec.Outputs)
	if err != nil {
		return err
	}
	e.sessions[name] = s
	return nil
}

// Close releases every cached model session.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, s := range e.sessions {
		s.Close()
		delete(e.sessions, name)
	}
}

func emptySolution(n int, confidence float64) Solution {
	return Solution{
		Decisions:  make([]bool, n),
		Points:     make([]image.Point, n),
		Confidence: confidence,
	}
}
