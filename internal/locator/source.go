package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"tilepilot/internal/bridge"
	"tilepilot/internal/engine"
	"tilepilot/internal/logging"
)

// ChallengeSource reads and answers one widget's challenge. The direct
// source works when the host document can see the challenge DOM; the
// bridge source covers cross-origin frames.
type ChallengeSource interface {
	// HasTiles reports whether a tile grid is currently visible.
	HasTiles(ctx context.Context) (bool, error)
	// Extract snapshots the prompt and tile rasters.
	Extract(ctx context.Context) (*bridge.Challenge, error)
	// Apply clicks the accepted tiles and submits.
	Apply(ctx context.Context, sol engine.Solution) error
}

// SourceFactory builds the challenge source for a scanned widget.
type SourceFactory func(ctx context.Context, w *Widget) (ChallengeSource, error)

// =============================================================================
// DIRECT SOURCE - challenge DOM readable from the host document
// =============================================================================

const challengeFactsScript = `
() => {
	const tiles = Array.from(document.querySelectorAll('td.rc-imageselect-tile, .rc-imageselect-tile'));
	const el = document.querySelector('.rc-imageselect-desc-wrapper strong')
		|| document.querySelector('.rc-imageselect-desc strong')
		|| document.querySelector('.rc-imageselect-instructions strong');
	return {
		prompt: el ? el.textContent.trim() : '',
		largeGrid: document.querySelector('table.rc-imageselect-table-44') !== null,
		tiles: tiles.map((td) => {
			const r = td.getBoundingClientRect();
			return { x: Math.round(r.x), y: Math.round(r.y), w: Math.round(r.width), h: Math.round(r.height) };
		}),
	};
}
`

const tileCountScript = `
() => document.querySelectorAll('td.rc-imageselect-tile, .rc-imageselect-tile').length
`

// Clicker performs pointer gestures in page coordinates.
type Clicker interface {
	ClickPoint(ctx context.Context, pt image.Point) error
	ClickSolution(ctx context.Context, decisions []bool, points []image.Point) error
}

type directSource struct {
	page    Page
	clicker Clicker
	rects   []image.Rectangle
}

// NewDirectSource reads the challenge straight from the host document
// and captures tiles as clipped CDP screenshots.
func NewDirectSource(page Page, clicker Clicker) ChallengeSource {
	return &directSource{page: page, clicker: clicker}
}

func (s *directSource) HasTiles(ctx context.Context) (bool, error) {
	raw, err := s.page.Eval(ctx, tileCountScript)
	if err != nil {
		return false, fmt.Errorf("count tiles: %w", err)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return false, fmt.Errorf("count tiles: %w", err)
	}
	return n > 0, nil
}

func (s *directSource) Extract(ctx context.Context) (*bridge.Challenge, error) {
	raw, err := s.page.Eval(ctx, challengeFactsScript)
	if err != nil {
		return nil, fmt.Errorf("challenge facts: %w", err)
	}
	var facts struct {
		Prompt    string      `json:"prompt"`
		LargeGrid bool        `json:"largeGrid"`
		Tiles     []rectFacts `json:"tiles"`
	}
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("challenge facts: %w", err)
	}

	ch := &bridge.Challenge{
		Prompt:       facts.Prompt,
		HasChallenge: len(facts.Tiles) > 0,
		LargeGrid:    facts.LargeGrid,
	}
	s.rects = s.rects[:0]
	for i, r := range facts.Tiles {
		rect := image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
		img, err := s.page.CaptureRegion(ctx, rect)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
		ch.Tiles = append(ch.Tiles, img)
		s.rects = append(s.rects, rect)
	}
	return ch, nil
}

func (s *directSource) Apply(ctx context.Context, sol engine.Solution) error {
	if len(sol.Decisions) > len(s.rects) {
		return fmt.Errorf("solution covers %d tiles, page has %d", len(sol.Decisions), len(s.rects))
	}
	points := make([]image.Point, len(sol.Decisions))
	for i := range sol.Decisions {
		points[i] = s.rects[i].Min.Add(sol.Points[i])
	}
	return s.clicker.ClickSolution(ctx, sol.Decisions, points)
}

// =============================================================================
// BRIDGE SOURCE - cross-origin frame behind the isolation bridge
// =============================================================================

type bridgeSource struct {
	br     *bridge.Bridge
	cached *bridge.Challenge
}

// NewBridgeSource serves a challenge through an attached bridge.
func NewBridgeSource(br *bridge.Bridge) ChallengeSource {
	return &bridgeSource{br: br}
}

func (s *bridgeSource) HasTiles(ctx context.Context) (bool, error) {
	ch, err := s.br.Extract(ctx)
	if err != nil {
		return false, err
	}
	s.cached = ch
	return ch.HasChallenge, nil
}

func (s *bridgeSource) Extract(ctx context.Context) (*bridge.Challenge, error) {
	if ch := s.cached; ch != nil {
		s.cached = nil
		return ch, nil
	}
	return s.br.Extract(ctx)
}

// Apply forwards the decisions; the frame script owns click timing and
// the submit press.
func (s *bridgeSource) Apply(ctx context.Context, sol engine.Solution) error {
	return s.br.Apply(ctx, sol.Decisions)
}

// =============================================================================
// PRODUCTION FACTORY
// =============================================================================

// challengeFrameSelectors locate the frame that hosts the tile grid.
var challengeFrameSelectors = []string{
	"iframe[src*='api2/bframe']",
	"iframe[title*='challenge']",
}

// NewPageSourceFactory builds sources against a live page: a bridge
// into the challenge frame when one resolves, otherwise the direct
// path against the host document.
func NewPageSourceFactory(page Page, clicker Clicker) SourceFactory {
	return func(ctx context.Context, w *Widget) (ChallengeSource, error) {
		for _, sel := range challengeFrameSelectors {
			frame, err := page.Frame(ctx, sel)
			if err != nil {
				continue
			}
			br, err := bridge.Attach(ctx, frame)
			if err != nil {
				return nil, err
			}
			logging.Locator("Widget %s: bridged challenge frame %s", w.Fingerprint, sel)
			return NewBridgeSource(br), nil
		}
		logging.LocatorDebug("Widget %s: no challenge frame, using direct source", w.Fingerprint)
		return NewDirectSource(page, clicker), nil
	}
}
