// Package locator finds challenge widgets on an attached page and
// drives each one through detection, solving, and submission.
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"tilepilot/internal/config"
	"tilepilot/internal/engine"
	"tilepilot/internal/logging"
)

// ErrExtraction reports that the tile grid never appeared within the
// polling window.
var ErrExtraction = errors.New("challenge tiles never appeared")

// Polling window for waitForTiles: exactly tilePollCount polls spaced
// tilePollInterval apart.
const (
	tilePollCount    = 10
	tilePollInterval = 500 * time.Millisecond

	// rescanSettle delays the re-scan after a mutation burst so the
	// page finishes rendering first.
	rescanSettle = 500 * time.Millisecond
)

// widgetSelectors is the prioritized list of widget markers. Earlier
// entries win when an element matches several.
var widgetSelectors = []string{
	"iframe[src*='api2/anchor']",
	"iframe[title*='reCAPTCHA']",
	".g-recaptcha",
	"[data-sitekey]",
}

// checkboxSelectors identify widgets whose consent checkbox must be
// clicked before a challenge appears.
var checkboxSelectors = map[string]bool{
	"iframe[src*='api2/anchor']": true,
	"iframe[title*='reCAPTCHA']": true,
}

const scanScript = `
(sel) => Array.from(document.querySelectorAll(sel)).map((el) => {
	const r = el.getBoundingClientRect();
	return {
		tag: el.tagName.toLowerCase(),
		id: el.id || '',
		classes: (typeof el.className === 'string') ? el.className : '',
		attrs: Array.from(el.attributes).map((a) => a.name + '=' + a.value).sort().join('&'),
		rect: { x: Math.round(r.x), y: Math.round(r.y), w: Math.round(r.width), h: Math.round(r.height) },
	};
})
`

// Solver produces a tile solution for a prompt. Implemented by
// engine.Engine.
type Solver interface {
	Detect(ctx context.Context, prompt string, tiles []engine.Tile, largeGrid bool) (engine.Solution, error)
}

// Locator owns widget discovery and the per-widget solve lifecycle.
// All collaborators are injected; the locator holds no globals.
type Locator struct {
	page      Page
	solver    Solver
	clicker   Clicker
	store     *config.Store
	newSource SourceFactory

	inFlight  atomic.Bool
	mu        sync.Mutex
	processed map[string]*Widget

	wait func(context.Context, time.Duration) error
}

// Option configures a Locator.
type Option func(*Locator)

// WithWait substitutes the sleep function for tests.
func WithWait(fn func(context.Context, time.Duration) error) Option {
	return func(l *Locator) { l.wait = fn }
}

// New builds a Locator around an attached page.
func New(page Page, solver Solver, clicker Clicker, store *config.Store, factory SourceFactory, opts ...Option) *Locator {
	l := &Locator{
		page:      page,
		solver:    solver,
		clicker:   clicker,
		store:     store,
		newSource: factory,
		processed: make(map[string]*Widget),
		wait:      sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Clear forgets every processed widget. Called when the solver is
// toggled off so a re-enable starts fresh.
func (l *Locator) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed = make(map[string]*Widget)
	logging.Locator("Processed set cleared")
}

// Widgets returns a snapshot of tracked widgets, for status reporting.
func (l *Locator) Widgets() []Widget {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Widget, 0, len(l.processed))
	for _, w := range l.processed {
		out = append(out, *w)
	}
	return out
}

// Scan finds unprocessed widgets and handles each one. At most one
// scan runs at a time; triggers while one is in flight are dropped.
func (l *Locator) Scan(ctx context.Context) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		logging.LocatorDebug("Scan dropped: solve in flight")
		return nil
	}
	defer l.inFlight.Store(false)

	if !l.store.Settings().Enabled {
		return nil
	}

	widgets, err := l.collect(ctx)
	if err != nil {
		return err
	}
	if len(widgets) == 0 {
		logging.LocatorDebug("Scan found no widgets")
		return nil
	}

	for _, w := range widgets {
		// Per-widget error boundary: one failure never aborts the
		// rest of the scan.
		if err := l.handle(ctx, w); err != nil {
			logging.LocatorError("Widget %s failed: %v", w.Fingerprint, err)
		}
	}
	return nil
}

// collect queries each selector in priority order and dedupes matches
// by fingerprint, first selector winning.
func (l *Locator) collect(ctx context.Context) ([]*Widget, error) {
	seen := make(map[string]bool)
	var out []*Widget
	for _, sel := range widgetSelectors {
		raw, err := l.page.Eval(ctx, scanScript, sel)
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", sel, err)
		}
		var facts []widgetFacts
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &facts); err != nil {
				return nil, fmt.Errorf("scan %q: %w", sel, err)
			}
		}
		for _, f := range facts {
			fp := Fingerprint(f)
			if seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, &Widget{Fingerprint: fp, Selector: sel, Facts: f})
		}
	}
	return out, nil
}

// handle runs one widget through the state machine. The fingerprint is
// recorded before any async work so a concurrent re-scan can never
// double-handle; it is evicted on failure so a later scan may retry.
func (l *Locator) handle(ctx context.Context, w *Widget) (err error) {
	l.mu.Lock()
	if _, done := l.processed[w.Fingerprint]; done {
		l.mu.Unlock()
		return nil
	}
	l.processed[w.Fingerprint] = w
	l.mu.Unlock()

	defer func() {
		if err != nil {
			w.transition(StateFailed)
			l.mu.Lock()
			delete(l.processed, w.Fingerprint)
			l.mu.Unlock()
		}
	}()

	settings := l.store.Settings()
	logging.Locator("Handling widget %s (%s)", w.Fingerprint, w.Selector)
	l.showOverlay(ctx, w)

	if checkboxSelectors[w.Selector] {
		w.transition(StateCheckboxPending)
		if !settings.AutoSolve {
			logging.Locator("Widget %s: autoSolve off, leaving checkbox alone", w.Fingerprint)
			return nil
		}
		center := image.Pt(
			w.Facts.Rect.X+w.Facts.Rect.W/2,
			w.Facts.Rect.Y+w.Facts.Rect.H/2,
		)
		if err := l.clicker.ClickPoint(ctx, center); err != nil {
			return fmt.Errorf("consent checkbox: %w", err)
		}
	}
	w.transition(StateWaitingForChallenge)

	src, err := l.newSource(ctx, w)
	if err != nil {
		return fmt.Errorf("challenge source: %w", err)
	}

	if err := l.waitForTiles(ctx, src); err != nil {
		return err
	}

	ch, err := src.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if !ch.HasChallenge {
		return fmt.Errorf("%w: challenge vanished after tiles appeared", ErrExtraction)
	}

	w.transition(StateSolving)
	tiles := make([]engine.Tile, len(ch.Tiles))
	for i, img := range ch.Tiles {
		tiles[i] = engine.Tile{Index: i, Raster: img}
	}
	sol, err := l.solver.Detect(ctx, ch.Prompt, tiles, ch.LargeGrid)
	if err != nil {
		return fmt.Errorf("solve %q: %w", ch.Prompt, err)
	}
	logging.Locator("Widget %s: %q solved, %d/%d tiles accepted (confidence %.2f)",
		w.Fingerprint, ch.Prompt, countTrue(sol.Decisions), len(sol.Decisions), sol.Confidence)

	if err := src.Apply(ctx, sol); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	w.transition(StateSubmitted)

	if _, err := l.store.IncrementSolved(); err != nil {
		logging.LocatorError("Record solve: %v", err)
	}
	return nil
}

// waitForTiles polls the source a fixed number of times for the tile
// grid. The window is exactly tilePollCount polls, tilePollInterval
// apart; after the last miss the widget fails with ErrExtraction.
func (l *Locator) waitForTiles(ctx context.Context, src ChallengeSource) error {
	for i := 0; i < tilePollCount; i++ {
		if i > 0 {
			if err := l.wait(ctx, tilePollInterval); err != nil {
				return err
			}
		}
		has, err := src.HasTiles(ctx)
		if err != nil {
			return fmt.Errorf("poll tiles: %w", err)
		}
		if has {
			return nil
		}
	}
	return ErrExtraction
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
