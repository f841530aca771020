// Package player performs pointer interaction with challenge widgets.
// All gestures are press/release pairs with randomized jitter and hold
// times so the timing profile looks like a human hand rather than a
// scripted dispatcher.
package player

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"time"

	"tilepilot/internal/logging"
)

// ErrNoElement reports that a selector matched nothing on the surface.
// Surfaces return it (wrapped) so callers can tell an absent control
// from a failed click.
var ErrNoElement = errors.New("no element matches selector")

// Timing contract for synthesized gestures. The in-frame apply script
// mirrors these values, so changes here must be reflected there.
const (
	// JitterPx is the maximum offset applied to each click target on
	// both axes.
	JitterPx = 5

	// HoldMin/HoldMax bound the press-to-release interval.
	HoldMin = 50 * time.Millisecond
	HoldMax = 150 * time.Millisecond

	// GapMin/GapMax bound the pause between consecutive tile clicks.
	GapMin = 300 * time.Millisecond
	GapMax = 500 * time.Millisecond

	// SettleDelay is how long the page gets to react after the last
	// tile click before the submit control is pressed.
	SettleDelay = 500 * time.Millisecond
)

// submitSelectors is the prioritized list of submit controls. The first
// selector that resolves to an element wins.
var submitSelectors = []string{
	"#recaptcha-verify-button",
	"button[id*='verify']",
	"button[class*='verify']",
	"button[type='submit']",
}

// Surface abstracts the pointer target. The production implementation
// drives a browser page over CDP; tests substitute a recorder.
type Surface interface {
	// MoveMouse moves the pointer to page coordinates.
	MoveMouse(ctx context.Context, x, y float64) error
	// PressMouse presses the primary button at the current position.
	PressMouse(ctx context.Context) error
	// ReleaseMouse releases the primary button.
	ReleaseMouse(ctx context.Context) error
	// ClickSelector clicks the first element matching selector.
	// Returns an error when no element matches.
	ClickSelector(ctx context.Context, selector string) error
}

// Player synthesizes human-paced click sequences on a Surface.
type Player struct {
	surface Surface
	rand    *rand.Rand
	wait    func(context.Context, time.Duration) error
}

// Option configures a Player.
type Option func(*Player)

// WithRand substitutes the randomness source. Used by tests to make
// jitter and hold times deterministic.
func WithRand(r *rand.Rand) Option {
	return func(p *Player) { p.rand = r }
}

// WithWait substitutes the sleep function. Tests pass a no-op so
// sequences run instantly while still recording requested durations.
func WithWait(fn func(context.Context, time.Duration) error) Option {
	return func(p *Player) { p.wait = fn }
}

// New creates a Player driving the given surface.
func New(surface Surface, opts ...Option) *Player {
	p := &Player{
		surface: surface,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		wait:    sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
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

// jitter returns an offset in [-JitterPx, JitterPx].
func (p *Player) jitter() float64 {
	return float64(p.rand.Intn(2*JitterPx+1) - JitterPx)
}

// between returns a random duration in [lo, hi].
func (p *Player) between(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(p.rand.Int63n(int64(hi-lo)+1))
}

// ClickPoint performs a full press/hold/release gesture near pt.
func (p *Player) ClickPoint(ctx context.Context, pt image.Point) error {
	x := float64(pt.X) + p.jitter()
	y := float64(pt.Y) + p.jitter()

	if err := p.surface.MoveMouse(ctx, x, y); err != nil {
		return fmt.Errorf("move to (%.0f, %.0f): %w", x, y, err)
	}
	if err := p.surface.PressMouse(ctx); err != nil {
		return fmt.Errorf("press at (%.0f, %.0f): %w", x, y, err)
	}
	if err := p.wait(ctx, p.between(HoldMin, HoldMax)); err != nil {
		return err
	}
	if err := p.surface.ReleaseMouse(ctx); err != nil {
		return fmt.Errorf("release at (%.0f, %.0f): %w", x, y, err)
	}
	logging.PlayerDebug("Clicked (%.0f, %.0f)", x, y)
	return nil
}

// ClickSolution clicks every accepted tile in index order with random
// gaps between clicks, waits for the page to settle, then presses the
// first available submit control. points holds page coordinates for
// each tile; decisions selects which of them get clicked.
func (p *Player) ClickSolution(ctx context.Context, decisions []bool, points []image.Point) error {
	if len(decisions) != len(points) {
		return fmt.Errorf("decisions/points length mismatch: %d vs %d", len(decisions), len(points))
	}

	clicked := 0
	for i, accepted := range decisions {
		if !accepted {
			continue
		}
		if clicked > 0 {
			if err := p.wait(ctx, p.between(GapMin, GapMax)); err != nil {
				return err
			}
		}
		if err := p.ClickPoint(ctx, points[i]); err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		clicked++
	}
	logging.Player("Clicked %d tiles", clicked)

	if err := p.wait(ctx, SettleDelay); err != nil {
		return err
	}
	return p.Submit(ctx)
}

// Submit presses the first submit control that exists on the surface.
// A grid without one is fine: challenges that auto-advance after the
// last tile click carry no verify button, so absence is a skip, not a
// failure.
func (p *Player) Submit(ctx context.Context) error {
	for _, sel := range submitSelectors {
		err := p.surface.ClickSelector(ctx, sel)
		if err == nil {
			logging.Player("Submitted via %s", sel)
			return nil
		}
		if errors.Is(err, ErrNoElement) {
			continue
		}
		return fmt.Errorf("submit via %s: %w", sel, err)
	}
	logging.Player("No submit control present, skipping")
	return nil
}
