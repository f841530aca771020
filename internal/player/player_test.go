package player

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSurface logs every call in order so tests can assert on the
// exact gesture sequence.
type recordingSurface struct {
	events      []string
	failPress   bool
	knownSubmit string
	clickErr    error // returned for a matched selector
}

func (s *recordingSurface) MoveMouse(_ context.Context, x, y float64) error {
	s.events = append(s.events, fmt.Sprintf("move %.0f,%.0f", x, y))
	return nil
}

func (s *recordingSurface) PressMouse(context.Context) error {
	if s.failPress {
		return errors.New("press failed")
	}
	s.events = append(s.events, "press")
	return nil
}

func (s *recordingSurface) ReleaseMouse(context.Context) error {
	s.events = append(s.events, "release")
	return nil
}

func (s *recordingSurface) ClickSelector(_ context.Context, selector string) error {
	if s.knownSubmit != "" && selector != s.knownSubmit {
		return fmt.Errorf("%w: %q", ErrNoElement, selector)
	}
	if s.clickErr != nil {
		return s.clickErr
	}
	s.events = append(s.events, "click "+selector)
	return nil
}

func newTestPlayer(surface Surface, waits *[]time.Duration) *Player {
	return New(surface,
		WithRand(rand.New(rand.NewSource(1))),
		WithWait(func(_ context.Context, d time.Duration) error {
			if waits != nil {
				*waits = append(*waits, d)
			}
			return nil
		}),
	)
}

func TestClickPointGesture(t *testing.T) {
	surface := &recordingSurface{}
	var waits []time.Duration
	p := newTestPlayer(surface, &waits)

	err := p.ClickPoint(context.Background(), image.Pt(100, 200))
	require.NoError(t, err)

	require.Len(t, surface.events, 3)
	assert.Contains(t, surface.events[0], "move ")
	assert.Equal(t, "press", surface.events[1])
	assert.Equal(t, "release", surface.events[2])

	require.Len(t, waits, 1, "exactly one hold between press and release")
	assert.GreaterOrEqual(t, waits[0], HoldMin)
	assert.LessOrEqual(t, waits[0], HoldMax)
}

func TestClickPointJitterBounded(t *testing.T) {
	surface := &recordingSurface{}
	p := newTestPlayer(surface, nil)

	for i := 0; i < 50; i++ {
		surface.events = nil
		require.NoError(t, p.ClickPoint(context.Background(), image.Pt(100, 100)))
		var x, y float64
		_, err := fmt.Sscanf(surface.events[0], "move %f,%f", &x, &y)
		require.NoError(t, err)
		assert.InDelta(t, 100, x, JitterPx)
		assert.InDelta(t, 100, y, JitterPx)
	}
}

func TestClickSolutionOrderAndGaps(t *testing.T) {
	surface := &recordingSurface{}
	var waits []time.Duration
	p := newTestPlayer(surface, &waits)

	decisions := []bool{true, false, true, true}
	points := []image.Point{{X: 100, Y: 100}, {X: 200, Y: 200}, {X: 300, Y: 300}, {X: 400, Y: 400}}

	err := p.ClickSolution(context.Background(), decisions, points)
	require.NoError(t, err)

	// 3 gestures of move/press/release plus the submit click.
	require.Len(t, surface.events, 10)
	for i, want := range []image.Point{points[0], points[2], points[3]} {
		var x, y float64
		_, err := fmt.Sscanf(surface.events[i*3], "move %f,%f", &x, &y)
		require.NoError(t, err)
		assert.InDelta(t, want.X, x, JitterPx, "tile click %d", i)
		assert.InDelta(t, want.Y, y, JitterPx, "tile click %d", i)
	}
	assert.Equal(t, "click "+submitSelectors[0], surface.events[9])

	// Waits interleave hold, gap, hold, gap, hold, settle.
	require.Len(t, waits, 6)
	assert.GreaterOrEqual(t, waits[1], GapMin)
	assert.LessOrEqual(t, waits[1], GapMax)
	assert.GreaterOrEqual(t, waits[3], GapMin)
	assert.LessOrEqual(t, waits[3], GapMax)
	assert.Equal(t, SettleDelay, waits[5])
}

func TestClickSolutionNoAcceptedTilesStillSubmits(t *testing.T) {
	surface := &recordingSurface{}
	var waits []time.Duration
	p := newTestPlayer(surface, &waits)

	err := p.ClickSolution(context.Background(), []bool{false, false}, make([]image.Point, 2))
	require.NoError(t, err)
	require.Len(t, surface.events, 1)
	assert.Equal(t, "click "+submitSelectors[0], surface.events[0])
}

func TestClickSolutionLengthMismatch(t *testing.T) {
	p := newTestPlayer(&recordingSurface{}, nil)
	err := p.ClickSolution(context.Background(), []bool{true}, nil)
	assert.Error(t, err)
}

func TestSubmitFallsThroughSelectors(t *testing.T) {
	surface := &recordingSurface{knownSubmit: "button[type='submit']"}
	p := newTestPlayer(surface, nil)

	err := p.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, surface.events, 1)
	assert.Equal(t, "click button[type='submit']", surface.events[0])
}

func TestSubmitAbsentControlIsSkipped(t *testing.T) {
	// Auto-advancing grids have no verify button; that must not fail
	// the solve.
	surface := &recordingSurface{knownSubmit: "#nope"}
	p := newTestPlayer(surface, nil)

	require.NoError(t, p.Submit(context.Background()))
	assert.Empty(t, surface.events, "nothing must be clicked when no control matches")
}

func TestSubmitClickFailureIsStillAnError(t *testing.T) {
	surface := &recordingSurface{
		knownSubmit: submitSelectors[0],
		clickErr:    errors.New("node detached"),
	}
	p := newTestPlayer(surface, nil)

	err := p.Submit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node detached")
}

func TestClickSolutionSucceedsWithoutSubmitControl(t *testing.T) {
	surface := &recordingSurface{knownSubmit: "#nope"}
	var waits []time.Duration
	p := newTestPlayer(surface, &waits)

	err := p.ClickSolution(context.Background(), []bool{true}, []image.Point{{X: 50, Y: 50}})
	require.NoError(t, err)
	// The tile gesture happened even though no verify button exists.
	require.Len(t, surface.events, 3)
	assert.Equal(t, "press", surface.events[1])
}

func TestClickPointSurfaceError(t *testing.T) {
	surface := &recordingSurface{failPress: true}
	p := newTestPlayer(surface, nil)
	assert.Error(t, p.ClickPoint(context.Background(), image.Pt(1, 1)))
}

func TestClickSolutionCancelled(t *testing.T) {
	surface := &recordingSurface{}
	p := New(surface,
		WithRand(rand.New(rand.NewSource(1))),
		WithWait(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.ClickSolution(ctx, []bool{true, true}, make([]image.Point, 2))
	assert.ErrorIs(t, err, context.Canceled)
}
