package player

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageSurface drives a rod page over CDP. Coordinates are page
// coordinates, so callers must translate frame-local points before
// handing them over.
type PageSurface struct {
	page *rod.Page
	x, y float64
}

// NewPageSurface wraps a rod page as a click target.
func NewPageSurface(page *rod.Page) *PageSurface {
	return &PageSurface{page: page}
}

// MoveMouse dispatches a raw mousemove and remembers the position for
// the following press/release pair.
func (s *PageSurface) MoveMouse(ctx context.Context, x, y float64) error {
	s.x, s.y = x, y
	return proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseMoved,
		X:    x,
		Y:    y,
	}.Call(s.page.Context(ctx))
}

// PressMouse presses the left button at the last moved-to position.
func (s *PageSurface) PressMouse(ctx context.Context) error {
	return proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMousePressed,
		X:          s.x,
		Y:          s.y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: 1,
	}.Call(s.page.Context(ctx))
}

// ReleaseMouse releases the left button at the last moved-to position.
func (s *PageSurface) ReleaseMouse(ctx context.Context) error {
	return proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventTypeMouseReleased,
		X:          s.x,
		Y:          s.y,
		Button:     proto.InputMouseButtonLeft,
		ClickCount: 1,
	}.Call(s.page.Context(ctx))
}

// ClickSelector clicks the first element matching selector anywhere on
// the page, descending into same-process frames handled by rod.
func (s *PageSurface) ClickSelector(ctx context.Context, selector string) error {
	page := s.page.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrNoElement, selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}
