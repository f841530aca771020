package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"

	_ "image/png"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"tilepilot/internal/bridge"
)

// Page is the host-document surface the locator scans. The production
// implementation wraps a rod page; tests substitute a fake.
type Page interface {
	// Eval runs a JS function on the host document.
	Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error)
	// CaptureRegion screenshots a page-coordinate rectangle.
	CaptureRegion(ctx context.Context, r image.Rectangle) (image.Image, error)
	// Frame resolves the iframe matching selector into a bridge target.
	Frame(ctx context.Context, selector string) (bridge.Frame, error)
}

// RodPage adapts a rod page to the locator's Page interface.
type RodPage struct {
	page *rod.Page
}

// NewRodPage wraps an attached rod page.
func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

func (p *RodPage) Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Value.Nil() {
		return nil, nil
	}
	return res.Value.MarshalJSON()
}

// CaptureRegion grabs a clipped screenshot over CDP. Clipping at the
// protocol level sidesteps canvas taint from cross-origin tile images.
func (p *RodPage) CaptureRegion(ctx context.Context, r image.Rectangle) (image.Image, error) {
	res, err := proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      float64(r.Min.X),
			Y:      float64(r.Min.Y),
			Width:  float64(r.Dx()),
			Height: float64(r.Dy()),
			Scale:  1,
		},
	}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", r, err)
	}
	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return img, nil
}

func (p *RodPage) Frame(ctx context.Context, selector string) (bridge.Frame, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("frame element %q: %w", selector, err)
	}
	framePage, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("frame target %q: %w", selector, err)
	}
	return bridge.NewRodFrame(framePage), nil
}
