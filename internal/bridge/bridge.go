// Package bridge relays challenge data across the cross-origin frame
// boundary. A cooperating script inside the frame reads the DOM the
// host cannot touch and posts snapshots to a window-scoped outbox that
// the host polls over CDP.
package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"tilepilot/internal/logging"
)

// ErrBridgeUnreachable reports that the cooperating script could not be
// installed or reached. The widget degrades to manual solving.
var ErrBridgeUnreachable = errors.New("challenge frame unreachable")

const defaultPollInterval = 200 * time.Millisecond

// Frame abstracts script evaluation inside the challenge frame. The
// production implementation wraps a rod page attached to the frame
// target; tests substitute a fake.
type Frame interface {
	Eval(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error)
}

// Challenge is an extracted challenge snapshot with tiles decoded to
// rasters.
type Challenge struct {
	Prompt       string
	Tiles        []image.Image
	HasChallenge bool
	LargeGrid    bool
}

// Bridge is the host side of the frame protocol. One Bridge serves one
// challenge frame. There is no ack or timeout: an unresponsive frame
// stalls only the calling widget, bounded by the caller's context.
type Bridge struct {
	frame Frame
	poll  time.Duration
	queue []FrameMessage
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPollInterval overrides the outbox poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) { b.poll = d }
}

// Attach injects the cooperating script into the frame and waits for
// its frame-ready announcement.
func Attach(ctx context.Context, frame Frame, opts ...Option) (*Bridge, error) {
	b := &Bridge{frame: frame, poll: defaultPollInterval}
	for _, opt := range opts {
		opt(b)
	}
	if _, err := frame.Eval(ctx, frameScript); err != nil {
		return nil, fmt.Errorf("%w: inject: %v", ErrBridgeUnreachable, err)
	}
	msg, err := b.waitFor(ctx, kindFrameReady)
	if err != nil {
		return nil, err
	}
	ready := msg.(FrameReady)
	logging.Bridge("Attached to frame %s", ready.URL)
	return b, nil
}

// Extract requests a challenge snapshot and blocks until the frame
// answers or ctx ends.
func (b *Bridge) Extract(ctx context.Context) (*Challenge, error) {
	if err := b.send(ctx, hostMessage{Kind: kindExtractRequest}); err != nil {
		return nil, err
	}
	msg, err := b.waitFor(ctx, kindChallengeData)
	if err != nil {
		return nil, err
	}
	data := msg.(ChallengeData)

	ch := &Challenge{
		Prompt:       data.Prompt,
		HasChallenge: data.HasChallenge,
		LargeGrid:    data.LargeGrid,
	}
	for i, url := range data.Tiles {
		img, err := decodeDataURL(url)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
		ch.Tiles = append(ch.Tiles, img)
	}
	logging.BridgeDebug("Extracted challenge: prompt=%q tiles=%d largeGrid=%v",
		ch.Prompt, len(ch.Tiles), ch.LargeGrid)
	return ch, nil
}

// Apply replays the solution inside the frame. The frame script clicks
// the accepted tiles with the shared timing contract and presses submit
// after its settle delay; Apply returns once the message is delivered.
func (b *Bridge) Apply(ctx context.Context, decisions []bool) error {
	return b.send(ctx, hostMessage{Kind: kindApplySolution, Decisions: decisions})
}

func (b *Bridge) send(ctx context.Context, msg hostMessage) error {
	if _, err := b.frame.Eval(ctx, deliverScript, msg); err != nil {
		return fmt.Errorf("%w: deliver %s: %v", ErrBridgeUnreachable, msg.Kind, err)
	}
	return nil
}

// waitFor polls the outbox until a message of the wanted kind arrives.
// Other known kinds are requeued for later consumers; unknown kinds are
// protocol errors.
func (b *Bridge) waitFor(ctx context.Context, kind string) (FrameMessage, error) {
	var skipped []FrameMessage
	for {
		msg, err := b.next(ctx)
		if err != nil {
			return nil, err
		}
		if matches(msg, kind) {
			b.queue = append(skipped, b.queue...)
			return msg, nil
		}
		logging.BridgeDebug("Skipping %T while waiting for %s", msg, kind)
		skipped = append(skipped, msg)
	}
}

func matches(msg FrameMessage, kind string) bool {
	switch msg.(type) {
	case FrameReady:
		return kind == kindFrameReady
	case ChallengeData:
		return kind == kindChallengeData
	}
	return false
}

// next returns the oldest undelivered frame message, draining the
// outbox as needed.
func (b *Bridge) next(ctx context.Context) (FrameMessage, error) {
	for {
		if len(b.queue) > 0 {
			msg := b.queue[0]
			b.queue = b.queue[1:]
			return msg, nil
		}
		raw, err := b.frame.Eval(ctx, drainScript)
		if err != nil {
			return nil, fmt.Errorf("%w: drain: %v", ErrBridgeUnreachable, err)
		}
		var entries []json.RawMessage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("malformed outbox: %w", err)
			}
		}
		for _, entry := range entries {
			msg, err := decodeFrameMessage(entry)
			if err != nil {
				return nil, err
			}
			b.queue = append(b.queue, msg)
		}
		if len(b.queue) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.poll):
		}
	}
}

// decodeDataURL decodes a base64 image data URL into a raster.
func decodeDataURL(url string) (image.Image, error) {
	const marker = ";base64,"
	idx := strings.Index(url, marker)
	if !strings.HasPrefix(url, "data:image/") || idx < 0 {
		return nil, fmt.Errorf("not an image data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(url[idx+len(marker):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
