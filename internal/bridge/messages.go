package bridge

import (
	"encoding/json"
	"fmt"
)

// Message kinds form a closed union per direction. The host only ever
// sends extract-request and apply-solution; the frame only ever sends
// frame-ready and challenge-data. Anything else is a protocol error.
const (
	kindExtractRequest = "extract-request"
	kindApplySolution  = "apply-solution"
	kindFrameReady     = "frame-ready"
	kindChallengeData  = "challenge-data"
)

// hostMessage is the wire form of host→frame messages.
type hostMessage struct {
	Kind      string `json:"kind"`
	Decisions []bool `json:"decisions,omitempty"`
}

// FrameMessage is a decoded frame→host message.
type FrameMessage interface {
	frameMessage()
}

// FrameReady announces the cooperating script is installed.
type FrameReady struct {
	URL string
}

func (FrameReady) frameMessage() {}

// ChallengeData carries an extracted challenge snapshot. Tiles are
// base64 data URLs produced by the frame-side canvas.
type ChallengeData struct {
	Prompt       string
	Tiles        []string
	HasChallenge bool
	LargeGrid    bool
}

func (ChallengeData) frameMessage() {}

type envelope struct {
	Kind         string   `json:"kind"`
	URL          string   `json:"url,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	Tiles        []string `json:"tiles,omitempty"`
	HasChallenge bool     `json:"hasChallenge,omitempty"`
	LargeGrid    bool     `json:"largeGrid,omitempty"`
}

// decodeFrameMessage parses one outbox entry. Unknown kinds are errors,
// never dropped.
func decodeFrameMessage(raw json.RawMessage) (FrameMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame message: %w", err)
	}
	switch env.Kind {
	case kindFrameReady:
		return FrameReady{URL: env.URL}, nil
	case kindChallengeData:
		return ChallengeData{
			Prompt:       env.Prompt,
			Tiles:        env.Tiles,
			HasChallenge: env.HasChallenge,
			LargeGrid:    env.LargeGrid,
		}, nil
	default:
		return nil, fmt.Errorf("unknown frame message kind %q", env.Kind)
	}
}
