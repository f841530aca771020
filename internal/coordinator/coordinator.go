// Package coordinator exposes the solver over a small request/response
// protocol. It is the seam a settings surface or remote control talks
// to; the cobra subcommands are its first client.
package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"tilepilot/internal/config"
	"tilepilot/internal/engine"
	"tilepilot/internal/logging"
)

// RequestType enumerates the protocol operations.
type RequestType string

const (
	TypeGetStatus       RequestType = "GET_STATUS"
	TypeToggleExtension RequestType = "TOGGLE_EXTENSION"
	TypeUpdateSetting   RequestType = "UPDATE_SETTING"
	TypeSolveChallenge  RequestType = "SOLVE_CHALLENGE"
	TypeTestModels      RequestType = "TEST_MODELS"
)

// Request is one protocol message. Fields beyond Type are populated
// per operation.
type Request struct {
	Type RequestType `json:"type"`

	// UPDATE_SETTING
	Setting string `json:"setting,omitempty"`
	Value   bool   `json:"value,omitempty"`

	// SOLVE_CHALLENGE
	Prompt    string   `json:"prompt,omitempty"`
	Tiles     []string `json:"tiles,omitempty"` // base64 image data URLs
	TileCount int      `json:"tileCount,omitempty"`
	LargeGrid bool     `json:"largeGrid,omitempty"`
}

// Response carries either a success payload or an error, never both.
type Response struct {
	Error string `json:"error,omitempty"`

	Settings *config.Settings `json:"settings,omitempty"`

	Decisions  []bool  `json:"decisions,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	Models map[string]string `json:"models,omitempty"`
}

// Solver is the engine surface the coordinator needs.
type Solver interface {
	Detect(ctx context.Context, prompt string, tiles []engine.Tile, largeGrid bool) (engine.Solution, error)
	TestModels() map[string]error
}

// Coordinator dispatches protocol requests.
type Coordinator struct {
	store  *config.Store
	solver Solver
}

// New builds a Coordinator over the given store and solver.
func New(store *config.Store, solver Solver) *Coordinator {
	return &Coordinator{store: store, solver: solver}
}

// Handle answers one request. Every request gets exactly one response;
// failures are reported in Response.Error rather than a Go error so
// remote callers always get a well-formed reply.
func (c *Coordinator) Handle(ctx context.Context, req Request) Response {
	logging.Coordinator("Request: %s", req.Type)
	switch req.Type {
	case TypeGetStatus:
		return c.getStatus()
	case TypeToggleExtension:
		return c.toggle()
	case TypeUpdateSetting:
		return c.updateSetting(req)
	case TypeSolveChallenge:
		return c.solveChallenge(ctx, req)
	case TypeTestModels:
		return c.testModels()
	default:
		return errorResponse("unknown request type %q", req.Type)
	}
}

func errorResponse(format string, args ...interface{}) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

func (c *Coordinator) getStatus() Response {
	set := c.store.Settings()
	return Response{Settings: &set}
}

func (c *Coordinator) toggle() Response {
	set, err := c.store.Toggle()
	if err != nil {
		return errorResponse("toggle: %v", err)
	}
	return Response{Settings: &set}
}

func (c *Coordinator) updateSetting(req Request) Response {
	if req.Setting == "" {
		return errorResponse("update requires a setting name")
	}
	set, err := c.store.SetField(req.Setting, req.Value)
	if err != nil {
		return errorResponse("update %s: %v", req.Setting, err)
	}
	return Response{Settings: &set}
}

func (c *Coordinator) solveChallenge(ctx context.Context, req Request) Response {
	if req.TileCount != 0 && req.TileCount != len(req.Tiles) {
		return errorResponse("tileCount %d does not match %d tiles", req.TileCount, len(req.Tiles))
	}
	if len(req.Tiles) == 0 {
		return errorResponse("solve requires tiles")
	}

	tiles := make([]engine.Tile, len(req.Tiles))
	for i, enc := range req.Tiles {
		img, err := decodeTile(enc)
		if err != nil {
			return errorResponse("tile %d: %v", i, err)
		}
		tiles[i] = engine.Tile{Index: i, Raster: img}
	}

	sol, err := c.solver.Detect(ctx, req.Prompt, tiles, req.LargeGrid)
	if err != nil {
		return errorResponse("solve: %v", err)
	}
	return Response{Decisions: sol.Decisions, Confidence: sol.Confidence}
}

func (c *Coordinator) testModels() Response {
	results := c.solver.TestModels()
	models := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			models[name] = err.Error()
		} else {
			models[name] = "ok"
		}
	}
	return Response{Models: models}
}

// decodeTile accepts either a bare base64 image or a data URL.
func decodeTile(enc string) (image.Image, error) {
	if i := strings.Index(enc, ";base64,"); i >= 0 {
		enc = enc[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
