package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilepilot/internal/config"
	"tilepilot/internal/engine"
)

type fakeSolver struct {
	solution engine.Solution
	err      error
	prompt   string
	tiles    int
	models   map[string]error
}

func (s *fakeSolver) Detect(_ context.Context, prompt string, tiles []engine.Tile, _ bool) (engine.Solution, error) {
	s.prompt = prompt
	s.tiles = len(tiles)
	if s.err != nil {
		return engine.Solution{}, s.err
	}
	return s.solution, nil
}

func (s *fakeSolver) TestModels() map[string]error {
	return s.models
}

func newCoordinator(t *testing.T, solver *fakeSolver) (*Coordinator, *config.Store) {
	t.Helper()
	store, err := config.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, solver), store
}

func encodedTile(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestGetStatus(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})

	resp := c.Handle(context.Background(), Request{Type: TypeGetStatus})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Settings)
	assert.True(t, resp.Settings.Enabled)
	assert.True(t, resp.Settings.AutoSolve)
}

func TestToggleFlipsEnabled(t *testing.T) {
	c, store := newCoordinator(t, &fakeSolver{})

	resp := c.Handle(context.Background(), Request{Type: TypeToggleExtension})
	require.Empty(t, resp.Error)
	assert.False(t, resp.Settings.Enabled)
	assert.False(t, store.Settings().Enabled)

	resp = c.Handle(context.Background(), Request{Type: TypeToggleExtension})
	assert.True(t, resp.Settings.Enabled)
}

func TestUpdateSetting(t *testing.T) {
	c, store := newCoordinator(t, &fakeSolver{})

	resp := c.Handle(context.Background(), Request{
		Type: TypeUpdateSetting, Setting: "debug", Value: true,
	})
	require.Empty(t, resp.Error)
	assert.True(t, store.Settings().Debug)
}

func TestUpdateSettingUnknownName(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})

	resp := c.Handle(context.Background(), Request{
		Type: TypeUpdateSetting, Setting: "autopilot", Value: true,
	})
	assert.NotEmpty(t, resp.Error)
}

func TestUpdateSettingMissingName(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})
	resp := c.Handle(context.Background(), Request{Type: TypeUpdateSetting})
	assert.NotEmpty(t, resp.Error)
}

func TestSolveChallenge(t *testing.T) {
	solver := &fakeSolver{solution: engine.Solution{
		Decisions:  []bool{true, false, true},
		Points:     make([]image.Point, 3),
		Confidence: 0.7,
	}}
	c, _ := newCoordinator(t, solver)

	tile := encodedTile(t)
	resp := c.Handle(context.Background(), Request{
		Type:      TypeSolveChallenge,
		Prompt:    "Select all images with bicycles",
		Tiles:     []string{tile, tile, tile},
		TileCount: 3,
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, []bool{true, false, true}, resp.Decisions)
	assert.Equal(t, 0.7, resp.Confidence)
	assert.Equal(t, "Select all images with bicycles", solver.prompt)
	assert.Equal(t, 3, solver.tiles)
}

func TestSolveChallengeTileCountMismatch(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})
	resp := c.Handle(context.Background(), Request{
		Type:      TypeSolveChallenge,
		Tiles:     []string{encodedTile(t)},
		TileCount: 9,
	})
	assert.Contains(t, resp.Error, "tileCount")
}

func TestSolveChallengeNoTiles(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})
	resp := c.Handle(context.Background(), Request{Type: TypeSolveChallenge})
	assert.NotEmpty(t, resp.Error)
}

func TestSolveChallengeBadTile(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})
	resp := c.Handle(context.Background(), Request{
		Type:  TypeSolveChallenge,
		Tiles: []string{"not base64!!"},
	})
	assert.Contains(t, resp.Error, "tile 0")
}

func TestSolveChallengeSolverError(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{err: engine.ErrUnknownCategory})
	resp := c.Handle(context.Background(), Request{
		Type:  TypeSolveChallenge,
		Tiles: []string{encodedTile(t)},
	})
	assert.Contains(t, resp.Error, "solve")
}

func TestTestModels(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{models: map[string]error{
		"detector":     nil,
		"text_encoder": errors.New("missing file"),
	}})

	resp := c.Handle(context.Background(), Request{Type: TypeTestModels})
	require.Empty(t, resp.Error)
	assert.Equal(t, "ok", resp.Models["detector"])
	assert.Equal(t, "missing file", resp.Models["text_encoder"])
}

func TestUnknownRequestType(t *testing.T) {
	c, _ := newCoordinator(t, &fakeSolver{})
	resp := c.Handle(context.Background(), Request{Type: "SELF_DESTRUCT"})
	assert.Contains(t, resp.Error, "SELF_DESTRUCT")
}
