package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Locator("this should go nowhere")

	if _, err := os.Stat(filepath.Join(ws, ".tilepilot", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created despite debug being disabled")
	}
}

func TestCategoryFileCreated(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, true); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Engine("solve attempt %d", 1)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".tilepilot", "logs"))
	if err != nil {
		t.Fatalf("logs directory missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_engine.log") {
			found = true
		}
	}
	if !found {
		t.Error("engine category log file not created")
	}
}

func TestDebugModeWritesDebugLines(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, true); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	EngineDebug("stitched %d tiles", 9)
	CloseAll()

	dir := filepath.Join(ws, ".tilepilot", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("logs directory missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_engine.log") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if strings.Contains(string(data), "stitched 9 tiles") {
			found = true
		}
	}
	if !found {
		t.Error("debug line missing from engine log despite debug mode")
	}
}

func TestLevelFiltering(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, true); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	l := Get(CategoryPlayer)
	l.Info("filtered")
	l.Warn("kept")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(ws, ".tilepilot", "logs"))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_player.log") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(ws, ".tilepilot", "logs", e.Name()))
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if strings.Contains(string(data), "filtered") {
			t.Error("info line written despite warn level")
		}
		if !strings.Contains(string(data), "kept") {
			t.Error("warn line missing")
		}
	}
}
