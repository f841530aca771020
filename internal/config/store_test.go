package config

import (
	"path/filepath"
	"testing"
)

func TestOpenDefaults(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	set := s.Settings()
	if !set.Enabled || !set.AutoSolve || set.Debug || set.SolvedCount != 0 {
		t.Errorf("unexpected defaults: %+v", set)
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.SetField("debug", true); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}
	if _, err := s.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.IncrementSolved(); err != nil {
			t.Fatalf("IncrementSolved failed: %v", err)
		}
	}
	s.Close()

	// Reopen to prove the full record survived the rewrite cycle.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	set := s2.Settings()
	if set.Enabled {
		t.Error("Toggle not persisted")
	}
	if !set.Debug {
		t.Error("debug flag not persisted")
	}
	if set.SolvedCount != 3 {
		t.Errorf("SolvedCount = %d, want 3", set.SolvedCount)
	}
}

func TestSetFieldUnknown(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := s.SetField("nope", true); err == nil {
		t.Error("expected error for unknown setting name")
	}
}
