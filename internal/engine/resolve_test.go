package engine

import (
	"errors"
	"testing"

	"tilepilot/internal/registry"
)

func aliasTable(t *testing.T) []registry.AliasEntry {
	t.Helper()
	r, err := registry.LoadEmbedded()
	if err != nil {
		t.Fatalf("embedded registry: %v", err)
	}
	return r.Labels().ChallengeAlias
}

func TestResolveCategory(t *testing.T) {
	aliases := aliasTable(t)

	tests := []struct {
		prompt string
		want   string
	}{
		{"bicycles", "bicycle"},
		{"a fire hydrant", "fire hydrant"},
		{"  Crosswalks ", "crosswalk"},
		{"select all images with a fire hydrant", "fire hydrant"},
		{"mountains or hills", "mountain"},
		{"TAXIS", "taxi"},
	}
	for _, tt := range tests {
		got, err := ResolveCategory(tt.prompt, aliases)
		if err != nil {
			t.Errorf("ResolveCategory(%q) error: %v", tt.prompt, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveCategory(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestResolveCategoryUnknown(t *testing.T) {
	aliases := aliasTable(t)

	for _, prompt := range []string{"purple elephants", "", "   "} {
		_, err := ResolveCategory(prompt, aliases)
		if !errors.Is(err, ErrUnknownCategory) {
			t.Errorf("ResolveCategory(%q): got %v, want ErrUnknownCategory", prompt, err)
		}
	}
}

func TestResolveCategoryTableOrder(t *testing.T) {
	// Both entries contain "car"; the first in table order must win.
	aliases := []registry.AliasEntry{
		{Prompt: "street car", Category: "tram"},
		{Prompt: "car", Category: "car"},
	}
	got, err := ResolveCategory("street cars please", aliases)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tram" {
		t.Errorf("got %q, want first-in-order %q", got, "tram")
	}
}
