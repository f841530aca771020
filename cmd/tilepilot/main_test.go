package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"watch":       false,
		"solve":       false,
		"status":      false,
		"toggle":      false,
		"set":         false,
		"test-models": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		assert.True(t, found, "subcommand %s not registered", name)
	}
}

func TestSolveFlags(t *testing.T) {
	assert.NotNil(t, solveCmd.Flags().Lookup("prompt"))
	assert.NotNil(t, solveCmd.Flags().Lookup("large-grid"))
	assert.NotNil(t, watchCmd.Flags().Lookup("debugger-url"))
}
