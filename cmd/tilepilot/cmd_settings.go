package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tilepilot/internal/config"
	"tilepilot/internal/coordinator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current settings and solve count",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *coordinator.Coordinator) error {
			resp := coord.Handle(cmd.Context(), coordinator.Request{Type: coordinator.TypeGetStatus})
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			printSettings(*resp.Settings)
			return nil
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle the solver on or off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(coord *coordinator.Coordinator) error {
			resp := coord.Handle(cmd.Context(), coordinator.Request{Type: coordinator.TypeToggleExtension})
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			printSettings(*resp.Settings)
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set [setting] [true|false]",
	Short: "Update one setting (enabled, auto_solve, debug)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("value must be true or false, got %q", args[1])
		}
		return withCoordinator(func(coord *coordinator.Coordinator) error {
			resp := coord.Handle(cmd.Context(), coordinator.Request{
				Type:    coordinator.TypeUpdateSetting,
				Setting: args[0],
				Value:   value,
			})
			if resp.Error != "" {
				return fmt.Errorf("%s", resp.Error)
			}
			printSettings(*resp.Settings)
			return nil
		})
	},
}

// withCoordinator runs fn against a coordinator over the workspace
// store. Settings commands never need the engine, so a nil solver is
// fine: the operations they issue don't touch it.
func withCoordinator(fn func(*coordinator.Coordinator) error) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()
	return fn(coordinator.New(store, nil))
}

func printSettings(set config.Settings) {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	fmt.Printf("  enabled:     %s\n", onOff(set.Enabled))
	fmt.Printf("  auto-solve:  %s\n", onOff(set.AutoSolve))
	fmt.Printf("  debug:       %s\n", onOff(set.Debug))
	fmt.Printf("  solved:      %d\n", set.SolvedCount)
}
