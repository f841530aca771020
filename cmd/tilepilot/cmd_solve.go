package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"tilepilot/internal/coordinator"
)

var (
	solvePrompt    string
	solveLargeGrid bool
)

var solveCmd = &cobra.Command{
	Use:   "solve --prompt TEXT tile.png [tile.png ...]",
	Short: "Solve a challenge offline from tile image files",
	Long: `Runs the detection pipeline on tile images from disk, without a
browser. Tiles are given in grid order, row-major. Prints the verdict
per tile.

Example:
  tilepilot solve --prompt "Select all images with bicycles" tiles/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solvePrompt, "prompt", "p", "", "Challenge prompt text")
	solveCmd.Flags().BoolVar(&solveLargeGrid, "large-grid", false, "Treat the tiles as a shared-image 4x4 grid")
	_ = solveCmd.MarkFlagRequired("prompt")
}

func runSolve(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	eng, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	tiles := make([]string, len(args))
	for i, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read tile %s: %w", path, err)
		}
		tiles[i] = base64.StdEncoding.EncodeToString(raw)
	}

	coord := coordinator.New(store, eng)
	resp := coord.Handle(cmd.Context(), coordinator.Request{
		Type:      coordinator.TypeSolveChallenge,
		Prompt:    solvePrompt,
		Tiles:     tiles,
		TileCount: len(tiles),
		LargeGrid: solveLargeGrid,
	})
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}

	accepted := 0
	for i, d := range resp.Decisions {
		mark := " "
		if d {
			mark = "x"
			accepted++
		}
		fmt.Printf("  [%s] %s\n", mark, args[i])
	}
	fmt.Printf("%d/%d tiles accepted (confidence %.2f)\n", accepted, len(resp.Decisions), resp.Confidence)
	return nil
}

var testModelsCmd = &cobra.Command{
	Use:   "test-models",
	Short: "Open every model in the manifest and report the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open settings: %w", err)
		}
		defer store.Close()

		eng, _, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		coord := coordinator.New(store, eng)
		resp := coord.Handle(cmd.Context(), coordinator.Request{Type: coordinator.TypeTestModels})
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}

		names := make([]string, 0, len(resp.Models))
		for name := range resp.Models {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := 0
		for _, name := range names {
			status := resp.Models[name]
			if status != "ok" {
				failed++
			}
			fmt.Printf("  %-16s %s\n", name, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d models failed", failed, len(names))
		}
		fmt.Println("All models OK")
		return nil
	},
}
