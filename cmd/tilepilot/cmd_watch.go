package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tilepilot/internal/locator"
	"tilepilot/internal/logging"
	"tilepilot/internal/player"
	"tilepilot/internal/registry"
)

var (
	watchURL    string
	debuggerURL string
	headless    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "Attach to a browser page and solve challenges as they appear",
	Long: `Launches (or attaches to) a Chrome instance, navigates to the given
URL, and watches the page for challenge widgets. Each widget found is
driven through detection, solving, and submission automatically.

Runs until interrupted. Settings (enabled, autoSolve, debug) are loaded
from the workspace store once at startup; a toggle made from another
process takes effect on the next start.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&debuggerURL, "debugger-url", "", "Attach to an existing Chrome debugger instead of launching")
	watchCmd.Flags().BoolVar(&headless, "headless", false, "Launch the browser headless")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		watchURL = args[0]
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	eng, reg, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Hot-reload the manifest while watching.
	go watchManifest(ctx, reg)

	controlURL := debuggerURL
	if controlURL == "" {
		controlURL, err = launcher.New().Headless(headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: watchURL})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	rodPage := locator.NewRodPage(page)
	clicker := player.New(player.NewPageSurface(page))
	loc := locator.New(rodPage, eng, clicker, store,
		locator.NewPageSourceFactory(rodPage, clicker))

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logging.Boot("Watching %s (workspace %s)", watchURL, workspace)
	if err := loc.Watch(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func watchManifest(ctx context.Context, reg *registry.Registry) {
	if err := reg.Watch(ctx); err != nil && err != context.Canceled {
		logging.RegistryWarn("Manifest watch stopped: %v", err)
	}
}
