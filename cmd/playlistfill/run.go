package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/v0xg/playlistfill/internal/browser"
	"github.com/v0xg/playlistfill/internal/config"
	"github.com/v0xg/playlistfill/internal/engine"
	"github.com/v0xg/playlistfill/internal/history"
	"github.com/v0xg/playlistfill/internal/hostpage"
	"github.com/v0xg/playlistfill/internal/launcher"
	"github.com/v0xg/playlistfill/internal/logger"
	"github.com/v0xg/playlistfill/internal/snapshot"
	"github.com/v0xg/playlistfill/internal/ui"
)

type runFlags struct {
	url        string
	controlURL string
	profile    string
	bin        string
	headless   bool
	width      int
	height     int
	dryRun     bool
	shotsDir   string
	noHistory  bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <playlist>",
		Short: "Add every track on the current page to <playlist>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, f)
			return run(cmd.Context(), cfg, args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.url, "url", "", "Open this list page before running (default: current tab)")
	cmd.Flags().StringVar(&f.controlURL, "control-url", "", "DevTools websocket of a running browser to attach to")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	cmd.Flags().StringVar(&f.bin, "bin", "", "Chromium binary")
	cmd.Flags().BoolVar(&f.headless, "headless", false, "Launch the browser without a window")
	cmd.Flags().IntVar(&f.width, "width", 0, "Viewport width of a launched browser")
	cmd.Flags().IntVar(&f.height, "height", 0, "Viewport height of a launched browser")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Walk the list and count tracks without opening any menu")
	cmd.Flags().StringVar(&f.shotsDir, "shots-dir", "", "Save a screenshot of every failed track here")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not journal this run")

	return cmd
}

// applyRunFlags lets explicitly set flags win over the config file and environment
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Browser.URL = f.url
	}
	if flags.Changed("control-url") {
		cfg.Browser.ControlURL = f.controlURL
	}
	if flags.Changed("profile") {
		cfg.Browser.ProfileDir = f.profile
	}
	if flags.Changed("bin") {
		cfg.Browser.Bin = f.bin
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = f.headless
	}
	if flags.Changed("width") {
		cfg.Browser.Width = f.width
	}
	if flags.Changed("height") {
		cfg.Browser.Height = f.height
	}
	if flags.Changed("shots-dir") {
		cfg.Snapshots.Dir = f.shotsDir
	}
	if flags.Changed("no-history") {
		cfg.History.Enabled = !f.noHistory
	}
}

func run(ctx context.Context, cfg *config.Config, name string, f runFlags) error {
	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	// reject blank names before touching the browser
	if strings.TrimSpace(name) == "" {
		fmt.Println(ui.Status(launcher.Render(engine.Result{}, launcher.ErrEmptyName), false))
		return errReported
	}

	fmt.Printf("→ Opening browser... ")
	b, err := browser.Open(ctx, browser.Options{
		ControlURL: cfg.Browser.ControlURL,
		ProfileDir: cfg.Browser.ProfileDir,
		Bin:        cfg.Browser.Bin,
		Headless:   cfg.Browser.Headless,
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
		URL:        cfg.Browser.URL,
	})
	if err != nil {
		fmt.Println("failed")
		fmt.Println(ui.Status(launcher.Render(engine.Result{}, &launcher.TransportError{Err: err}), false))
		return errReported
	}
	defer b.Close()
	fmt.Println("done")

	page := hostpage.New(b.Page(), cfg.Selectors)

	var (
		store    *history.Store
		recorder *history.Recorder
		shots    *snapshot.Recorder
	)
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	prepare := func(ctx context.Context, target, url string) ([]engine.Observer, error) {
		var observers []engine.Observer

		if err := page.CheckSelectors(ctx); err != nil {
			return nil, err
		}

		fmt.Printf("→ Waiting for the track list... ")
		n, err := browser.WaitForItems(ctx, b.Page(), cfg.Selectors.Item, cfg.Browser.ListTimeout)
		if err != nil {
			fmt.Println("failed")
			return nil, err
		}
		fmt.Printf("done (%d tracks rendered)\n", n)

		if cfg.History.Enabled {
			store, err = history.Open(cfg.HistoryPath())
			if err != nil {
				return nil, err
			}
			recorder, err = store.Start(ctx, target, url, f.dryRun, log)
			if err != nil {
				return nil, err
			}
			observers = append(observers, recorder)
		}

		if cfg.Snapshots.Dir != "" {
			shots, err = snapshot.New(page, snapshot.Options{Dir: cfg.Snapshots.Dir, MaxWidth: cfg.Snapshots.MaxWidth}, log)
			if err != nil {
				return nil, err
			}
			observers = append(observers, shots)
		}

		return observers, nil
	}

	l := &launcher.Launcher{
		Site:    cfg.Site,
		Locator: b,
		Page:    page,
		Options: engineOptions(cfg, f.dryRun, log),
		Prepare: prepare,
		Logger:  log,
	}

	if f.dryRun {
		fmt.Printf("→ Walking the list for '%s' (dry run)...\n", strings.TrimSpace(name))
	} else {
		fmt.Printf("→ Adding tracks to '%s'...\n", strings.TrimSpace(name))
	}
	res, err := l.Launch(ctx, name)
	journalFailure(ctx, recorder, err)

	ok := err == nil && res.Success
	fmt.Println(ui.Status(launcher.Render(res, err), ok))
	if recorder != nil {
		fmt.Println(ui.Muted("  run " + recorder.RunID()))
	}
	if shots != nil && len(shots.Saved()) > 0 {
		fmt.Println(ui.Muted(fmt.Sprintf("  %d screenshots in %s", len(shots.Saved()), cfg.Snapshots.Dir)))
	}

	if !ok {
		return errReported
	}
	return nil
}

// journalFailure marks a journaled run that ended with an error as failed.
// Interrupted runs stay unfinished.
func journalFailure(ctx context.Context, rec *history.Recorder, err error) {
	if rec == nil || err == nil || errors.Is(err, context.Canceled) {
		return
	}
	rec.Fail(context.WithoutCancel(ctx), err)
}

func engineOptions(cfg *config.Config, dryRun bool, log zerolog.Logger) engine.Options {
	return engine.Options{
		MenuSettle:     cfg.Timing.MenuSettle,
		PickerSettle:   cfg.Timing.PickerSettle,
		PostAction:     cfg.Timing.PostAction,
		ScrollDelay:    cfg.Timing.ScrollDelay,
		MaxProbes:      cfg.Timing.MaxProbes,
		ScrollFraction: cfg.Timing.ScrollFraction,
		AddActionLabel: cfg.Labels.AddAction,
		DryRun:         dryRun,
		Logger:         &log,
	}
}
