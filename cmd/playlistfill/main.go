package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/playlistfill/internal/config"
)

var (
	configPath string
	verbose    bool
)

// errReported marks failures whose status line was already printed
var errReported = errors.New("reported")

func main() {
	rootCmd := &cobra.Command{
		Use:   "playlistfill",
		Short: "Add every track of a Yandex Music list to a playlist",
		Long: `playlistfill drives the Yandex Music web UI in a Chromium browser. It walks
the track list of the current page, adds each track to the named playlist
through the track's context menu and scrolls until no new tracks appear.

Example:
  playlistfill run "Workout" --url "https://music.yandex.ru/album/123"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	rootCmd.AddCommand(newRunCmd(), newHistoryCmd(), newConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			rootCmd.PrintErrln("Error:", err)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the example configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", configPath)
			return nil
		},
	})

	return cmd
}
