package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/xlrbridge/internal/config"
	"github.com/audiolibrelab/xlrbridge/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	// traceBackend forwards the host backend's own log output.
	traceBackend bool
)

var rootCmd = &cobra.Command{
	Use:   "xlrbridge",
	Short: "Route GoXLR hardware channels to per-channel virtual endpoints",
	Long: `xlrbridge claims a GoXLR interface exclusively and routes its wide
hardware streams to and from one stereo virtual endpoint per logical channel.

Capture direction: System, Game, Chat, Music and Sample endpoints are mixed
into the 10-channel hardware playback stream.
Render direction: the 21-channel hardware capture stream is split into the
StreamMix, ChatMic and Sampler endpoints.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// channels only prints the static tables
		if cmd.Name() == "channels" && cfgFile == "" {
			return nil
		}

		// A missing default config file means built-in defaults
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
			if _, err := os.Stat(path); err != nil {
				slog.Debug("No config file found, using defaults", "path", path)
				path = ""
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(path, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "path", path, "profile", cfg.Profile)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Setup failures and runtime errors both
// exit with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var setupErr *service.SetupError
		if errors.As(err, &setupErr) {
			slog.Error("Session could not be set up", "stage", setupErr.Stage)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/xlrbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=backend tracing")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1:
		slogLevel = slog.LevelDebug
	default:
		// Level 2 and above also trace the host backend
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	traceBackend = level >= 2
}
