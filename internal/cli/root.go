package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mcoot/coursebattle/internal/client"
)

var (
	cfg       *Config
	apiClient *client.Client
	logger    *slog.Logger
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "battle",
		Short: "CLI tool for course battle rooms",
		Long: `battle is a CLI tool for racing friends through a course.

It creates and joins battle rooms, uploads course progress, runs the
background sync loop, and streams live leaderboard and chat updates.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			logger = newLogger(cfg.Verbose)
			apiClient = client.New(cfg.ServerURL, cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: BATTLE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Session token (env: BATTLE_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: BATTLE_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.ProgressURL, "progress-url", cfg.ProgressURL, "Course progress API URL (env: BATTLE_PROGRESS_URL)")
	rootCmd.PersistentFlags().StringVar(&cfg.ProgressTokenFile, "progress-token-file", cfg.ProgressTokenFile, "Course progress token file (env: BATTLE_PROGRESS_TOKEN_FILE)")

	// Add subcommands
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newProgressCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// interruptContext is cancelled on SIGINT or SIGTERM
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
