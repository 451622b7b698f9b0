package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autolens",
	Short: "Automated lens design with curriculum learning",
	Long: `AutoLens optimizes refractive lens designs from flat starting surfaces by
gradient descent on the RMS spot size, widening the aperture over a curriculum.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(os.Stdout)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// parseLevel maps the --log-level flag to a slog level.
func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger installs a JSON logger writing to w as the default.
func setupLogger(w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(logLevel)}
	logger = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(logger)
}
