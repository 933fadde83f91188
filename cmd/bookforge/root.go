package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/telltaleatheist/bookforge-sub001/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bookforge",
	Short: "LLM-powered text rewriting for chaptered documents",
	Long: `Bookforge rewrites the text of chaptered documents (ePub) with an LLM
while guaranteeing no content is ever lost.

Two modes are supported:
  - cleanup:  fix OCR artifacts while preserving the author's words
  - simplify: rewrite formal or archaic register in accessible language

Chapters are segmented at natural boundaries, processed in parallel, checked
against skip sentinels, conversational leakage, and truncation, and persisted
incrementally so interrupted runs keep every finished chapter.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bookforge/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
