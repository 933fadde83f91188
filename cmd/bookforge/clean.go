package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telltaleatheist/bookforge-sub001/internal/cleanup"
	"github.com/telltaleatheist/bookforge-sub001/internal/config"
	"github.com/telltaleatheist/bookforge-sub001/internal/epub"
	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
	"github.com/telltaleatheist/bookforge-sub001/internal/prompts"
	"github.com/telltaleatheist/bookforge-sub001/internal/providers"
)

var (
	cleanOut       string
	cleanMode      string
	cleanProvider  string
	cleanWorkers   int
	cleanChunkSize int
	cleanThreshold int
	cleanNoAudit   bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <book.epub>",
	Short: "Rewrite a book's text with an LLM",
	Long: `Clean processes every chapter of an ePub through the configured LLM
provider. Finished chapters are persisted incrementally; interrupting the run
keeps everything completed so far.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClean(cmd.Context(), args[0])
	},
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanOut, "out", "o", "", "output path (default: <input>.cleaned.epub)")
	cleanCmd.Flags().StringVarP(&cleanMode, "mode", "m", "", "cleanup or simplify (default from config)")
	cleanCmd.Flags().StringVarP(&cleanProvider, "provider", "p", "", "provider name from config")
	cleanCmd.Flags().IntVarP(&cleanWorkers, "workers", "w", 0, "concurrent workers")
	cleanCmd.Flags().IntVar(&cleanChunkSize, "chunk-size", 0, "maximum chunk size in bytes")
	cleanCmd.Flags().IntVar(&cleanThreshold, "fallback-threshold", 0, "abort after this many fallbacks")
	cleanCmd.Flags().BoolVar(&cleanNoAudit, "no-audit", false, "skip the skipped-chunk audit artifact")
}

func runClean(ctx context.Context, inPath string) error {
	if cleanMode != "" && cleanMode != string(guard.ModeCleanup) && cleanMode != string(guard.ModeSimplify) {
		return fmt.Errorf("unknown mode %q (want %s or %s)", cleanMode, guard.ModeCleanup, guard.ModeSimplify)
	}
	logger := newLogger()

	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}
	cfg := cm.Get()

	registry, err := providers.NewRegistry(ctx, cfg.ToRegistryConfig(), logger)
	if err != nil {
		return err
	}

	providerName := cfg.Defaults.Provider
	if cleanProvider != "" {
		providerName = cleanProvider
	}
	provider, ok := registry.Get(providerName)
	if !ok {
		return fmt.Errorf("provider %q not configured or not enabled (have: %s)",
			providerName, strings.Join(registry.Names(), ", "))
	}

	outPath := cleanOut
	if outPath == "" {
		ext := filepath.Ext(inPath)
		outPath = strings.TrimSuffix(inPath, ext) + ".cleaned" + ext
	}

	store, err := epub.Open(inPath, outPath, logger)
	if err != nil {
		return err
	}

	jobCfg := buildJobConfig(cfg, provider, inPath)
	mgr := cleanup.NewManager(logger)
	job := mgr.Start(ctx, storeAdapter{store}, jobCfg)

	for ev := range job.Progress() {
		switch ev.Phase {
		case cleanup.PhaseProcessing:
			if ev.TotalChunks > 0 {
				fmt.Printf("\r%s %3.0f%% (%d/%d chunks)", ev.Phase, ev.Percentage, ev.ChunksCompleted, ev.TotalChunks)
			}
		default:
			fmt.Printf("\r%s %s\n", ev.Phase, ev.Message)
		}
	}

	if err := job.Err(); err != nil {
		return err
	}

	a := job.Analytics()
	fmt.Printf("done: %d chunks, %d chapters, %.1f chunks/s, %d skipped -> %s\n",
		a.ChunksCompleted, a.ChaptersProcessed, a.ChunksPerSecond, a.SkippedChunks, outPath)
	return nil
}

func buildJobConfig(cfg *config.Config, provider providers.Provider, inPath string) cleanup.Config {
	d := cfg.Defaults

	mode := guard.Mode(d.Mode)
	if cleanMode != "" {
		mode = guard.Mode(cleanMode)
	}
	workers := d.Workers
	if cleanWorkers > 0 {
		workers = cleanWorkers
	}
	chunkSize := d.ChunkSize
	if cleanChunkSize > 0 {
		chunkSize = cleanChunkSize
	}
	threshold := d.FallbackThreshold
	if cleanThreshold > 0 {
		threshold = cleanThreshold
	}

	auditPath := ""
	if !cleanNoAudit && d.AuditDir != "" {
		base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
		auditPath = filepath.Join(d.AuditDir, base+".skipped.jsonl")
	}

	return cleanup.Config{
		Provider:          provider,
		Mode:              mode,
		Workers:           workers,
		ChunkSize:         chunkSize,
		FallbackThreshold: threshold,
		SystemPrompt:      prompts.ForMode(mode),
		Guard: guard.Config{
			CleanupRatio:  d.CleanupRatio,
			SimplifyRatio: d.SimplifyRatio,
			MinBisectSize: d.MinBisectSize,
		},
		Retry: providers.RetryPolicy{
			MaxAttempts: d.MaxRetries,
			Delay:       time.Duration(d.RetryDelaySeconds) * time.Second,
		},
		AuditPath: auditPath,
	}
}

// storeAdapter bridges the ePub store to the engine's DocumentStore.
type storeAdapter struct {
	*epub.Store
}

func (a storeAdapter) ListChapters(ctx context.Context) ([]cleanup.ChapterInfo, error) {
	chapters, err := a.Store.ListChapters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]cleanup.ChapterInfo, len(chapters))
	for i, ch := range chapters {
		out[i] = cleanup.ChapterInfo{ID: ch.ID, Title: ch.Title}
	}
	return out, nil
}
