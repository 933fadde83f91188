// Package cleanup is the core engine: it chunks chapter text, schedules
// chunks across workers, guards provider output fidelity, and reassembles
// and persists chapters as they complete. It guarantees no content loss
// despite non-deterministic, sometimes-refusing, sometimes-truncating
// provider responses.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
	"github.com/telltaleatheist/bookforge-sub001/internal/providers"
)

// ChapterInfo identifies one document chapter.
type ChapterInfo struct {
	ID    string
	Title string
}

// DocumentStore is the external component owning container parsing, chapter
// extraction, and reconstruction/persistence. RebuildChapter and Persist
// must be safe for concurrent callers.
type DocumentStore interface {
	ListChapters(ctx context.Context) ([]ChapterInfo, error)
	ChapterText(ctx context.Context, id string) (string, error)
	RebuildChapter(ctx context.Context, id, cleanedText string) error
	Persist(ctx context.Context) error
}

// Config configures one cleanup job.
type Config struct {
	// Provider is the backend to drive.
	Provider providers.Provider
	// Mode selects cleanup or simplification.
	Mode guard.Mode
	// Workers is the concurrency width. Width <= 1, or a provider that
	// disallows parallelism, selects the sequential path.
	Workers int
	// ChunkSize is the maximum chunk size in bytes (default 6000).
	ChunkSize int
	// FallbackThreshold aborts the job once this many fallbacks accumulate
	// (default 10). The job fails loudly instead of silently degrading.
	FallbackThreshold int
	// SystemPrompt overrides the mode's default prompt.
	SystemPrompt string
	// Guard tunes the output fidelity checks.
	Guard guard.Config
	// Retry bounds transient-failure retries around every provider call.
	Retry providers.RetryPolicy
	// AuditPath, when set, receives a JSONL record per skipped chunk at job
	// end, for post-hoc review only.
	AuditPath string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 6000
	}
	if c.FallbackThreshold <= 0 {
		c.FallbackThreshold = 10
	}
	if c.Mode == "" {
		c.Mode = guard.ModeCleanup
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = providers.DefaultRetryPolicy()
	}
	return c
}

// Chunk is a contiguous, non-overlapping slice of one chapter's text.
// Concatenating a chapter's chunks in index order reconstructs the
// chapter's extracted text exactly.
type Chunk struct {
	ChapterIndex int // index into the job's chapter list
	Index        int // position within the chapter
	GlobalPos    int // position in the flattened work queue
	Text         string
}

// ChunkResult is the outcome for one chunk: the accepted output, or the
// original input on soft failure. Produced exactly once per chunk.
type ChunkResult struct {
	Chunk       Chunk
	Text        string
	Fallback    bool
	Reason      guard.Reason
	Skipped     bool
	Sample      string // raw response excerpt, kept for the audit artifact
	CompletedAt time.Time
}

// SkippedChunk records a fallback for the post-hoc audit artifact. It is
// never fed back into the pipeline.
type SkippedChunk struct {
	ChapterID      string       `json:"chapter_id"`
	ChapterIndex   int          `json:"chapter_index"`
	ChunkIndex     int          `json:"chunk_index"`
	Reason         guard.Reason `json:"reason"`
	OriginalText   string       `json:"original_text"`
	ResponseSample string       `json:"response_sample,omitempty"`
}

// Analytics summarizes a completed job. Computed once at job end.
type Analytics struct {
	JobID             string                `json:"job_id"`
	Duration          time.Duration         `json:"duration"`
	TotalChunks       int                   `json:"total_chunks"`
	ChunksCompleted   int                   `json:"chunks_completed"`
	ChunksPerSecond   float64               `json:"chunks_per_second"`
	ChaptersProcessed int                   `json:"chapters_processed"`
	Fallbacks         map[guard.Reason]int  `json:"fallbacks"`
	SkippedChunks     int                   `json:"skipped_chunks"`
}

// Phase is a job lifecycle state.
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhasePreScanning Phase = "prescanning"
	PhaseProcessing  Phase = "processing"
	PhaseFinalizing  Phase = "finalizing"
	PhaseComplete    Phase = "complete"
	PhaseCancelled   Phase = "cancelled"
	PhaseFailed      Phase = "failed"
)

// Terminal job errors.
var (
	// ErrNoContent means the document has zero non-empty chapters.
	ErrNoContent = errors.New("document has no processable content")
	// ErrFallbackThreshold means too many chunks fell back to their
	// original text; continuing would silently degrade output quality.
	ErrFallbackThreshold = errors.New("fallback threshold exceeded")
	// ErrCancelled means the job was cancelled by the user.
	ErrCancelled = errors.New("job cancelled")
)
