package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
)

// Job drives one document through the cleanup pipeline: load chapters,
// segment them, process chunks, and finalize. A job runs at most once.
type Job struct {
	ID string

	cfg    Config
	store  DocumentStore
	logger *slog.Logger
	pub    *publisher

	mu        sync.Mutex
	phase     Phase
	cancel    context.CancelFunc
	err       error
	analytics Analytics
}

// NewJob prepares a job against the given document store. Run starts it.
func NewJob(store DocumentStore, cfg Config, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Job{
		ID:     id,
		cfg:    cfg.withDefaults(),
		store:  store,
		logger: logger.With("component", "cleanup", "job_id", id),
		pub:    newPublisher(),
		phase:  PhaseLoading,
	}
}

// Progress subscribes to the job's event stream. The channel closes when
// the job reaches a terminal phase.
func (j *Job) Progress() <-chan ProgressEvent {
	return j.pub.Subscribe()
}

// Phase returns the job's current lifecycle phase.
func (j *Job) Phase() Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// Err returns the terminal error, if the job failed or was cancelled.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Analytics returns the job summary. Meaningful once the job is terminal.
func (j *Job) Analytics() Analytics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.analytics
}

// Cancel requests cooperative cancellation. In-flight provider calls are
// interrupted; chapters persisted before this point stay persisted.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes the job to a terminal phase and returns its analytics. The
// returned error is ErrCancelled after Cancel, ErrNoContent for an empty
// document, and otherwise the first terminal processing error.
func (j *Job) Run(ctx context.Context) (Analytics, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	start := time.Now()
	defer j.pub.Close()

	analytics, err := j.run(ctx, start)
	if err != nil {
		phase := PhaseFailed
		if errors.Is(err, ErrCancelled) {
			phase = PhaseCancelled
		}
		j.finish(phase, err, analytics)
		return analytics, err
	}

	j.finish(PhaseComplete, nil, analytics)
	return analytics, nil
}

func (j *Job) run(ctx context.Context, start time.Time) (Analytics, error) {
	analytics := Analytics{JobID: j.ID, Fallbacks: map[guard.Reason]int{}}

	j.setPhase(PhaseLoading, "loading document")
	chapters, err := loadChapters(ctx, j.store)
	if err != nil {
		return analytics, j.asTerminal(ctx, err)
	}

	j.setPhase(PhasePreScanning, fmt.Sprintf("segmenting %d chapters", len(chapters)))
	man := buildManifest(chapters, j.cfg.ChunkSize)
	analytics.TotalChunks = len(man.chunks)

	j.setPhase(PhaseProcessing, "")
	sched := newScheduler(j.cfg, j.ID, man, j.store, j.logger, j.pub.Publish)
	runErr := sched.run(ctx)

	completed, chaptersDone, fallbacks, skipped := sched.snapshot()
	analytics.ChunksCompleted = completed
	analytics.ChaptersProcessed = chaptersDone
	analytics.Fallbacks = fallbacks
	analytics.SkippedChunks = len(skipped)
	analytics.Duration = time.Since(start)
	if secs := analytics.Duration.Seconds(); secs > 0 {
		analytics.ChunksPerSecond = float64(completed) / secs
	}

	// The audit artifact is written at every job end, not just success: an
	// aborted job is the one with the most skipped chunks to review.
	if err := writeAudit(j.cfg.AuditPath, j.ID, skipped); err != nil {
		// The chapters persisted so far are already safe on disk; a failed
		// audit artifact is not worth failing the job over.
		j.logger.Warn("audit artifact not written", "error", err)
	}

	if runErr != nil {
		return analytics, j.asTerminal(ctx, runErr)
	}

	j.setPhase(PhaseFinalizing, "persisting output")
	if err := j.store.Persist(ctx); err != nil {
		return analytics, fmt.Errorf("final persist: %w", err)
	}

	return analytics, nil
}

// asTerminal maps context cancellation onto ErrCancelled and passes
// everything else through.
func (j *Job) asTerminal(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ErrCancelled
	}
	return err
}

func (j *Job) setPhase(phase Phase, message string) {
	j.mu.Lock()
	j.phase = phase
	j.mu.Unlock()

	j.logger.Info("phase changed", "phase", phase)
	j.pub.Publish(ProgressEvent{
		JobID:        j.ID,
		Phase:        phase,
		ChapterIndex: -1,
		Message:      message,
	})
}

func (j *Job) finish(phase Phase, err error, analytics Analytics) {
	j.mu.Lock()
	j.phase = phase
	j.err = err
	j.analytics = analytics
	j.mu.Unlock()

	ev := ProgressEvent{
		JobID:           j.ID,
		Phase:           phase,
		ChunksCompleted: analytics.ChunksCompleted,
		TotalChunks:     analytics.TotalChunks,
		ChapterIndex:    -1,
	}
	if analytics.TotalChunks > 0 {
		ev.Percentage = 100 * float64(analytics.ChunksCompleted) / float64(analytics.TotalChunks)
	}
	switch {
	case err != nil:
		ev.Message = err.Error()
		j.logger.Error("job finished", "phase", phase, "error", err)
	default:
		ev.Message = fmt.Sprintf("%d chunks across %d chapters", analytics.ChunksCompleted, analytics.ChaptersProcessed)
		j.logger.Info("job finished",
			"phase", phase,
			"chunks", analytics.ChunksCompleted,
			"chapters", analytics.ChaptersProcessed,
			"duration", analytics.Duration,
			"fallbacks", analytics.SkippedChunks)
	}
	j.pub.Publish(ev)
}
