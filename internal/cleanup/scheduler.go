package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
	"github.com/telltaleatheist/bookforge-sub001/internal/providers"
)

// scheduler drains one job's chunk queue with a fixed pool of workers. The
// queue is a pre-filled FIFO channel, so "pop next chunk" is atomic and a
// width of one degenerates to strict document-order processing.
type scheduler struct {
	cfg     Config
	jobID   string
	guard   *guard.Guard
	man     *manifest
	store   DocumentStore
	logger  *slog.Logger
	publish func(ProgressEvent)

	mu            sync.Mutex
	completed     int
	chaptersDone  int
	fallbackCount int
	fallbacks     map[guard.Reason]int
	skipped       []SkippedChunk

	stopped  atomic.Bool
	failOnce sync.Once
	terminal error
	abort    context.CancelFunc
}

func newScheduler(cfg Config, jobID string, man *manifest, store DocumentStore, logger *slog.Logger, publish func(ProgressEvent)) *scheduler {
	return &scheduler{
		cfg:       cfg,
		jobID:     jobID,
		guard:     guard.New(cfg.Guard),
		man:       man,
		store:     store,
		logger:    logger,
		publish:   publish,
		fallbacks: make(map[guard.Reason]int),
	}
}

// run processes every chunk in the manifest and returns the first terminal
// error, if any. Chapters are rebuilt and persisted as their last chunk
// completes, regardless of worker interleaving.
func (s *scheduler) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.abort = cancel

	width := s.cfg.Workers
	if !s.cfg.Provider.SupportsParallel() {
		width = 1
	}
	if width > len(s.man.chunks) {
		width = len(s.man.chunks)
	}

	queue := make(chan Chunk, len(s.man.chunks))
	for _, c := range s.man.chunks {
		queue <- c
	}
	close(queue)

	s.logger.Info("processing started",
		"chunks", len(s.man.chunks),
		"chapters", len(s.man.chapters),
		"workers", width,
		"provider", s.cfg.Provider.Name())

	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker, queue)
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	terminal := s.terminal
	s.mu.Unlock()
	if terminal != nil {
		return terminal
	}
	return ctx.Err()
}

func (s *scheduler) work(ctx context.Context, worker int, queue <-chan Chunk) {
	for chunk := range queue {
		if s.stopped.Load() || ctx.Err() != nil {
			return
		}
		s.process(ctx, worker, chunk)
	}
}

func (s *scheduler) process(ctx context.Context, worker int, chunk Chunk) {
	transform := func(ctx context.Context, text string) (string, error) {
		return s.cfg.Retry.Transform(ctx, s.cfg.Provider, providers.TransformRequest{
			Text:         text,
			SystemPrompt: s.cfg.SystemPrompt,
		})
	}

	resp, err := transform(ctx, chunk.Text)
	if err != nil {
		s.resolveError(chunk, err)
		return
	}

	verdict, err := s.guard.Evaluate(ctx, chunk.Text, resp, s.cfg.Mode, transform)
	if err != nil {
		s.resolveError(chunk, err)
		return
	}

	if verdict.Fallback {
		s.logger.Warn("chunk fell back to original text",
			"chapter", chunk.ChapterIndex,
			"chunk", chunk.Index,
			"reason", verdict.Reason,
			"worker", worker)
	}

	s.record(ctx, ChunkResult{
		Chunk:    chunk,
		Text:     verdict.Text,
		Fallback: verdict.Fallback,
		Reason:   verdict.Reason,
		Skipped:  verdict.Skipped,
		Sample:   verdict.ResponseSample,
	})
}

// resolveError maps a provider error to either a soft failure (content
// policy: keep the original text, never lose content) or a terminal job
// failure (everything else that survived the retry policy).
func (s *scheduler) resolveError(chunk Chunk, err error) {
	if providers.ClassOf(err) == providers.ClassContentPolicy {
		s.record(context.Background(), ChunkResult{
			Chunk:    chunk,
			Text:     chunk.Text,
			Fallback: true,
			Reason:   guard.ReasonContentSkip,
		})
		return
	}
	s.fail(fmt.Errorf("chapter %d chunk %d: %w", chunk.ChapterIndex, chunk.Index, err))
}

// record stores a chunk result, updates the fallback breaker, and triggers
// chapter reassembly when the chunk was its chapter's last.
func (s *scheduler) record(ctx context.Context, res ChunkResult) {
	s.mu.Lock()
	ch, chapterDone := s.man.record(res)
	s.completed++
	completed := s.completed

	if res.Fallback || res.Skipped {
		s.skipped = append(s.skipped, SkippedChunk{
			ChapterID:      ch.info.ID,
			ChapterIndex:   res.Chunk.ChapterIndex,
			ChunkIndex:     res.Chunk.Index,
			Reason:         res.Reason,
			OriginalText:   res.Chunk.Text,
			ResponseSample: res.Sample,
		})
	}
	// Legitimate skips are not quality failures and never trip the breaker.
	tripped := false
	if res.Fallback && !res.Skipped {
		s.fallbackCount++
		s.fallbacks[res.Reason]++
		tripped = s.fallbackCount >= s.cfg.FallbackThreshold
	}
	s.mu.Unlock()

	s.publish(ProgressEvent{
		JobID:           s.jobID,
		Phase:           PhaseProcessing,
		ChunksCompleted: completed,
		TotalChunks:     len(s.man.chunks),
		Percentage:      100 * float64(completed) / float64(len(s.man.chunks)),
		ChapterIndex:    res.Chunk.ChapterIndex,
	})

	if tripped {
		s.fail(fmt.Errorf("%w: %d chunks kept their original text", ErrFallbackThreshold, s.cfg.FallbackThreshold))
		return
	}
	if chapterDone {
		s.finishChapter(ctx, ch)
	}
}

// finishChapter reassembles a completed chapter and persists the container
// incrementally, so an interrupted job keeps every finished chapter.
func (s *scheduler) finishChapter(ctx context.Context, ch *chapterWork) {
	if err := s.store.RebuildChapter(ctx, ch.info.ID, ch.assemble()); err != nil {
		s.fail(fmt.Errorf("rebuild chapter %s: %w", ch.info.ID, err))
		return
	}
	if err := s.store.Persist(ctx); err != nil {
		s.fail(fmt.Errorf("persist after chapter %s: %w", ch.info.ID, err))
		return
	}

	s.mu.Lock()
	s.chaptersDone++
	done := s.chaptersDone
	s.mu.Unlock()

	s.logger.Info("chapter persisted",
		"chapter", ch.info.ID,
		"chapters_done", done,
		"chapters_total", len(s.man.chapters))

	s.publish(ProgressEvent{
		JobID:           s.jobID,
		Phase:           PhaseProcessing,
		ChunksCompleted: s.completedCount(),
		TotalChunks:     len(s.man.chunks),
		Percentage:      100 * float64(s.completedCount()) / float64(len(s.man.chunks)),
		ChapterIndex:    ch.index,
		Message:         fmt.Sprintf("chapter %d/%d persisted", done, len(s.man.chapters)),
	})
}

// fail records the first terminal error and stops dispatch. In-flight chunks
// are abandoned; the job's output stays whatever was last persisted.
func (s *scheduler) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.terminal = err
		s.mu.Unlock()
		s.stopped.Store(true)
		if s.abort != nil {
			s.abort()
		}
		s.logger.Error("job processing stopped", "error", err)
	})
}

func (s *scheduler) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *scheduler) snapshot() (completed, chapters int, fallbacks map[guard.Reason]int, skipped []SkippedChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fallbacks = make(map[guard.Reason]int, len(s.fallbacks))
	for k, v := range s.fallbacks {
		fallbacks[k] = v
	}
	skipped = make([]SkippedChunk, len(s.skipped))
	copy(skipped, s.skipped)
	return s.completed, s.chaptersDone, fallbacks, skipped
}
