package cleanup

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/telltaleatheist/bookforge-sub001/internal/guard"
	"github.com/telltaleatheist/bookforge-sub001/internal/providers"
	"github.com/telltaleatheist/bookforge-sub001/internal/segment"
)

// memStore is an in-memory DocumentStore for tests.
type memStore struct {
	mu       sync.Mutex
	chapters []ChapterInfo
	texts    map[string]string
	rebuilt  map[string]string
	persists int
}

func newMemStore(texts ...string) *memStore {
	s := &memStore{texts: map[string]string{}, rebuilt: map[string]string{}}
	for i, text := range texts {
		id := fmt.Sprintf("ch%d", i+1)
		s.chapters = append(s.chapters, ChapterInfo{ID: id, Title: strings.ToTitle(id)})
		s.texts[id] = text
	}
	return s
}

func (s *memStore) ListChapters(ctx context.Context) ([]ChapterInfo, error) {
	return append([]ChapterInfo(nil), s.chapters...), nil
}

func (s *memStore) ChapterText(ctx context.Context, id string) (string, error) {
	text, ok := s.texts[id]
	if !ok {
		return "", fmt.Errorf("unknown chapter %s", id)
	}
	return text, nil
}

func (s *memStore) RebuildChapter(ctx context.Context, id, cleanedText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilt[id] = cleanedText
	return nil
}

func (s *memStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persists++
	return nil
}

func (s *memStore) persistCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persists
}

func (s *memStore) rebuiltText(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilt[id]
}

var _ DocumentStore = (*memStore)(nil)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func fastRetry() providers.RetryPolicy {
	return providers.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
}

func testConfig(p providers.Provider) Config {
	return Config{
		Provider: p,
		Mode:     guard.ModeCleanup,
		Workers:  3,
		Retry:    fastRetry(),
	}
}

// paragraphs builds deterministic multi-paragraph chapter text of roughly n
// bytes.
func paragraphs(seed string, n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "%s paragraph %d with enough words to look like prose.\n\n", seed, i)
	}
	return strings.TrimSpace(b.String())
}

// TestJob_CompletesAndPersists runs a small document through the full
// lifecycle and checks every chapter lands rebuilt in the store.
func TestJob_CompletesAndPersists(t *testing.T) {
	store := newMemStore(
		paragraphs("alpha", 3000),
		paragraphs("beta", 3000),
	)
	mock := providers.NewMockProvider() // echoes input

	cfg := testConfig(mock)
	cfg.ChunkSize = 1000
	job := NewJob(store, cfg, nil)

	analytics, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if job.Phase() != PhaseComplete {
		t.Errorf("Phase() = %s, want %s", job.Phase(), PhaseComplete)
	}
	if analytics.ChunksCompleted != analytics.TotalChunks || analytics.TotalChunks == 0 {
		t.Errorf("completed %d of %d chunks", analytics.ChunksCompleted, analytics.TotalChunks)
	}
	if analytics.ChaptersProcessed != 2 {
		t.Errorf("ChaptersProcessed = %d, want 2", analytics.ChaptersProcessed)
	}
	for _, id := range []string{"ch1", "ch2"} {
		if store.rebuiltText(id) == "" {
			t.Errorf("chapter %s was not rebuilt", id)
		}
	}
	// Incremental persist per chapter plus the finalizing persist.
	if store.persistCount() < 3 {
		t.Errorf("persists = %d, want at least 3", store.persistCount())
	}
}

// TestJob_ReassemblyIsOrderIndependent runs the same document sequentially
// and with jittered parallel workers; the rebuilt chapters must match.
func TestJob_ReassemblyIsOrderIndependent(t *testing.T) {
	texts := []string{
		paragraphs("first", 5000),
		paragraphs("second", 4000),
		paragraphs("third", 6000),
	}

	run := func(workers int, jitter bool) map[string]string {
		store := newMemStore(texts...)
		mock := providers.NewMockProvider()
		mock.TransformFunc = func(ctx context.Context, req providers.TransformRequest) (string, error) {
			if jitter {
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			}
			return strings.ToUpper(req.Text), nil
		}

		cfg := testConfig(mock)
		cfg.Workers = workers
		cfg.ChunkSize = 800
		if _, err := NewJob(store, cfg, nil).Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		out := map[string]string{}
		for _, ch := range []string{"ch1", "ch2", "ch3"} {
			out[ch] = store.rebuiltText(ch)
		}
		return out
	}

	sequential := run(1, false)
	parallel := run(4, true)
	for id, want := range sequential {
		if parallel[id] != want {
			t.Errorf("chapter %s differs between sequential and parallel runs", id)
		}
	}
}

// TestJob_SequentialProviderForcesOneWorker checks a provider that rejects
// parallelism never sees overlapping calls.
func TestJob_SequentialProviderForcesOneWorker(t *testing.T) {
	store := newMemStore(paragraphs("solo", 4000))

	var inFlight, maxInFlight int
	var mu sync.Mutex
	mock := providers.NewMockProvider()
	mock.Sequential = true
	mock.TransformFunc = func(ctx context.Context, req providers.TransformRequest) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return req.Text, nil
	}

	cfg := testConfig(mock)
	cfg.Workers = 6
	cfg.ChunkSize = 500
	if _, err := NewJob(store, cfg, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max in-flight calls = %d, want 1", maxInFlight)
	}
}

// TestJob_NoContent verifies a document with only empty chapters fails with
// ErrNoContent without any provider calls.
func TestJob_NoContent(t *testing.T) {
	store := newMemStore("", "   \n\n  ")
	mock := providers.NewMockProvider()

	job := NewJob(store, testConfig(mock), nil)
	_, err := job.Run(context.Background())
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("Run() error = %v, want ErrNoContent", err)
	}
	if job.Phase() != PhaseFailed {
		t.Errorf("Phase() = %s, want %s", job.Phase(), PhaseFailed)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("provider calls = %d, want 0", mock.RequestCount())
	}
}

// TestJob_EmptyChaptersExcluded verifies empty chapters are skipped but the
// rest of the document still processes.
func TestJob_EmptyChaptersExcluded(t *testing.T) {
	store := newMemStore(paragraphs("real", 1500), "", paragraphs("more", 1500))
	mock := providers.NewMockProvider()

	analytics, err := NewJob(store, testConfig(mock), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if analytics.ChaptersProcessed != 2 {
		t.Errorf("ChaptersProcessed = %d, want 2", analytics.ChaptersProcessed)
	}
	if store.rebuiltText("ch2") != "" {
		t.Error("empty chapter ch2 should never be rebuilt")
	}
}

// TestJob_FallbackThresholdAborts verifies the job stops calling the
// provider once too many chunks fall back.
func TestJob_FallbackThresholdAborts(t *testing.T) {
	store := newMemStore(paragraphs("refuse", 8000))
	mock := providers.NewMockProvider()
	mock.Response = "I'm sorry, but I can't help with that request."

	cfg := testConfig(mock)
	cfg.Workers = 1
	cfg.ChunkSize = 600
	cfg.FallbackThreshold = 3
	job := NewJob(store, cfg, nil)

	_, err := job.Run(context.Background())
	if !errors.Is(err, ErrFallbackThreshold) {
		t.Fatalf("Run() error = %v, want ErrFallbackThreshold", err)
	}
	if job.Phase() != PhaseFailed {
		t.Errorf("Phase() = %s, want %s", job.Phase(), PhaseFailed)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("provider calls = %d, want exactly the threshold (3)", mock.RequestCount())
	}
}

// TestJob_AuditWrittenOnAbort verifies the audit artifact is written even
// when the job ends in a breaker abort — the job end with the most skipped
// chunks to review.
func TestJob_AuditWrittenOnAbort(t *testing.T) {
	store := newMemStore(paragraphs("refuse", 8000))
	mock := providers.NewMockProvider()
	mock.Response = "I'm sorry, but I can't help with that request."

	cfg := testConfig(mock)
	cfg.Workers = 1
	cfg.ChunkSize = 600
	cfg.FallbackThreshold = 3
	cfg.AuditPath = filepath.Join(t.TempDir(), "skipped.jsonl")

	_, err := NewJob(store, cfg, nil).Run(context.Background())
	if !errors.Is(err, ErrFallbackThreshold) {
		t.Fatalf("Run() error = %v, want ErrFallbackThreshold", err)
	}

	data, err := readFile(cfg.AuditPath)
	if err != nil {
		t.Fatalf("audit artifact missing after breaker abort: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) != 3 {
		t.Errorf("audit records = %d, want one per fallback (3)", len(lines))
	}
}

// TestJob_TrivialSkipNotCountedAsFallback verifies a skip sentinel on tiny
// input neither trips the breaker nor counts as a quality failure.
func TestJob_TrivialSkipNotCountedAsFallback(t *testing.T) {
	store := newMemStore("※ ※ ※") // decorative scene break, nothing to clean
	mock := providers.NewMockProvider()
	mock.Response = "[UNPROCESSABLE]"

	cfg := testConfig(mock)
	cfg.FallbackThreshold = 1
	analytics, err := NewJob(store, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(analytics.Fallbacks) != 0 {
		t.Errorf("Fallbacks = %v, want none", analytics.Fallbacks)
	}
	if analytics.SkippedChunks != 1 {
		t.Errorf("SkippedChunks = %d, want 1", analytics.SkippedChunks)
	}
}

// TestJob_ContentPolicyErrorFallsBack verifies a content-policy provider
// error keeps the original text and the job keeps going.
func TestJob_ContentPolicyErrorFallsBack(t *testing.T) {
	texts := []string{paragraphs("blocked", 1200), paragraphs("fine", 1200)}
	store := newMemStore(texts...)
	mock := providers.NewMockProvider()
	mock.TransformFunc = func(ctx context.Context, req providers.TransformRequest) (string, error) {
		if strings.Contains(req.Text, "blocked") {
			return "", providers.NewError(providers.ClassContentPolicy, providers.MockName, errors.New("safety block"))
		}
		return req.Text, nil
	}

	cfg := testConfig(mock)
	cfg.ChunkSize = 10000 // one chunk per chapter
	analytics, err := NewJob(store, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if analytics.Fallbacks[guard.ReasonContentSkip] != 1 {
		t.Errorf("Fallbacks = %v, want one content_skip", analytics.Fallbacks)
	}
	if got := store.rebuiltText("ch1"); got != texts[0] {
		t.Errorf("blocked chapter should keep its original text, got %q", got)
	}
}

// TestJob_FatalErrorStopsJob verifies credential-class failures stop the job
// rather than degrade output.
func TestJob_FatalErrorStopsJob(t *testing.T) {
	store := newMemStore(paragraphs("doomed", 5000))
	mock := providers.NewMockProvider()
	mock.Err = providers.NewError(providers.ClassFatal, providers.MockName, errors.New("invalid api key"))

	cfg := testConfig(mock)
	cfg.Workers = 1
	cfg.ChunkSize = 600
	job := NewJob(store, cfg, nil)

	_, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if providers.ClassOf(err) != providers.ClassFatal {
		t.Errorf("error class = %s, want fatal", providers.ClassOf(err))
	}
	if job.Phase() != PhaseFailed {
		t.Errorf("Phase() = %s, want %s", job.Phase(), PhaseFailed)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry, no further dispatch)", mock.RequestCount())
	}
}

// TestJob_CancelStopsDispatch verifies cancellation reaches the Cancelled
// phase and stops issuing provider calls.
func TestJob_CancelStopsDispatch(t *testing.T) {
	store := newMemStore(paragraphs("long", 20000))
	mock := providers.NewMockProvider()
	mock.Latency = 5 * time.Millisecond

	cfg := testConfig(mock)
	cfg.Workers = 2
	cfg.ChunkSize = 500
	job := NewJob(store, cfg, nil)
	events := job.Progress()

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()

	// Cancel once processing has demonstrably started.
	for ev := range events {
		if ev.Phase == PhaseProcessing && ev.ChunksCompleted > 0 {
			job.Cancel()
			break
		}
	}

	err := <-done
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if job.Phase() != PhaseCancelled {
		t.Errorf("Phase() = %s, want %s", job.Phase(), PhaseCancelled)
	}

	calls := mock.RequestCount()
	time.Sleep(20 * time.Millisecond)
	if mock.RequestCount() != calls {
		t.Errorf("provider calls kept growing after cancellation: %d -> %d", calls, mock.RequestCount())
	}
}

// TestJob_ProgressStreamTerminates verifies the event stream always reaches
// a terminal phase and then closes.
func TestJob_ProgressStreamTerminates(t *testing.T) {
	store := newMemStore(paragraphs("events", 2000))
	mock := providers.NewMockProvider()

	job := NewJob(store, testConfig(mock), nil)
	events := job.Progress()

	go job.Run(context.Background())

	var last ProgressEvent
	for ev := range events {
		last = ev
	}
	if last.Phase != PhaseComplete {
		t.Errorf("last event phase = %s, want %s", last.Phase, PhaseComplete)
	}
	if last.ChunksCompleted != last.TotalChunks {
		t.Errorf("last event reports %d/%d chunks", last.ChunksCompleted, last.TotalChunks)
	}
}

// TestJob_AuditArtifact verifies skipped chunks land in the JSONL artifact.
func TestJob_AuditArtifact(t *testing.T) {
	store := newMemStore(paragraphs("keep", 1200))
	mock := providers.NewMockProvider()
	mock.Response = "As an AI, I cannot process this." // conversational leak

	cfg := testConfig(mock)
	cfg.ChunkSize = 10000
	cfg.AuditPath = filepath.Join(t.TempDir(), "audit", "skipped.jsonl")
	analytics, err := NewJob(store, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if analytics.SkippedChunks != 1 {
		t.Fatalf("SkippedChunks = %d, want 1", analytics.SkippedChunks)
	}

	data, err := readFile(cfg.AuditPath)
	if err != nil {
		t.Fatalf("audit artifact: %v", err)
	}
	if !strings.Contains(data, `"reason":"content_skip"`) {
		t.Errorf("audit record missing reason: %s", data)
	}
	if !strings.Contains(data, analytics.JobID) {
		t.Error("audit record missing job id")
	}
}

// TestManifest_LosslessSegmentation re-checks the manifest invariant at the
// engine level: concatenating a chapter's chunks reconstructs its text.
func TestManifest_LosslessSegmentation(t *testing.T) {
	text := paragraphs("invariant", 9000)
	man := buildManifest([]loadedChapter{{info: ChapterInfo{ID: "ch1"}, text: text}}, 700)

	var rebuilt strings.Builder
	for _, c := range man.chunks {
		if len(c.Text) > 700 {
			t.Errorf("chunk %d exceeds max size: %d", c.Index, len(c.Text))
		}
		rebuilt.WriteString(c.Text)
	}
	if rebuilt.String() != text {
		t.Error("concatenated chunks do not reconstruct the chapter text")
	}
	if got := segment.Split(text, 700); len(got) != len(man.chunks) {
		t.Errorf("manifest has %d chunks, segmenter produced %d", len(man.chunks), len(got))
	}
}

// TestManager_StartAndCancel exercises the job registry.
func TestManager_StartAndCancel(t *testing.T) {
	store := newMemStore(paragraphs("managed", 10000))
	mock := providers.NewMockProvider()
	mock.Latency = 5 * time.Millisecond

	cfg := testConfig(mock)
	cfg.ChunkSize = 500
	mgr := NewManager(nil)
	job := mgr.Start(context.Background(), store, cfg)

	if got, ok := mgr.Get(job.ID); !ok || got != job {
		t.Fatal("Get() did not return the started job")
	}
	if !mgr.Cancel(job.ID) {
		t.Fatal("Cancel() = false for a live job")
	}
	if mgr.Cancel("nope") {
		t.Error("Cancel() = true for an unknown job")
	}

	deadline := time.After(2 * time.Second)
	for job.Phase() != PhaseCancelled && job.Phase() != PhaseComplete {
		select {
		case <-deadline:
			t.Fatalf("job never reached a terminal phase, stuck in %s", job.Phase())
		case <-time.After(time.Millisecond):
		}
	}
}
