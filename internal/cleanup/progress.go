package cleanup

import (
	"sync"
	"time"
)

// ProgressEvent is one point on a job's progress stream.
type ProgressEvent struct {
	JobID           string    `json:"job_id"`
	Phase           Phase     `json:"phase"`
	ChunksCompleted int       `json:"chunks_completed"`
	TotalChunks     int       `json:"total_chunks"`
	Percentage      float64   `json:"percentage"`
	ChapterIndex    int       `json:"chapter_index"` // -1 when not chapter-scoped
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// progressBuffer is how many events a slow subscriber may lag before
// events are dropped. Progress is advisory; processing never blocks on it.
const progressBuffer = 64

// publisher fans progress events out to subscribers without blocking the
// workers that produce them.
type publisher struct {
	mu     sync.Mutex
	subs   []chan ProgressEvent
	closed bool
}

func newPublisher() *publisher {
	return &publisher{}
}

// Subscribe returns a channel of progress events. The channel is closed
// when the job reaches a terminal phase.
func (p *publisher) Subscribe() <-chan ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan ProgressEvent, progressBuffer)
	if p.closed {
		close(ch)
		return ch
	}
	p.subs = append(p.subs, ch)
	return ch
}

// Publish delivers an event to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (p *publisher) Publish(ev ProgressEvent) {
	ev.Timestamp = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (p *publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
