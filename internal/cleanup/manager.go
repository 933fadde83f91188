package cleanup

import (
	"context"
	"log/slog"
	"sync"
)

// Manager tracks jobs by id so callers can start, watch, and cancel them.
type Manager struct {
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates an empty job manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		jobs:   make(map[string]*Job),
	}
}

// Start launches a job in the background and returns it immediately. Watch
// its Progress stream or poll Phase for completion.
func (m *Manager) Start(ctx context.Context, store DocumentStore, cfg Config) *Job {
	job := NewJob(store, cfg, m.logger)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go func() {
		_, _ = job.Run(ctx)
	}()
	return job
}

// Run executes a job synchronously. Used by the CLI.
func (m *Manager) Run(ctx context.Context, store DocumentStore, cfg Config) (Analytics, error) {
	job := NewJob(store, cfg, m.logger)

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.Run(ctx)
}

// Get looks up a job by id.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Cancel requests cancellation of a job. Reports whether a job with that id
// was found and signaled.
func (m *Manager) Cancel(id string) bool {
	job, ok := m.Get(id)
	if !ok {
		return false
	}
	job.Cancel()
	return true
}
