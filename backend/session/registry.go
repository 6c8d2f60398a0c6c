package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/neurotext.uk-sub001/backend/event"
)

// Registry owns every active and recently finished job. It is constructed
// once and injected into request handlers; there is no package-level state.
// Distinct jobs share nothing and run fully independently.
type Registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	bus  *event.Bus
}

func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		jobs: make(map[uuid.UUID]*Job),
		bus:  bus,
	}
}

// Create registers a new job in the created state.
func (r *Registry) Create(strategy string) *Job {
	now := time.Now()
	job := &Job{
		ID:        uuid.New(),
		Strategy:  strategy,
		status:    StatusCreated,
		parts:     make(map[int]string),
		createdAt: now,
		updatedAt: now,
		bus:       r.bus,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job
}

// Attach registers a job reconstructed from persisted state under its
// original identifier, for resumption.
func (r *Registry) Attach(id uuid.UUID, strategy string, completed map[int]string) *Job {
	now := time.Now()
	parts := make(map[int]string, len(completed))
	for i, text := range completed {
		parts[i] = text
	}
	job := &Job{
		ID:        id,
		Strategy:  strategy,
		status:    StatusCreated,
		parts:     parts,
		createdAt: now,
		updatedAt: now,
		bus:       r.bus,
	}
	job.cumulativeWords = countPartWords(parts)

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job
}

func (r *Registry) Get(id uuid.UUID) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	return out
}

// Abort raises the abort flag on a job. Aborting a terminal or unknown job
// is a no-op, not an error; the returned job is nil only when unknown.
func (r *Registry) Abort(id uuid.UUID) *Job {
	job, ok := r.Get(id)
	if !ok {
		return nil
	}
	job.RequestAbort()
	return job
}

// Remove drops a job from the registry, typically after its terminal state
// has been persisted.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}
