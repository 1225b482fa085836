package jobqueue

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

const (
	WorkbasketCleanupJobType     = "WorkbasketCleanupJob"
	TaskCleanupJobType           = "TaskCleanupJob"
	ClassificationChangedJobType = "ClassificationChangedJob"
	TaskRefreshJobType           = "TaskRefreshJob"
	PriorityUpdateJobType        = "PriorityUpdateJob"
	UserInfoRefreshJobType       = "UserInfoRefreshJob"
)

// Argument keys understood by the built-in jobs.
const (
	ArgClassificationID    = "classificationId"
	ArgPriorityChanged     = "priorityChanged"
	ArgServiceLevelChanged = "serviceLevelChanged"
	ArgTaskIDs             = "taskIds"
)

// Job is one executable unit built from a claimed record. Execute may run more
// than once for the same record, after a crash or an expired lease, so it has
// to tolerate being re-run from scratch.
type Job interface {
	Execute(ctx context.Context) error
}

// Factory decodes rec into a Job. It must fail before any side effect when an
// argument is missing or malformed, and must not keep a reference to rec.
type Factory func(rec *JobRecord) (Job, error)

type JobRegister interface {
	Register(jobType string, factory Factory)
}

var _ JobRegister = &Registry{}

// Registry maps a record's type to the factory building its Job.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces the factory of jobType.
func (r *Registry) Register(jobType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[jobType] = factory
}

func (r *Registry) Lookup(jobType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[jobType]
	return f, ok
}

// Build returns the Job for rec, handing the factory a copy of its arguments.
func (r *Registry) Build(rec *JobRecord) (Job, error) {
	factory, ok := r.Lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, rec.Type)
	}

	cp := *rec
	cp.Arguments = rec.Arguments.Clone()
	return factory(&cp)
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
