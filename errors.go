package jobqueue

import (
	"errors"
	"fmt"

	"github.com/TimKotowski/pg-jobqueue/internal/jobdb"
)

var (
	ErrUnknownJobType  = errors.New("unknown job type")
	ErrJobNotFound     = jobdb.ErrJobNotFound
	ErrDuplicateJob    = jobdb.ErrDuplicateJob
	ErrStaleReschedule = jobdb.ErrStaleReschedule
	ErrInvalidArgument = jobdb.ErrInvalidArgument
)

type (
	JobRecord     = jobdb.JobRecord
	Arguments     = jobdb.Arguments
	ArgumentError = jobdb.ArgumentError
)

// Stage names the lifecycle step a job failed in.
type Stage string

const (
	StageConstruct Stage = "construct"
	StageExecute   Stage = "execute"
	StageRelease   Stage = "release"
)

// JobError wraps a whole-job failure with the record it happened on.
type JobError struct {
	JobID string
	Type  string
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s) failed to %s: %v", e.JobID, e.Type, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
