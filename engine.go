package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/TimKotowski/pg-jobqueue/internal/jobdb"
	"github.com/TimKotowski/pg-jobqueue/internal/taskdb"
	"github.com/TimKotowski/pg-jobqueue/internal/txn"
	"github.com/TimKotowski/pg-jobqueue/migrations"
)

type JobScheduler interface {
	SetUp()
	Start() error
	Stop(ctx context.Context) error
}

var (
	_ JobRegister  = &Engine{}
	_ JobScheduler = &Engine{}
)

// Engine selects due records, claims them and runs their jobs. Any number of
// engines may share one store, a record runs on at most one of them at a time
// while its lease holds.
type Engine struct {
	conf     *Config
	logger   *zap.Logger
	db       *bun.DB
	clock    clockwork.Clock
	registry *Registry
	queue    *Queue
	metrics  *Metrics

	standalone txn.Provider
	nested     txn.Provider

	tasks       taskdb.TaskDB
	workbaskets taskdb.WorkbasketDB
	users       taskdb.UserDB

	directory      Directory
	calculator     PriorityCalculator
	postprocessors []UserPostprocessor

	mu    sync.Mutex
	cron  *cron.Cron
	cycle sync.Mutex
}

type EngineOption func(e *Engine)

// WithDirectory sets the source of the user info refresh job.
func WithDirectory(directory Directory) EngineOption {
	return func(e *Engine) {
		e.directory = directory
	}
}

// WithPriorityCalculator enables priority recomputation.
func WithPriorityCalculator(calculator PriorityCalculator) EngineOption {
	return func(e *Engine) {
		e.calculator = calculator
	}
}

func WithUserPostprocessors(postprocessors ...UserPostprocessor) EngineOption {
	return func(e *Engine) {
		e.postprocessors = append(e.postprocessors, postprocessors...)
	}
}

// WithMetrics replaces the metrics registered on Config.Registerer.
func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

func NewEngine(conf *Config, db *bun.DB, clock clockwork.Clock, opts ...EngineOption) (*Engine, error) {
	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := NewRegistry()
	standalone := txn.NewStandalone(db)
	e := &Engine{
		conf:        conf,
		logger:      conf.Logger.With(zap.String("owner", conf.InstanceID)),
		db:          db,
		clock:       clock,
		registry:    registry,
		queue:       NewQueue(conf, jobdb.NewJobDB(db), registry, clock),
		standalone:  standalone,
		nested:      txn.NewNested(standalone),
		tasks:       taskdb.NewTaskDB(db),
		workbaskets: taskdb.NewWorkbasketDB(db),
		users:       taskdb.NewUserDB(db),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(conf.Registerer)
	}

	return e, nil
}

// Migrate brings the engine tables up to date.
func (e *Engine) Migrate(ctx context.Context) error {
	return migrations.Migrate(ctx, e.db, e.logger)
}

// SetUp registers the built-in job types.
func (e *Engine) SetUp() {
	e.Register(WorkbasketCleanupJobType, newWorkbasketCleanupJob(e.conf, e.standalone, e.workbaskets, e.metrics))
	e.Register(TaskCleanupJobType, newTaskCleanupJob(e.conf, e.standalone, e.tasks, e.clock.Now, e.metrics))
	e.Register(ClassificationChangedJobType, newClassificationChangedJob(e.conf, e.queue, e.tasks))
	e.Register(TaskRefreshJobType, newTaskRefreshJob(e.conf, e.db, e.tasks, e.calculator, e.nested))
	e.Register(PriorityUpdateJobType, newPriorityUpdateJob(e.conf, e.db, e.tasks, e.calculator, e.standalone))
	e.Register(UserInfoRefreshJobType, newUserInfoRefreshJob(e.conf, e.directory, e.postprocessors, e.users, e.nested))
}

func (e *Engine) Register(jobType string, factory Factory) {
	e.registry.Register(jobType, factory)
}

func (e *Engine) Queue() *Queue {
	return e.queue
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// InitRecurringJobs replaces the pending records of every enabled recurring
// type with one freshly seeded record. Types whose schedule is disabled are
// left untouched.
func (e *Engine) InitRecurringJobs(ctx context.Context) error {
	now := e.clock.Now()
	for _, jobType := range e.registry.Types() {
		schedule, ok := e.conf.Schedules[jobType]
		if !ok || !schedule.Enabled {
			continue
		}

		firstRun := schedule.FirstRun
		if firstRun.IsZero() {
			firstRun = now
		}
		firstRun = firstRun.UTC()
		dueAt := seedDueAt(firstRun, schedule.RunEvery, now)

		var id string
		err := e.standalone.RunInTx(ctx, func(ctx context.Context) error {
			removed, err := e.queue.DeleteJobsByType(ctx, jobType)
			if err != nil {
				return err
			}
			if removed > 0 {
				e.logger.Debug("removed pending records", zap.String("job_type", jobType), zap.Int("count", removed))
			}

			id, err = e.queue.CreateJob(ctx, &JobRecord{
				Type:     jobType,
				DueAt:    dueAt,
				RunEvery: schedule.RunEvery,
				FirstRun: &firstRun,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", jobType, err)
		}

		e.logger.Info("recurring job seeded",
			zap.String("job_type", jobType),
			zap.String("job_id", id),
			zap.Time("due_at", dueAt),
			zap.Duration("run_every", schedule.RunEvery))
	}

	return nil
}

// CycleReport summarizes one RunDueJobs call.
type CycleReport struct {
	Selected  int
	Claimed   int
	Conflicts int
	Results   []RunResult
}

func (r CycleReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.State == StateFailed {
			n++
		}
	}
	return n
}

// RunDueJobs runs one select, claim and run cycle. Claimed jobs run one after
// the other on the calling goroutine.
func (e *Engine) RunDueJobs(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	due, err := e.queue.FindDueJobs(ctx, e.clock.Now())
	if err != nil {
		return report, err
	}
	report.Selected = len(due)

	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rec := &due[i]
		claimed, err := e.queue.TryClaim(ctx, rec.ID, e.conf.InstanceID, e.conf.LeaseDuration)
		if err != nil {
			e.logger.Error("claim failed", zap.String("job_id", rec.ID), zap.Error(err))
			continue
		}
		if !claimed {
			report.Conflicts++
			e.metrics.ClaimConflicts.Inc()
			e.logger.Debug("job claimed by another instance", zap.String("job_id", rec.ID))
			continue
		}

		// mirror what the claim wrote
		owner := e.conf.InstanceID
		expires := e.clock.Now().Add(e.conf.LeaseDuration)
		rec.LockOwner = &owner
		rec.LockExpiresAt = &expires
		rec.Attempts++

		report.Claimed++
		e.metrics.JobsClaimed.WithLabelValues(rec.Type).Inc()
		report.Results = append(report.Results, e.RunJob(ctx, rec))
	}

	return report, nil
}

// Start runs RunDueJobs every Config.PollInterval until Stop is called.
// A tick arriving while the previous cycle still runs is skipped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return fmt.Errorf("engine already started")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", e.conf.PollInterval)
	if _, err := c.AddFunc(spec, e.tick); err != nil {
		return fmt.Errorf("schedule poll %q: %w", spec, err)
	}
	c.Start()

	e.cron = c
	e.logger.Info("engine started", zap.Duration("poll_interval", e.conf.PollInterval))

	return nil
}

func (e *Engine) tick() {
	if !e.cycle.TryLock() {
		e.logger.Debug("previous cycle still running, skipping tick")
		return
	}
	defer e.cycle.Unlock()

	// jobs are not cancelled on shutdown, the lease bounds them
	report, err := e.RunDueJobs(context.Background())
	if err != nil {
		e.logger.Error("cycle failed", zap.Error(err))
		return
	}
	if report.Selected > 0 {
		e.logger.Debug("cycle finished",
			zap.Int("selected", report.Selected),
			zap.Int("claimed", report.Claimed),
			zap.Int("conflicts", report.Conflicts),
			zap.Int("failed", report.Failed()))
	}
}

// Stop prevents further ticks and waits for a running cycle, or until ctx is done.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		e.logger.Info("engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
