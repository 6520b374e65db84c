// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/apperr"
)

// runTimeout bounds a single job execution.
const runTimeout = 5 * time.Minute

type Job struct {
	Name        string
	Spec        string
	Description string
	Run         func(ctx context.Context) error
}

// Status describes a registered job and its most recent execution.
type Status struct {
	Name         string     `json:"name"`
	Spec         string     `json:"spec"`
	Description  string     `json:"description"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Runs         int        `json:"runs"`
}

type entry struct {
	job    Job
	id     cron.EntryID
	status Status
}

type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	// runCtx parents cron-triggered runs. Stop cancels it.
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*entry
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:    logger,
		runCtx:    runCtx,
		cancelRun: cancelRun,
		jobs:      make(map[string]*entry),
	}
}

// Register adds a job. Names must be unique and specs valid cron expressions
// (five fields or descriptors such as @hourly).
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() {
		_ = s.execute(s.runCtx, job.Name)
	})
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	s.jobs[job.Name] = &entry{
		job:    job,
		id:     id,
		status: Status{Name: job.Name, Spec: job.Spec, Description: job.Description},
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")
}

// Stop halts scheduling, cancels running jobs and waits for them to return or
// ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancelRun()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// Run starts the scheduler and stops it when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := e.status
		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			st.NextRun = &next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow executes the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return apperr.NotFound("job %q not found", name)
	}
	return s.execute(ctx, name)
}

func (s *Scheduler) execute(parent context.Context, name string) error {
	s.mu.Lock()
	e := s.jobs[name]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	start := time.Now()
	err := e.job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	startedAt := start.UTC()
	e.status.LastRun = &startedAt
	e.status.LastDuration = elapsed.String()
	e.status.Runs++
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	evt := s.logger.Info()
	if err != nil {
		evt = s.logger.Error().Err(err)
	}
	evt.Str("job", name).Dur("duration", elapsed).Msg("job finished")
	return err
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
