package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/globallink/pkg/logger"
)

// ErrJobRunning is returned when a job is triggered while it is still running
var ErrJobRunning = errors.New("job already running")

// Options tune retry and timeout behaviour
type Options struct {
	Location   *time.Location
	MaxRetries int           // extra attempts after a failure; 0 = wait for the next tick
	RetryDelay time.Duration // fixed, no backoff
	JobTimeout time.Duration // 0 = no limit
}

type entry struct {
	job  Job
	id   cron.EntryID
	busy sync.Mutex // held while the job runs
}

// Scheduler runs jobs on cron schedules; a job never overlaps itself
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	opts    Options
	entries map[string]*entry
	history map[string]*JobHistory
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler with a seconds-aware cron parser
func New(log *logger.Logger, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	log = log.WithField("module", "scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithLogger(cron.PrintfLogger(log)),
		),
		logger:  log,
		opts:    opts,
		entries: make(map[string]*entry),
		history: make(map[string]*JobHistory),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob schedules a job
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule(), func() { s.execute(s.ctx, e, "cron") })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	e.id = id

	s.entries[name] = e
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")
	return nil
}

// RemoveJob unschedules a job; its history is kept
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)

	s.logger.WithField("job", name).Info("Job removed from scheduler")
	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow runs a job synchronously outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	e, exists := s.entries[name]
	s.mu.RUnlock()
	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}

	res := s.execute(ctx, e, "manual")
	if res.Skipped {
		return res, fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	if !res.Success {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// execute runs e with the retry policy unless it is already running
func (s *Scheduler) execute(ctx context.Context, e *entry, trigger string) JobResult {
	name := e.job.Name()
	res := JobResult{JobName: name, Trigger: trigger, StartTime: time.Now()}

	if !e.busy.TryLock() {
		res.Skipped = true
		res.EndTime = res.StartTime
		s.record(res)
		s.logger.WithFields(map[string]interface{}{"job": name, "trigger": trigger}).Warn("Job still running, skipped")
		return res
	}
	defer e.busy.Unlock()

	log := s.logger.WithFields(map[string]interface{}{"job": name, "trigger": trigger})
	log.Info("Job started")

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		res.Attempts++
		lastErr = s.runOnce(ctx, e.job)
		if lastErr == nil || ctx.Err() != nil {
			break
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed")

		if attempt < s.opts.MaxRetries {
			select {
			case <-time.After(s.opts.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Success = lastErr == nil
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	s.record(res)

	if res.Success {
		log.WithField("duration", res.Duration).Info("Job completed successfully")
	} else {
		log.WithFields(map[string]interface{}{
			"duration": res.Duration,
			"error":    res.Error,
		}).Error("Job failed")
	}
	return res
}

// runOnce runs one attempt, turning a panic into an error
func (s *Scheduler) runOnce(ctx context.Context, job Job) (err error) {
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) record(res JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.history[res.JobName]; ok {
		h.AddResult(res)
	}
}

// JobHistory returns a copy of the history of a job
func (s *Scheduler) JobHistory(name string) (JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.history[name]
	if !exists {
		return JobHistory{}, fmt.Errorf("job %s not found", name)
	}
	return JobHistory{Results: append([]JobResult(nil), h.Results...)}, nil
}

// Jobs returns the names of scheduled jobs, sorted
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobStats summarises one job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SkipCount    int        `json:"skip_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// Stats returns statistics for every scheduled job
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.entries))
	for name, e := range s.entries {
		h := s.history[name]
		st := JobStats{
			JobName:      name,
			Schedule:     e.job.Schedule(),
			FailureCount: len(h.Failures()),
			SuccessRate:  h.SuccessRate(),
		}
		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			st.NextRun = &next
		}

		for i := range h.Results {
			r := h.Results[i]
			if r.Skipped {
				st.SkipCount++
				continue
			}
			st.TotalRuns++
			start := r.StartTime
			st.LastRun = &start
			if r.Success {
				st.SuccessCount++
				st.LastSuccess = &start
			} else {
				st.LastFailure = &start
			}
		}
		stats[name] = st
	}
	return stats
}
