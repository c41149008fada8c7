// Package scheduler runs periodic maintenance jobs: TTL sweeps of the
// in-memory stores and pruning of persisted history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/turma/internal/logging"
)

// Job is one periodic task. Run reports how many entries it removed.
type Job struct {
	Name     string
	Schedule string // cron spec, e.g. "@every 1m"
	Run      func(ctx context.Context) (int, error)
}

// SweepJob wraps a context-free sweep such as pending.Repository.Sweep.
func SweepJob(name, schedule string, sweep func() int) Job {
	return Job{
		Name:     name,
		Schedule: schedule,
		Run: func(context.Context) (int, error) {
			return sweep(), nil
		},
	}
}

// Scheduler manages the maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	jobs    map[string]Job
	entries map[string]cron.EntryID
	log     *slog.Logger
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		log:     logging.WithComponent("scheduler"),
	}
}

// Add registers a job. Jobs with an empty schedule are skipped.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Schedule == "" {
		s.log.Info("job disabled", slog.String("job", job.Name))
		return nil
	}
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) })
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", job.Name, job.Schedule, err)
	}
	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	return nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.log.Info("scheduler stopped")
}

// RunNow runs the named job immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	return job.Run(ctx)
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		s.log.Warn("job failed", slog.String("job", job.Name), slog.Any("error", err))
		return
	}
	if n > 0 {
		s.log.Debug("job removed entries",
			slog.String("job", job.Name),
			slog.Int("removed", n),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run"`
}

// Status lists the registered jobs by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, job := range s.jobs {
		st := JobStatus{Name: name, Schedule: job.Schedule}
		if s.running {
			entry := s.cron.Entry(s.entries[name])
			st.NextRun = entry.Next
			st.LastRun = entry.Prev
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
