package serve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single run of a scheduled job.
const jobTimeout = 5 * time.Minute

// Job is a named maintenance task run on a cron schedule.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Scheduler runs maintenance jobs next to the API server.
type Scheduler struct {
	c      *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []Job
	entries map[string]cron.EntryID // job name → cron entry ID
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		c:       cron.New(),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins the cron runner and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.c.Start()
	s.logger.Info("scheduler started")
	<-ctx.Done()
	<-s.c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// AddJob schedules job. A job with the same name is replaced.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.c.AddFunc(job.Cron, s.makeFunc(job))
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Cron, err)
	}

	if id, ok := s.entries[job.Name]; ok {
		s.c.Remove(id)
		s.jobs = removeJobByName(s.jobs, job.Name)
	}
	s.entries[job.Name] = entryID
	s.jobs = append(s.jobs, job)

	s.logger.Info("scheduler: job added", "name", job.Name, "cron", job.Cron)
	return nil
}

// RemoveJob unschedules the named job.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.c.Remove(id)
	delete(s.entries, name)
	s.jobs = removeJobByName(s.jobs, name)

	s.logger.Info("scheduler: job removed", "name", name)
	return nil
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name)
	}
	return out
}

// makeFunc returns the cron callback for a job.
func (s *Scheduler) makeFunc(job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.logger.Debug("scheduler: firing job", "name", job.Name)
		if err := job.Run(ctx); err != nil {
			s.logger.Warn("scheduler: job failed", "name", job.Name, "error", err)
		}
	}
}

func removeJobByName(jobs []Job, name string) []Job {
	out := jobs[:0]
	for _, j := range jobs {
		if j.Name != name {
			out = append(out, j)
		}
	}
	return out
}
