// Package scheduler runs config-declared cron jobs: each fires a prompt at a
// backend and delivers the result to a chat. Jobs live in the config only;
// there is no runtime add/remove and nothing is persisted.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Config configures the scheduler.
type Config struct {
	// Enabled turns the scheduler on.
	Enabled bool `yaml:"enabled"`

	// Jobs are the scheduled prompts.
	Jobs []JobConfig `yaml:"jobs"`
}

// JobConfig declares one scheduled prompt.
type JobConfig struct {
	// Name identifies the job in logs.
	Name string `yaml:"name"`

	// Cron is the schedule, standard 5-field syntax or @hourly/@daily.
	Cron string `yaml:"cron"`

	// Prompt is the text sent to the backend on each run.
	Prompt string `yaml:"prompt"`

	// Agent selects the backend ("claude" or "ollama"). Default "claude".
	Agent string `yaml:"agent"`

	// Channel is the transport the result goes out on.
	Channel string `yaml:"channel"`

	// ChatID is the destination chat.
	ChatID string `yaml:"chat_id"`
}

// Runner executes a job's prompt and returns the reply text.
type Runner func(ctx context.Context, job JobConfig) (string, error)

// Deliverer sends a job's result to its destination chat.
type Deliverer func(ctx context.Context, channel, chatID, text string) error

// Scheduler drives the cron loop.
type Scheduler struct {
	cfg     Config
	run     Runner
	deliver Deliverer
	logger  *slog.Logger

	cron *cron.Cron

	// inFlight suppresses overlapping runs of the same job.
	inFlight sync.Map
}

// New creates a scheduler from config. run and deliver are called from cron
// goroutines and must be safe for concurrent use.
func New(cfg Config, run Runner, deliver Deliverer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		run:     run,
		deliver: deliver,
		logger:  logger.With("component", "scheduler"),
	}
}

// Start registers all jobs and starts the cron loop. Returns the first
// schedule parse error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()

	for _, job := range s.cfg.Jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Cron, func() { s.fire(ctx, job) }); err != nil {
			return err
		}
		s.logger.Info("job scheduled", "name", job.Name, "cron", job.Cron, "channel", job.Channel)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Jobs returns the configured job count.
func (s *Scheduler) Jobs() int { return len(s.cfg.Jobs) }

// fire runs one job occurrence. A job still running from the previous tick
// is skipped, not queued.
func (s *Scheduler) fire(ctx context.Context, job JobConfig) {
	if _, running := s.inFlight.LoadOrStore(job.Name, struct{}{}); running {
		s.logger.Warn("job still running, skipping this tick", "name", job.Name)
		return
	}
	defer s.inFlight.Delete(job.Name)

	runID := uuid.NewString()
	logger := s.logger.With("name", job.Name, "run_id", runID)
	logger.Info("job firing")

	start := time.Now()
	text, err := s.run(ctx, job)
	if err != nil {
		logger.Error("job run failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	if err := s.deliver(ctx, job.Channel, job.ChatID, text); err != nil {
		logger.Error("job delivery failed", "err", err)
		return
	}

	logger.Info("job done", "duration_ms", time.Since(start).Milliseconds())
}
