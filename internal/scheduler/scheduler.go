// Package scheduler runs the background refresh job that keeps the default
// organization list warm.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"

	"github.com/reliefmatch/reliefmatch/internal/config"
	"github.com/reliefmatch/reliefmatch/internal/orgs"
)

// Scheduler manages the periodic organization cache refresh using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	orgs      *orgs.Service
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler that refetches the default organization
// list on the configured cron schedule.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, orgService *orgs.Service) (*Scheduler, error) {
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		cfg:       cfg,
		orgs:      orgService,
	}, nil
}

// Start registers the refresh job and starts the scheduler's internal ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.cfg == nil || !s.cfg.Enabled || s.cfg.RefreshSchedule == "" {
		s.logger.Info("Organization refresh job disabled.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.cfg.RefreshSchedule, false),
		gocron.NewTask(s.refreshOrganizations),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule organization refresh job: %w", err)
	}

	s.logger.Info("Organization refresh job scheduled", "schedule", s.cfg.RefreshSchedule)
	s.scheduler.Start()
	s.running = true
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) refreshOrganizations() {
	ctx := context.Background()
	s.logger.Info("Refreshing default organization list")

	charities := s.orgs.Refetch(ctx, "")
	if errMsg := s.orgs.LastError(); errMsg != "" {
		s.logger.Warn("Organization refresh fell back to bundled dataset", "error", errMsg, "count", len(charities))
		return
	}
	s.logger.Info("Organization refresh completed", "count", len(charities))
}
