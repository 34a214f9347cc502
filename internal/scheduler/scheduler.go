// Package scheduler drives the periodic processing passes: the per-minute
// due-notification sweep and the once-daily snapshot.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"reminder-service/internal/logging"
)

// Orchestrator is the slice of the reminder orchestrator the scheduler
// drives.
type Orchestrator interface {
	ProcessScheduledNotifications(ctx context.Context, limit int) (int, error)
	CreateRenewalReminders(ctx context.Context) (int, error)
}

// Snapshotter builds the daily analytics snapshot.
type Snapshotter interface {
	CreateDailySnapshot(ctx context.Context, day time.Time) error
}

// Config holds the cron specs and batch size.
type Config struct {
	ProcessSpec  string
	SnapshotSpec string
	BatchLimit   int
}

// Scheduler runs the cron entries. Two processing passes never overlap: a
// tick arriving while one runs is skipped, not queued. A missed tick is
// acceptable; concurrent mutation of notification status is not.
type Scheduler struct {
	cron      *cron.Cron
	orch      Orchestrator
	analytics Snapshotter
	cfg       Config
	logger    *logging.Logger

	processing atomic.Bool
	now        func() time.Time
}

func New(cfg Config, orch Orchestrator, analytics Snapshotter, logger *logging.Logger) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	return &Scheduler{
		cron:      cron.New(),
		orch:      orch,
		analytics: analytics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the cron entries and launches the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ProcessSpec, s.RunProcessPass); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.SnapshotSpec, s.RunDailyPass); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Scheduler started: process %q, snapshot %q", s.cfg.ProcessSpec, s.cfg.SnapshotSpec)
	return nil
}

// Stop halts the cron and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Infof("Scheduler stopped")
}

// RunProcessPass performs one due-notification sweep, short-circuiting if a
// previous pass is still running.
func (s *Scheduler) RunProcessPass() {
	if !s.processing.CompareAndSwap(false, true) {
		s.logger.Warnf("Previous processing pass still running, skipping tick")
		return
	}
	defer s.processing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
	defer cancel()

	sent, err := s.orch.ProcessScheduledNotifications(ctx, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Errorf("Processing pass failed: %v", err)
		return
	}
	if sent > 0 {
		s.logger.Infof("Processing pass sent %d notifications", sent)
	}
}

// RunDailyPass snapshots the previous day and creates upcoming renewal
// reminders.
func (s *Scheduler) RunDailyPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	yesterday := s.now().AddDate(0, 0, -1)
	if err := s.analytics.CreateDailySnapshot(ctx, yesterday); err != nil {
		s.logger.Errorf("Daily snapshot failed: %v", err)
	}

	created, err := s.orch.CreateRenewalReminders(ctx)
	if err != nil {
		s.logger.Errorf("Renewal reminder pass failed: %v", err)
		return
	}
	if created > 0 {
		s.logger.Infof("Created %d renewal reminders", created)
	}
}
