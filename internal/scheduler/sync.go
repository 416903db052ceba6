package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

// RunFunc performs one full sync run.
type RunFunc func(ctx context.Context) (*models.SyncReport, error)

type SyncSchedulerConfig struct {
	At         string         // daily run time, HH:MM
	Location   *time.Location // defaults to UTC
	RunOnStart bool
	RunTimeout time.Duration // zero means no deadline
	OnReport   func(r *models.SyncReport, err error)
}

// SyncScheduler triggers a sync run once a day.
type SyncScheduler struct {
	run    RunFunc
	cfg    SyncSchedulerConfig
	logger *zap.Logger

	mu      sync.Mutex
	sched   *gocron.Scheduler
	job     *gocron.Job
	running bool
}

func NewSyncScheduler(run RunFunc, cfg SyncSchedulerConfig, logger *zap.Logger) *SyncScheduler {
	if cfg.At == "" {
		cfg.At = "16:30"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{run: run, cfg: cfg, logger: logger.Named("scheduler")}
}

func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Info("already running")
		return nil
	}

	sched := gocron.NewScheduler(s.cfg.Location)
	sched.SingletonModeAll()
	job, err := sched.Every(1).Day().At(s.cfg.At).Tag("sync").Do(s.tick)
	if err != nil {
		return fmt.Errorf("schedule daily sync at %s: %w", s.cfg.At, err)
	}
	sched.StartAsync()

	s.sched, s.job, s.running = sched, job, true

	if s.cfg.RunOnStart {
		go s.tick()
	}

	s.logger.Info("started", zap.String("at", s.cfg.At), zap.Stringer("location", s.cfg.Location), zap.Time("next_run", job.NextRun()))
	return nil
}

func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.sched.Stop()
	s.running = false
	s.logger.Info("stopped")
}

func (s *SyncScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun reports when the daily job fires next; zero when stopped.
func (s *SyncScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// RunNow triggers a run outside the normal schedule, under the same
// RunTimeout as scheduled runs.
func (s *SyncScheduler) RunNow(ctx context.Context) (*models.SyncReport, error) {
	s.logger.Info("manual sync triggered")
	return s.execute(ctx)
}

func (s *SyncScheduler) tick() {
	if _, err := s.execute(context.Background()); err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	}
}

func (s *SyncScheduler) execute(ctx context.Context) (*models.SyncReport, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	report, err := s.run(ctx)
	if s.cfg.OnReport != nil {
		s.cfg.OnReport(report, err)
	}
	return report, err
}
