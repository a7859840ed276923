package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
)

type SnapshotRunner interface {
	RunSnapshot(ctx context.Context) (*SnapshotReport, error)
}

// Scheduler triggers staging snapshot imports on a cron spec. A tick that
// fires while the previous import is still running is skipped.
type Scheduler struct {
	cfg     config.SchedulerConfig
	runner  SnapshotRunner
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, runner SnapshotRunner) *Scheduler {
	log := cronLogger{}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(cron.WithLogger(log), cron.WithChain(cron.SkipIfStillRunning(log))),
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSnapshot)
	if err != nil {
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop waits for a running import to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSnapshot() {
	logger.Log.Info("Triggering scheduled snapshot import")

	_, err := s.runner.RunSnapshot(context.Background())
	switch {
	case errors.Is(err, ErrSnapshotRunning):
		logger.Log.Info("Snapshot import already running, skipping scheduled run")
	case err != nil:
		logger.Log.Error("Scheduled snapshot import failed", zap.Error(err))
	}
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
