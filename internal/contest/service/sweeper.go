package service

import (
	"context"
	"fmt"
	"time"

	"codearena/pkg/utils/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultSweepSchedule = "@every 1m"

// SweeperConfig schedules the contest status sweep.
type SweeperConfig struct {
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StatusSweeper persists time-driven contest status changes on a cron schedule.
type StatusSweeper struct {
	service *ContestService
	config  SweeperConfig
	cron    *cron.Cron
}

func NewStatusSweeper(service *ContestService, cfg SweeperConfig) *StatusSweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSweepSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &StatusSweeper{
		service: service,
		config:  cfg,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (w *StatusSweeper) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule contest sweep failed: %w", err)
	}
	w.cron.Start()
	logger.Info(ctx, "contest status sweeper started", zap.String("schedule", w.config.Schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (w *StatusSweeper) Stop() {
	<-w.cron.Stop().Done()
}

func (w *StatusSweeper) RunOnce(ctx context.Context) {
	ctxRun, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()
	updated, err := w.service.SweepStatuses(ctxRun)
	if err != nil {
		logger.Error(ctx, "contest status sweep failed", zap.Error(err))
		return
	}
	if updated > 0 {
		logger.Info(ctx, "contest statuses updated", zap.Int("count", updated))
	}
}
