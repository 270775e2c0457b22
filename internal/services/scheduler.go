package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"agrimarket-backend/internal/models"
)

// HarvestSweeper opens listings for crops whose harvest date has arrived
type HarvestSweeper interface {
	Today() models.Date
	SweepHarvestReady(ctx context.Context, today models.Date) ([]*models.Transaction, error)
}

// HarvestScheduler runs the harvest sweep on a fixed interval
type HarvestScheduler struct {
	sweeper  HarvestSweeper
	logger   *zap.Logger
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHarvestScheduler creates a new harvest scheduler
func NewHarvestScheduler(sweeper HarvestSweeper, logger *zap.Logger) *HarvestScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HarvestScheduler{
		sweeper:  sweeper,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once immediately, then on every tick of interval
func (s *HarvestScheduler) Start(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	s.logger.Info("harvest scheduler started", zap.Duration("interval", interval))

	go func() {
		defer close(s.done)

		s.RunOnce(context.Background())
		for {
			select {
			case <-s.ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopChan:
				s.logger.Info("harvest scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for an in-flight sweep to finish
func (s *HarvestScheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker == nil {
			return
		}
		s.ticker.Stop()
		close(s.stopChan)
		<-s.done
	})
}

// RunOnce sweeps for the current day and returns the listings it opened
func (s *HarvestScheduler) RunOnce(ctx context.Context) []*models.Transaction {
	today := s.sweeper.Today()
	created, err := s.sweeper.SweepHarvestReady(ctx, today)
	if err != nil {
		s.logger.Error("harvest sweep failed", zap.String("date", today.String()), zap.Error(err))
		return nil
	}
	return created
}
