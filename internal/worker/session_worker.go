package worker

import (
	"context"
	"fmt"
	"time"

	"taskSync/internal/logger"

	"go.uber.org/zap"
)

// SessionReaper - то, что умеет удалять истёкшие сессии
type SessionReaper interface {
	ReapExpired(ctx context.Context) (int, error)
}

type SessionWorker struct {
	reaper   SessionReaper
	interval time.Duration
}

func NewSessionWorker(reaper SessionReaper, interval *time.Duration) *SessionWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = 10 * time.Minute
	} else {
		intervalToSet = *interval
	}

	return &SessionWorker{
		reaper:   reaper,
		interval: intervalToSet,
	}
}

func (w *SessionWorker) Interval() time.Duration {
	return w.interval
}

func (w *SessionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: Фоновая очистка сессий", zap.Time("started_at", time.Now()))
			if _, err := w.Check(ctx); err != nil {
				logger.Warn("Worker: Ошибка очистки сессий", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Worker: Фоновая очистка сессий останавливается")
			return
		}
	}
}

func (w *SessionWorker) Check(ctx context.Context) (int, error) {
	start := time.Now()

	removed, err := w.reaper.ReapExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("удаление истёкших сессий: %w", err)
	}

	logger.Info(
		"Worker: Завершение очистки сессий",
		zap.Duration("ms", time.Since(start)),
		zap.Int("removed", removed),
	)
	return removed, nil
}
