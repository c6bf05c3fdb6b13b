package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbtrack/internal/config"
	"arbtrack/internal/repository"
)

// RetentionService trims the append-only price history so the drift timeline
// does not grow without bound.
type RetentionService struct {
	Repo   repository.Repository
	Cfg    config.RetentionConfig
	Logger *zap.Logger
}

func (s *RetentionService) SweepHistory(ctx context.Context) (int64, error) {
	if s.Cfg.HistoryWindow <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.Cfg.HistoryWindow)
	n, err := s.Repo.DeletePriceHistoryBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.Logger != nil {
		s.Logger.Info("trimmed price history", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
