package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arbtrack/internal/config"
	"arbtrack/internal/detector"
	"arbtrack/internal/models"
	"arbtrack/internal/opportunity"
	"arbtrack/internal/publisher"
	"arbtrack/internal/repository"
)

// DetectionService drives one full detection pass: pin rates, load the source
// and target listing sets, score every pairing and fold the qualifiers into
// the opportunity table. Each pass leaves a DetectionRun row behind.
type DetectionService struct {
	Repo          repository.Repository
	Rates         *RateSyncService
	Detector      *detector.Detector
	Opportunities *opportunity.Store
	Publisher     *publisher.Publisher
	Cfg           config.DetectorConfig
	Logger        *zap.Logger
}

// RunPass executes one detection pass. A pass that overruns its time budget
// stops upserting and records budget_exceeded; what was already written
// stays.
func (s *DetectionService) RunPass(ctx context.Context) (*models.DetectionRun, error) {
	now := time.Now()
	run := &models.DetectionRun{
		ID:        uuid.NewString(),
		Status:    models.RunCompleted,
		StartedAt: now.UTC(),
	}
	if err := s.Repo.InsertDetectionRun(ctx, run); err != nil {
		return nil, err
	}

	if s.Cfg.PassBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.PassBudget)
		defer cancel()
	}

	snapshot, fresh, err := s.Rates.PinnedSnapshot(ctx, now)
	if err != nil {
		return s.finish(run, models.RunFailed, detector.Stats{}, 0, err)
	}
	if snapshot.ID != "" {
		run.RateSnapshotID = &snapshot.ID
	}
	if !fresh {
		s.Logger.Warn("rate snapshot missing or past max age",
			zap.String("run", run.ID),
			zap.Time("fetched_at", snapshot.FetchedAt))
	}

	sources, err := s.Repo.ListListingsByMarketplaces(ctx, s.Cfg.SourceMarketplaces, s.Cfg.BatchLimit)
	if err != nil {
		return s.finish(run, models.RunFailed, detector.Stats{}, 0, err)
	}
	targets, err := s.Repo.ListListingsByMarketplaces(ctx, s.Cfg.TargetMarketplaces, s.Cfg.BatchLimit)
	if err != nil {
		return s.finish(run, models.RunFailed, detector.Stats{}, 0, err)
	}

	seq, stats := s.Detector.Detect(sources, targets, snapshot, now)

	status := models.RunCompleted
	upserted := 0
	for opp := range seq {
		if ctx.Err() != nil {
			status = models.RunBudgetHit
			break
		}
		opp.DetectionRunID = &run.ID
		merged, created, err := s.Opportunities.Upsert(ctx, opp)
		if err != nil {
			// One bad pair never sinks the pass.
			s.Logger.Warn("opportunity upsert failed",
				zap.String("pair", opp.PairKey().String()),
				zap.Error(err))
			continue
		}
		upserted++
		if created || merged.Status == models.OpportunityActive {
			s.Publisher.PublishOpportunity(ctx, merged)
		}
	}

	// Cross-currency pairs dropped for want of rates taint the run; a
	// fresh snapshot that simply was not needed does not.
	if status == models.RunCompleted && stats.StaleRates > 0 {
		status = models.RunRatesStale
	}
	return s.finish(run, status, stats, upserted, nil)
}

func (s *DetectionService) finish(run *models.DetectionRun, status string, stats detector.Stats, upserted int, cause error) (*models.DetectionRun, error) {
	finished := time.Now().UTC()
	run.Status = status
	run.PairsConsidered = stats.Considered
	run.PairsQualified = stats.Qualified
	run.PairsSkipped = stats.Skipped
	run.OpportunitiesUps = upserted
	run.FinishedAt = &finished

	updates := map[string]any{
		"status":                 status,
		"rate_snapshot_id":       run.RateSnapshotID,
		"pairs_considered":       stats.Considered,
		"pairs_qualified":        stats.Qualified,
		"pairs_skipped":          stats.Skipped,
		"opportunities_upserted": upserted,
		"finished_at":            &finished,
	}
	if err := s.Repo.UpdateDetectionRun(context.Background(), run.ID, updates); err != nil {
		s.Logger.Warn("detection run update failed", zap.String("run", run.ID), zap.Error(err))
	}

	s.Logger.Info("detection pass finished",
		zap.String("run", run.ID),
		zap.String("status", status),
		zap.Int("considered", stats.Considered),
		zap.Int("qualified", stats.Qualified),
		zap.Int("skipped", stats.Skipped),
		zap.Int("upserted", upserted),
		zap.Error(cause))
	return run, cause
}

// ExpireStale sweeps opportunities that no pass has re-confirmed within the
// staleness window.
func (s *DetectionService) ExpireStale(ctx context.Context) (int64, error) {
	window := s.Cfg.StalenessWindow
	if window <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-window)
	n, err := s.Opportunities.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Logger.Info("expired stale opportunities", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
