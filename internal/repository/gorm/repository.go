package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arbtrack/internal/models"
	"arbtrack/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// --- Listings ---------------------------------------------------------------

func (s *Store) GetListing(ctx context.Context, id models.ListingIdentity) (*models.Listing, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Listing
	err := s.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("marketplace = ?", id.Marketplace).
		Where("external_id = ?", id.ExternalID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertListing(ctx context.Context, item *models.Listing) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "marketplace"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"price",
			"shipping_cost",
			"currency",
			"stock_level",
			"url",
			"observed_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListListings(ctx context.Context, params repository.ListListingsParams) ([]models.Listing, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Listing{})
	if params.Marketplace != nil && strings.TrimSpace(*params.Marketplace) != "" {
		query = query.Where("marketplace = ?", strings.TrimSpace(*params.Marketplace))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "observed_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Listing
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountListings(ctx context.Context, params repository.ListListingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Listing{})
	if params.Marketplace != nil && strings.TrimSpace(*params.Marketplace) != "" {
		query = query.Where("marketplace = ?", strings.TrimSpace(*params.Marketplace))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListListingsByMarketplaces(ctx context.Context, marketplaces []string, limit int) ([]models.Listing, error) {
	if s == nil || s.db == nil || len(marketplaces) == 0 {
		return nil, nil
	}
	limit = normalizeLimit(limit, 500)
	var items []models.Listing
	err := s.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("marketplace IN ?", marketplaces).
		Order("observed_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Price history ----------------------------------------------------------

func (s *Store) InsertPriceHistory(ctx context.Context, item *models.PriceHistoryEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPriceHistory(ctx context.Context, params repository.ListHistoryParams) ([]models.PriceHistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.PriceHistoryEntry{}).
		Where("marketplace = ?", params.Marketplace).
		Where("external_id = ?", params.ExternalID)
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("observed_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.PriceHistoryEntry
	if err := query.Order("observed_at asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeletePriceHistoryBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("observed_at < ?", before).
		Delete(&models.PriceHistoryEntry{})
	return res.RowsAffected, res.Error
}

// --- Drift events -----------------------------------------------------------

func (s *Store) InsertDriftEvent(ctx context.Context, item *models.DriftEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListDriftEvents(ctx context.Context, params repository.ListDriftEventsParams) ([]models.DriftEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DriftEvent{})
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.Marketplace != nil && strings.TrimSpace(*params.Marketplace) != "" {
		query = query.Where("marketplace = ?", strings.TrimSpace(*params.Marketplace))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("observed_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.DriftEvent
	if err := query.Order("observed_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Opportunities ----------------------------------------------------------

func (s *Store) GetOpportunityByID(ctx context.Context, id uint64) (*models.Opportunity, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Opportunity
	err := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOpportunityByPair(ctx context.Context, pair models.OpportunityPair) (*models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Opportunity
	err := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("source_marketplace = ?", pair.Source.Marketplace).
		Where("source_external_id = ?", pair.Source.ExternalID).
		Where("target_marketplace = ?", pair.Target.Marketplace).
		Where("target_external_id = ?", pair.Target.ExternalID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertOpportunity(ctx context.Context, item *models.Opportunity) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateOpportunity(ctx context.Context, id uint64, updates map[string]any) error {
	if s == nil || s.db == nil || id == 0 || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) UpdateOpportunityStatus(ctx context.Context, id uint64, status string) error {
	if s == nil || s.db == nil || id == 0 || strings.TrimSpace(status) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": strings.TrimSpace(status), "updated_at": time.Now().UTC()}).
		Error
}

func (s *Store) ListOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) ([]models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := opportunityFilter(s.db.WithContext(ctx).Model(&models.Opportunity{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "net_margin")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Opportunity
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOpportunities(ctx context.Context, params repository.ListOpportunitiesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := opportunityFilter(s.db.WithContext(ctx).Model(&models.Opportunity{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func opportunityFilter(query *gorm.DB, params repository.ListOpportunitiesParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.SourceMarketplace != nil && strings.TrimSpace(*params.SourceMarketplace) != "" {
		query = query.Where("source_marketplace = ?", strings.TrimSpace(*params.SourceMarketplace))
	}
	if params.TargetMarketplace != nil && strings.TrimSpace(*params.TargetMarketplace) != "" {
		query = query.Where("target_marketplace = ?", strings.TrimSpace(*params.TargetMarketplace))
	}
	if params.MinNetMargin != nil {
		query = query.Where("net_margin >= ?", *params.MinNetMargin)
	}
	if params.MinConfidence != nil {
		query = query.Where("confidence >= ?", *params.MinConfidence)
	}
	return query
}

func (s *Store) ListOpenOpportunitiesByListing(ctx context.Context, id models.ListingIdentity) ([]models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Opportunity
	err := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("status IN ?", []string{models.OpportunityCandidate, models.OpportunityActive}).
		Where(
			s.db.Where("source_marketplace = ? AND source_external_id = ?", id.Marketplace, id.ExternalID).
				Or("target_marketplace = ? AND target_external_id = ?", id.Marketplace, id.ExternalID),
		).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ExpireOpportunitiesEvaluatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil || cutoff.IsZero() {
		return 0, nil
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Opportunity{}).
		Where("status IN ?", []string{models.OpportunityCandidate, models.OpportunityActive}).
		Where("evaluated_at < ?", cutoff).
		Updates(map[string]any{"status": models.OpportunityExpired, "expired_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}

// --- Exchange-rate snapshots ------------------------------------------------

func (s *Store) InsertRateSnapshot(ctx context.Context, item *models.RateSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetLatestRateSnapshot(ctx context.Context) (*models.RateSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.RateSnapshot
	err := s.db.WithContext(ctx).
		Model(&models.RateSnapshot{}).
		Order("fetched_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Detection runs ---------------------------------------------------------

func (s *Store) InsertDetectionRun(ctx context.Context, item *models.DetectionRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateDetectionRun(ctx context.Context, id string, updates map[string]any) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" || len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.DetectionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) ListDetectionRuns(ctx context.Context, params repository.ListDetectionRunsParams) ([]models.DetectionRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DetectionRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.DetectionRun
	if err := query.Order("started_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

var orderableColumns = map[string]bool{
	"observed_at": true,
	"created_at":  true,
	"updated_at":  true,
	"net_margin":  true,
	"confidence":  true,
	"price":       true,
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if col == "" || !orderableColumns[col] {
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
