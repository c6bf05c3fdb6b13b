package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"arbtrack/internal/config"
	"arbtrack/internal/fees"
	"arbtrack/internal/models"
	"arbtrack/internal/repository"
)

// RateSyncService polls the exchange-rate endpoint and persists immutable
// snapshots. Detection passes never call the endpoint directly; they pin the
// newest stored snapshot.
type RateSyncService struct {
	Repo   repository.Repository
	Cfg    config.FXConfig
	HTTP   *http.Client
	Logger *zap.Logger
}

type ratePayload struct {
	Base  string                 `json:"base"`
	Rates map[string]json.Number `json:"rates"`
}

// Refresh fetches the current rate table and stores it as a new snapshot.
// With no endpoint configured it stores an identity snapshot, which keeps
// single-currency deployments working without an FX provider.
func (s *RateSyncService) Refresh(ctx context.Context) (*models.RateSnapshot, error) {
	base := strings.ToUpper(strings.TrimSpace(s.Cfg.Base))
	if base == "" {
		base = "USD"
	}

	rates := map[string]string{base: "1"}
	if strings.TrimSpace(s.Cfg.Endpoint) != "" {
		fetched, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if fetched.Base != "" {
			base = strings.ToUpper(fetched.Base)
		}
		for code, val := range fetched.Rates {
			if _, err := decimal.NewFromString(val.String()); err != nil {
				return nil, fmt.Errorf("fx: rate %s: %w", code, err)
			}
			rates[strings.ToUpper(code)] = val.String()
		}
		rates[base] = "1"
	}

	raw, err := json.Marshal(rates)
	if err != nil {
		return nil, err
	}
	snap := &models.RateSnapshot{
		ID:        uuid.NewString(),
		Base:      base,
		Rates:     datatypes.JSON(raw),
		FetchedAt: time.Now().UTC(),
	}
	if err := s.Repo.InsertRateSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("rate snapshot stored",
			zap.String("id", snap.ID),
			zap.String("base", base),
			zap.Int("rates", len(rates)))
	}
	return snap, nil
}

func (s *RateSyncService) fetch(ctx context.Context) (ratePayload, error) {
	timeout := s.Cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Cfg.Endpoint, nil)
	if err != nil {
		return ratePayload{}, err
	}
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return ratePayload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ratePayload{}, fmt.Errorf("fx: endpoint returned %d", resp.StatusCode)
	}

	var payload ratePayload
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return ratePayload{}, fmt.Errorf("fx: decode response: %w", err)
	}
	return payload, nil
}

// PinnedSnapshot loads the newest stored snapshot for a pass. fresh is false
// when nothing is stored or the snapshot has outlived fx.max_age. A snapshot
// past its max age is marked stale, so cross-currency pairs fail with a
// StaleRateError while same-currency pairs keep flowing; there is no fallback
// to outdated rates.
func (s *RateSyncService) PinnedSnapshot(ctx context.Context, now time.Time) (fees.RateSnapshot, bool, error) {
	row, err := s.Repo.GetLatestRateSnapshot(ctx)
	if err != nil {
		return fees.RateSnapshot{}, false, err
	}
	base := strings.ToUpper(strings.TrimSpace(s.Cfg.Base))
	if base == "" {
		base = "USD"
	}
	if row == nil {
		return fees.RateSnapshot{
			Base:  base,
			Rates: map[string]decimal.Decimal{base: decimal.NewFromInt(1)},
		}, false, nil
	}
	snap, err := fees.SnapshotFromModel(row)
	if err != nil {
		return fees.RateSnapshot{}, false, err
	}
	fresh := snap.Fresh(now, s.Cfg.MaxAge)
	snap.Stale = !fresh
	return snap, fresh, nil
}
