package publisher

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"arbtrack/internal/config"
	"arbtrack/internal/models"
)

// Publisher fans drift events and opportunity updates out to a Redis stream
// for downstream consumers (alerting, repricers). Publishing is best-effort:
// a failed XADD is logged and dropped, it never blocks ingestion.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	log    *zap.Logger
}

func New(cfg config.PublisherConfig, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Publisher{log: log}
	}
	return &Publisher{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		log:    log,
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// PublishDrift emits one drift event.
func (p *Publisher) PublishDrift(ctx context.Context, event *models.DriftEvent) {
	if event == nil {
		return
	}
	p.publish(ctx, map[string]any{
		"type":        "drift",
		"kind":        event.Kind,
		"marketplace": event.Marketplace,
		"external_id": event.ExternalID,
		"magnitude":   event.Magnitude.String(),
		"prior_price": event.PriorPrice.String(),
		"new_price":   event.NewPrice.String(),
		"observed_at": event.ObservedAt.UnixMilli(),
	})
}

// PublishOpportunity emits one opportunity state after an upsert or expiry.
func (p *Publisher) PublishOpportunity(ctx context.Context, opp models.Opportunity) {
	p.publish(ctx, map[string]any{
		"type":         "opportunity",
		"status":       opp.Status,
		"pair":         opp.PairKey().String(),
		"currency":     opp.Currency,
		"net_margin":   opp.NetMargin.String(),
		"margin_ratio": opp.MarginRatio.String(),
		"confidence":   opp.Confidence,
		"evaluated_at": opp.EvaluatedAt.UnixMilli(),
	})
}

func (p *Publisher) publish(ctx context.Context, values map[string]any) {
	if p == nil || p.client == nil {
		return
	}
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		p.log.Warn("stream publish failed", zap.String("stream", p.stream), zap.Error(err))
	}
}
