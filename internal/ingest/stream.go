package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"arbtrack/internal/config"
	"arbtrack/internal/service"
)

// envelope is one message from the scraper feed. Either a single payload or a
// batch may be set.
type envelope struct {
	Marketplace string            `json:"marketplace"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Payloads    []json.RawMessage `json:"payloads,omitempty"`
}

// FeedConsumer maintains a websocket subscription to the scraper feed and
// hands every observation batch to the intake path. It reconnects forever
// until the context dies.
type FeedConsumer struct {
	Intake *service.IntakeService
	Cfg    config.FeedConfig
	Logger *zap.Logger
}

func (f *FeedConsumer) Run(ctx context.Context) error {
	if f == nil || f.Cfg.URL == "" {
		return fmt.Errorf("feed url not configured")
	}
	delay := f.Cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, f.Cfg.URL, nil)
		if err != nil {
			f.Logger.Warn("feed connect failed", zap.String("url", f.Cfg.URL), zap.Error(err))
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		conn.SetReadLimit(1 << 20)
		f.Logger.Info("feed connected", zap.String("url", f.Cfg.URL))

		err = f.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if errors.Is(err, context.Canceled) {
			return err
		}
		f.Logger.Warn("feed disconnected", zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (f *FeedConsumer) consume(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.Logger.Warn("feed message dropped", zap.Error(err))
			continue
		}
		payloads := env.Payloads
		if len(payloads) == 0 && len(env.Payload) > 0 {
			payloads = []json.RawMessage{env.Payload}
		}
		if env.Marketplace == "" || len(payloads) == 0 {
			continue
		}
		result, err := f.Intake.IngestBatch(ctx, env.Marketplace, payloads)
		if err != nil {
			f.Logger.Warn("feed batch failed", zap.String("marketplace", env.Marketplace), zap.Error(err))
			continue
		}
		f.Logger.Debug("feed batch ingested",
			zap.String("marketplace", env.Marketplace),
			zap.Int("accepted", result.Accepted),
			zap.Int("discarded", result.Discarded),
			zap.Int("rejected", result.Rejected),
			zap.Int("events", result.Events))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
