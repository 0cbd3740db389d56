package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/notify"
	"axle-monitor/core/internal/store"
	"axle-monitor/core/internal/transport/ws"
)

// stores are the Postgres and Redis handles every command needs.
type stores struct {
	pool    *pgxpool.Pool
	frames  *store.FrameStore
	records *store.RecordStore
	redis   *store.RedisStore
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, withRedis bool) (*stores, error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &stores{
		pool:    pool,
		frames:  store.NewFrameStore(pool, cfg.Database.QueryTimeout),
		records: store.NewRecordStore(store.OpenDB(pool), cfg.Database.QueryTimeout, logger),
	}
	if withRedis {
		s.redis, err = store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *stores) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.pool.Close()
}

// newBridge builds the notification bridge over the configured push
// transport. hub is non-nil only for the ws transport.
func newBridge(cfg *config.Config, s *stores, m *metrics.Metrics, logger *zap.Logger) (*notify.Bridge, *ws.Hub, func(), error) {
	var (
		push    notify.Pusher
		hub     *ws.Hub
		cleanup = func() {}
	)

	switch cfg.Notification.Push {
	case "mqtt":
		client, err := notify.DialMQTT(cfg.Notification)
		if err != nil {
			return nil, nil, nil, err
		}
		push = notify.NewMQTTPusher(client)
		cleanup = func() { client.Disconnect(250) }
	case "ws":
		hub = ws.NewHub(logger)
		push = hub
		cleanup = hub.Close
	case "redis", "":
		push = notify.NewRedisPusher(s.redis)
	default:
		return nil, nil, nil, fmt.Errorf("unknown push transport %q", cfg.Notification.Push)
	}

	var mailer notify.Mailer
	if cfg.Notification.EmailBaseURL != "" {
		sender, err := notify.NewEmailSender(cfg.Notification)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		mailer = sender
	}

	bridge := notify.NewBridge(push, mailer, s.redis, notify.BridgeConfig{
		SendTimeout: cfg.Notification.SendTimeout,
		DedupTTL:    cfg.Notification.DedupTTL,
	}, m, logger)

	logger.Info("notification bridge ready",
		zap.String("push", push.Name()),
		zap.Bool("email", mailer != nil))
	return bridge, hub, cleanup, nil
}
