// Package notify publishes newly indexed contract events to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"researchdao/internal/model"
)

// DefaultChannelPrefix namespaces the pub/sub channels.
const DefaultChannelPrefix = "researchdao"

// Notifier receives every event the indexer stores for the first time.
type Notifier interface {
	Notify(ctx context.Context, event model.IndexedEvent) error
}

// Nop drops all notifications.
type Nop struct{}

func (Nop) Notify(context.Context, model.IndexedEvent) error { return nil }

// RedisConfig configures the redis publisher.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// Redis publishes events on "<prefix>:events" and "<prefix>:events:<name>".
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis dials cfg.Addr and pings it before returning, so a bad address
// fails at startup rather than on the first event.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.String("prefix", prefix))
	return NewRedisWithClient(rdb, prefix, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

// Channels returns the channels an event is published on.
func (r *Redis) Channels(event model.IndexedEvent) []string {
	base := r.prefix + ":events"
	return []string{base, base + ":" + strings.ToLower(event.EventName)}
}

// Notify publishes the event as JSON. Failures are returned for the caller
// to log; they never roll back the stored event.
func (r *Redis) Notify(ctx context.Context, event model.IndexedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, channel := range r.Channels(event) {
		if err := r.client.Publish(ctx, channel, body).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", channel, err)
		}
	}
	r.logger.Debug("event published", zap.String("event", event.EventName), zap.String("tx", event.TxHash))
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
