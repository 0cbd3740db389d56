package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"axle-monitor/core/internal/config"
	"axle-monitor/core/internal/domain"
)

type RedisStore struct {
	client   *redis.Client
	stateTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w: %v", domain.ErrUpstreamUnavailable, err)
	}

	return NewRedisStoreFromClient(client, cfg.StateTTL), nil
}

func NewRedisStoreFromClient(client *redis.Client, stateTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, stateTTL: stateTTL}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func authKey(apiKey string) string { return "device:auth:" + apiKey }

func stateKey(deviceKey string) string { return "device:" + deviceKey + ":state" }

func dedupKey(key string) string { return "alert:dedup:" + key }

// TelemetryChannel is the pub/sub channel carrying a device's live state.
func TelemetryChannel(deviceKey string) string { return "device:" + deviceKey + ":telemetry" }

// GetAPIKey resolves an API key to the device key it was issued for. An
// unknown key yields "".
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	val, err := r.client.Get(ctx, authKey(apiKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}

func (r *RedisStore) SetAPIKey(ctx context.Context, apiKey, deviceKey string) error {
	return r.client.Set(ctx, authKey(apiKey), deviceKey, 0).Err()
}

// ClaimWarning marks a warning key as surfaced. It returns false when
// another scan already claimed it within ttl.
func (r *RedisStore) ClaimWarning(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) ReleaseWarning(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, dedupKey(key)).Err(); err != nil {
		return fmt.Errorf("dedup release failed: %w", err)
	}
	return nil
}

// SaveDeviceState stores the device's latest system state and publishes it
// on the device's telemetry channel.
func (r *RedisStore) SaveDeviceState(ctx context.Context, st domain.DeviceState) error {
	stateJSON, err := json.Marshal(st.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	pubPayload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	key := stateKey(st.DeviceKey)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"train_id":    st.TrainID,
		"received_at": st.ReceivedAt.UnixMilli(),
		"state":       stateJSON,
	})
	if r.stateTTL > 0 {
		pipe.Expire(ctx, key, r.stateTTL)
	}
	pipe.Publish(ctx, TelemetryChannel(st.DeviceKey), pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// DeviceState returns the stored state, or domain.ErrNotFound when the
// device has not reported within the state TTL.
func (r *RedisStore) DeviceState(ctx context.Context, deviceKey string) (*domain.DeviceState, error) {
	fields, err := r.client.HGetAll(ctx, stateKey(deviceKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get state failed: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("state of %s: %w", deviceKey, domain.ErrNotFound)
	}

	out := &domain.DeviceState{DeviceKey: deviceKey, TrainID: fields["train_id"]}
	if ms, err := strconv.ParseInt(fields["received_at"], 10, 64); err == nil {
		out.ReceivedAt = time.UnixMilli(ms).UTC()
	}
	if raw := fields["state"]; raw != "" && raw != "null" {
		out.State = &domain.SystemState{}
		if err := json.Unmarshal([]byte(raw), out.State); err != nil {
			return nil, fmt.Errorf("decode state of %s: %w", deviceKey, err)
		}
	}
	return out, nil
}

func (r *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}
