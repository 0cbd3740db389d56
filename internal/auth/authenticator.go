package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/config"
)

// KeyLookup resolves an API key to the device key it was issued for.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	deviceKey string
	expiresAt time.Time
}

// Identity is the caller behind a validated key. Static keys are not bound
// to a device and may submit frames for any device.
type Identity struct {
	DeviceKey string
	Static    bool
}

type Authenticator struct {
	localCache sync.Map
	lookup     KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthenticator(cfg config.AuthConfig, lookup KeyLookup, logger *zap.Logger) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.StaticKeys))
	for _, k := range cfg.StaticKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		lookup:     lookup,
		ttl:        cfg.CacheTTL,
		staticKeys: staticKeys,
		logger:     logger,
		now:        time.Now,
	}
}

// Validate checks the key against static config, the in-memory cache and
// finally the key store.
func (a *Authenticator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}

	if a.staticKeys[apiKey] {
		return Identity{Static: true}, true
	}

	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if a.now().Before(entry.expiresAt) {
			return Identity{DeviceKey: entry.deviceKey}, true
		}
		a.localCache.Delete(apiKey)
	}

	deviceKey, err := a.lookup.GetAPIKey(ctx, apiKey)
	if err != nil {
		a.logger.Warn("api key lookup failed", zap.Error(err))
		return Identity{}, false
	}
	if deviceKey == "" {
		return Identity{}, false
	}

	a.localCache.Store(apiKey, cacheEntry{
		deviceKey: deviceKey,
		expiresAt: a.now().Add(a.ttl),
	})

	return Identity{DeviceKey: deviceKey}, true
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
