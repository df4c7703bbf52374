package tenantstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/feature"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/pkg/cache"
	"github.com/c360/semblocks/pkg/retry"
)

// DefaultCacheTTL bounds how stale a cached tenant snapshot may be
const DefaultCacheTTL = 30 * time.Second

func enabledKey(tenant string) string  { return "tenant:" + tenant + ":features:enabled" }
func disabledKey(tenant string) string { return "tenant:" + tenant + ":features:disabled" }
func themeKey(tenant string) string    { return "tenant:" + tenant + ":theme" }

// Store serves tenant feature snapshots
type Store struct {
	rdb    redis.Cmdable
	cache  *cache.TTL[feature.TenantConfig]
	retry  retry.Config
	logger *slog.Logger
}

type options struct {
	ttl      time.Duration
	retry    retry.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	now      func() time.Time
}

// Option configures a Store
type Option func(*options)

// WithCacheTTL sets the snapshot cache TTL
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithRetry sets the retry policy for Redis reads
func WithRetry(cfg retry.Config) Option {
	return func(o *options) { o.retry = cfg }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics exports cache statistics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithClock overrides the cache clock
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a store over a Redis client. ctx bounds the cache sweeper.
func New(ctx context.Context, rdb redis.Cmdable, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, errors.WrapInvalid(errors.ErrNilDependency, "tenantstore", "New", "redis client cannot be nil")
	}

	o := options{
		ttl: DefaultCacheTTL,
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2,
			AddJitter:    true,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []cache.Option[feature.TenantConfig]{
		cache.WithMetrics[feature.TenantConfig](o.registry, "tenant_features"),
	}
	if o.now != nil {
		cacheOpts = append(cacheOpts, cache.WithClock[feature.TenantConfig](o.now))
	}
	c, err := cache.NewTTL[feature.TenantConfig](ctx, o.ttl, o.ttl, cacheOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "tenantstore", "New", "create snapshot cache")
	}

	return &Store{
		rdb:    rdb,
		cache:  c,
		retry:  o.retry,
		logger: o.logger.With("component", "tenantstore"),
	}, nil
}

func checkTenant(tenant, method string) error {
	if tenant == "" {
		return errors.WrapInvalid(errors.ErrTenantRequired, "tenantstore", method, "check tenant")
	}
	if strings.ContainsAny(tenant, ": ") {
		return errors.WrapInvalid(fmt.Errorf("%w: tenant %q", errors.ErrInvalidData, tenant),
			"tenantstore", method, "check tenant")
	}
	return nil
}

// GetTenantFeatureFlags returns the tenant's snapshot, from cache when fresh.
// The returned value is a copy the caller may keep.
func (s *Store) GetTenantFeatureFlags(ctx context.Context, tenant string) (feature.TenantConfig, error) {
	if err := checkTenant(tenant, "GetTenantFeatureFlags"); err != nil {
		return feature.TenantConfig{}, err
	}
	if cfg, ok := s.cache.Get(tenant); ok {
		return cfg.Clone(), nil
	}

	cfg, err := retry.DoWithResult(ctx, s.retry, func() (feature.TenantConfig, error) {
		return s.read(ctx, tenant)
	})
	if err != nil {
		return feature.TenantConfig{}, errors.WrapTransient(err, "tenantstore", "GetTenantFeatureFlags", "read tenant features")
	}

	if _, err := s.cache.Set(tenant, cfg); err != nil {
		s.logger.Warn("tenant snapshot not cached", "tenant", tenant, "error", err)
	}
	return cfg.Clone(), nil
}

func (s *Store) read(ctx context.Context, tenant string) (feature.TenantConfig, error) {
	var enabled, disabled *redis.StringSliceCmd
	var theme *redis.StringStringMapCmd

	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		enabled = p.SMembers(ctx, enabledKey(tenant))
		disabled = p.SMembers(ctx, disabledKey(tenant))
		theme = p.HGetAll(ctx, themeKey(tenant))
		return nil
	})
	if err != nil && !stderrors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return feature.TenantConfig{}, retry.NonRetryable(err)
		}
		return feature.TenantConfig{}, err
	}

	cfg := feature.TenantConfig{
		TenantID: tenant,
		Enabled:  feature.NewFlagSet(enabled.Val()...),
		Disabled: feature.NewFlagSet(disabled.Val()...),
	}
	if t := theme.Val(); len(t) > 0 {
		cfg.Theme = t
	}
	return cfg, nil
}

// SetFeature switches flag on or off for tenant. The flag is removed from the
// opposite set in the same transaction.
func (s *Store) SetFeature(ctx context.Context, tenant, flag string, enabled bool) error {
	if err := checkTenant(tenant, "SetFeature"); err != nil {
		return err
	}
	if flag == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: flag is empty", errors.ErrInvalidData), "tenantstore", "SetFeature", "check flag")
	}

	add, remove := enabledKey(tenant), disabledKey(tenant)
	if !enabled {
		add, remove = remove, add
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, add, flag)
		p.SRem(ctx, remove, flag)
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "tenantstore", "SetFeature", "write flag")
	}

	s.Invalidate(tenant)
	s.logger.Info("tenant feature updated", "tenant", tenant, "flag", flag, "enabled", enabled)
	return nil
}

// ClearFeature removes any explicit setting for flag, returning it to the
// gate's default.
func (s *Store) ClearFeature(ctx context.Context, tenant, flag string) error {
	if err := checkTenant(tenant, "ClearFeature"); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, enabledKey(tenant), flag)
		p.SRem(ctx, disabledKey(tenant), flag)
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "tenantstore", "ClearFeature", "remove flag")
	}
	s.Invalidate(tenant)
	return nil
}

// SetTheme merges tokens into the tenant theme hash
func (s *Store) SetTheme(ctx context.Context, tenant string, tokens map[string]string) error {
	if err := checkTenant(tenant, "SetTheme"); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	values := make(map[string]any, len(tokens))
	for k, v := range tokens {
		values[k] = v
	}
	if err := s.rdb.HSet(ctx, themeKey(tenant), values).Err(); err != nil {
		return errors.WrapTransient(err, "tenantstore", "SetTheme", "write theme")
	}
	s.Invalidate(tenant)
	return nil
}

// Invalidate drops the cached snapshot for tenant
func (s *Store) Invalidate(tenant string) {
	if _, err := s.cache.Delete(tenant); err != nil {
		s.logger.Debug("cache invalidate failed", "tenant", tenant, "error", err)
	}
}

// Ping checks Redis connectivity
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return errors.WrapTransient(err, "tenantstore", "Ping", "ping redis")
	}
	return nil
}

// Close stops the cache sweeper. The Redis client is owned by the caller.
func (s *Store) Close() error {
	return s.cache.Close()
}
