package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/c360/semblocks/errors"
)

// Config represents the complete process configuration
type Config struct {
	Version   string          `json:"version,omitempty"`
	Service   ServiceConfig   `json:"service"`
	NATS      NATSConfig      `json:"nats"`
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	Render    RenderConfig    `json:"render"`
	Admission AdmissionConfig `json:"admission"`
	Features  FeaturesConfig  `json:"features"`
	Tenants   TenantsConfig   `json:"tenants"`
	HTTP      HTTPConfig      `json:"http"`
}

// ServiceConfig identifies the running process in logs and metrics
type ServiceConfig struct {
	Name        string `json:"name"`
	Environment string `json:"environment,omitempty"`
}

// NATSConfig defines NATS connection settings for the page store
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
	PageBucket    string   `json:"page_bucket,omitempty"`
}

// PostgresConfig defines the custom component store connection
type PostgresConfig struct {
	DSN             string   `json:"dsn,omitempty"`
	MaxOpenConns    int      `json:"max_open_conns,omitempty"`
	MaxIdleConns    int      `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime,omitempty"`
}

// RedisConfig defines the tenant feature store connection
type RedisConfig struct {
	Addr     string   `json:"addr,omitempty"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db,omitempty"`
	CacheTTL Duration `json:"cache_ttl,omitempty"`
}

// RenderConfig tunes the render dispatcher
type RenderConfig struct {
	DeferredWorkers int      `json:"deferred_workers"`
	QueueSize       int      `json:"queue_size"`
	DeferredTimeout Duration `json:"deferred_timeout"`
}

// AdmissionConfig tunes custom component admission. RateLimit caps
// submissions and drafts per second across all tenants; 0 disables it.
type AdmissionConfig struct {
	Debounce       Duration `json:"debounce"`
	MaxSourceBytes int      `json:"max_source_bytes"`
	RateLimit      float64  `json:"rate_limit"`
	RateBurst      int      `json:"rate_burst"`
}

// FeaturesConfig declares the flags the feature gate manages.
// KindFlags overrides or adds block kind to flag mappings.
type FeaturesConfig struct {
	Known     []string          `json:"known,omitempty"`
	KindFlags map[string]string `json:"kind_flags,omitempty"`
}

// TenantsConfig lists tenants whose custom components are loaded at startup
type TenantsConfig struct {
	Preload []string `json:"preload,omitempty"`
}

// HTTPConfig configures the metrics, health and preview listener
type HTTPConfig struct {
	Port int `json:"port"`
}

// Default returns the built-in defaults every loaded file is merged over.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{Name: "semblocks"},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
			PageBucket:    "semblocks_pages",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: Duration(30 * time.Second),
		},
		Render: RenderConfig{
			DeferredWorkers: 4,
			QueueSize:       256,
			DeferredTimeout: Duration(5 * time.Second),
		},
		Admission: AdmissionConfig{
			Debounce:       Duration(300 * time.Millisecond),
			MaxSourceBytes: 64 << 10,
			RateLimit:      20,
			RateBurst:      10,
		},
		HTTP: HTTPConfig{Port: 8080},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	var problems []string

	if c.Service.Name == "" {
		problems = append(problems, "service.name is required")
	}
	if len(c.NATS.URLs) == 0 {
		problems = append(problems, "nats.urls must contain at least one URL")
	}
	for _, u := range c.NATS.URLs {
		if !strings.HasPrefix(u, "nats://") && !strings.HasPrefix(u, "tls://") {
			problems = append(problems, fmt.Sprintf("nats url %q must use nats:// or tls://", u))
		}
	}
	if c.Render.DeferredWorkers < 0 {
		problems = append(problems, "render.deferred_workers cannot be negative")
	}
	if c.Render.QueueSize < 0 {
		problems = append(problems, "render.queue_size cannot be negative")
	}
	if c.Render.DeferredTimeout < 0 {
		problems = append(problems, "render.deferred_timeout cannot be negative")
	}
	if c.Admission.MaxSourceBytes <= 0 {
		problems = append(problems, "admission.max_source_bytes must be positive")
	}
	if c.Admission.Debounce < 0 {
		problems = append(problems, "admission.debounce cannot be negative")
	}
	if c.Admission.RateLimit < 0 {
		problems = append(problems, "admission.rate_limit cannot be negative")
	}
	if c.Admission.RateLimit > 0 && c.Admission.RateBurst < 1 {
		problems = append(problems, "admission.rate_burst must be at least 1 when rate_limit is set")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	for kind, flag := range c.Features.KindFlags {
		if kind == "" || flag == "" {
			problems = append(problems, "features.kind_flags entries need a kind and a flag")
		}
	}
	seen := make(map[string]bool, len(c.Tenants.Preload))
	for _, id := range c.Tenants.Preload {
		if id == "" {
			problems = append(problems, "tenants.preload contains an empty tenant id")
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("tenants.preload lists %q twice", id))
		}
		seen[id] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String renders the config with secrets redacted
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	if redacted.Redis.Password != "" {
		redacted.Redis.Password = "***"
	}
	if redacted.Postgres.DSN != "" {
		redacted.Postgres.DSN = "***"
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config cannot be nil", errors.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
