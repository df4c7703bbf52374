package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "semblocks_pages", cfg.NATS.PageBucket)
	assert.Equal(t, 5*time.Second, cfg.Render.DeferredTimeout.Std())
}

func TestLoader_JSONLayer(t *testing.T) {
	path := writeFile(t, "base.json", `{
		"service": {"name": "blocks-test"},
		"render": {"deferred_workers": 8, "deferred_timeout": "750ms"},
		"features": {"known": ["gallery", "blog"], "kind_flags": {"Hero": "hero"}},
		"tenants": {"preload": ["acme"]}
	}`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "blocks-test", cfg.Service.Name)
	assert.Equal(t, 8, cfg.Render.DeferredWorkers)
	assert.Equal(t, 256, cfg.Render.QueueSize, "defaults survive a partial layer")
	assert.Equal(t, 750*time.Millisecond, cfg.Render.DeferredTimeout.Std())
	assert.Equal(t, []string{"gallery", "blog"}, cfg.Features.Known)
	assert.Equal(t, "hero", cfg.Features.KindFlags["Hero"])
	assert.Equal(t, []string{"acme"}, cfg.Tenants.Preload)
}

func TestLoader_YAMLLayerOverridesJSON(t *testing.T) {
	base := writeFile(t, "base.json", `{"redis": {"addr": "redis:6379", "cache_ttl": "1m"}}`)
	override := writeFile(t, "prod.yaml", `
redis:
  cache_ttl: 2d
admission:
  max_source_bytes: 1024
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 48*time.Hour, cfg.Redis.CacheTTL.Std())
	assert.Equal(t, 1024, cfg.Admission.MaxSourceBytes)
}

func TestLoader_EnvOverrides(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"SEMBLOCKS_NATS_URLS":    "nats://a:4222, nats://b:4222",
		"SEMBLOCKS_POSTGRES_DSN": "postgres://u:p@db/blocks",
		"SEMBLOCKS_TENANTS":      "acme,globex",
		"SEMBLOCKS_HTTP_PORT":    "9191",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "postgres://u:p@db/blocks", cfg.Postgres.DSN)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Tenants.Preload)
	assert.Equal(t, 9191, cfg.HTTP.Port)
}

func TestLoader_Rejections(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		env  map[string]string
	}{
		{name: "unsupported extension", file: "cfg.toml", body: "x=1"},
		{name: "malformed json", file: "cfg.json", body: `{"render": {`},
		{name: "bad port env", file: "cfg.json", body: `{}`, env: map[string]string{"SEMBLOCKS_HTTP_PORT": "http"}},
		{name: "null byte env", file: "cfg.json", body: `{}`, env: map[string]string{"SEMBLOCKS_REDIS_ADDR": "a\x00b"}},
		{name: "invalid after validation", file: "cfg.json", body: `{"admission": {"max_source_bytes": -1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(tt.env)
			l.EnableValidation(true)
			_, err := l.LoadFile(writeFile(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no service name", func(c *Config) { c.Service.Name = "" }},
		{"no nats urls", func(c *Config) { c.NATS.URLs = nil }},
		{"bad nats scheme", func(c *Config) { c.NATS.URLs = []string{"http://x"} }},
		{"negative workers", func(c *Config) { c.Render.DeferredWorkers = -1 }},
		{"port range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"negative rate limit", func(c *Config) { c.Admission.RateLimit = -1 }},
		{"rate limit without burst", func(c *Config) { c.Admission.RateBurst = 0 }},
		{"empty kind flag", func(c *Config) { c.Features.KindFlags = map[string]string{"Hero": ""} }},
		{"duplicate tenant", func(c *Config) { c.Tenants.Preload = []string{"a", "a"} }},
		{"empty tenant", func(c *Config) { c.Tenants.Preload = []string{""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Postgres.DSN = "postgres://user:secret@db"
	cfg.Redis.Password = "hunter2"

	out := cfg.String()
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, "postgres://user:secret@db", cfg.Postgres.DSN, "original untouched")
}

func TestSafeConfig_GetReturnsCopy(t *testing.T) {
	sc := NewSafeConfig(Default())

	cp := sc.Get()
	cp.Tenants.Preload = append(cp.Tenants.Preload, "mutated")
	assert.Empty(t, sc.Get().Tenants.Preload)
}

func TestSafeConfig_UpdateValidates(t *testing.T) {
	sc := NewSafeConfig(Default())

	assert.True(t, errors.IsInvalid(sc.Update(nil)))

	bad := Default()
	bad.Service.Name = ""
	assert.Error(t, sc.Update(bad))
	assert.Equal(t, "semblocks", sc.Get().Service.Name)

	good := Default()
	good.Service.Name = "renamed"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, "renamed", sc.Get().Service.Name)
}

func TestSafeConfig_ConcurrentAccess(t *testing.T) {
	sc := NewSafeConfig(Default())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				name := sc.Get().Service.Name
				assert.Contains(t, []string{"semblocks", "writer-0", "writer-1", "writer-2", "writer-3", "writer-4"}, name)
			}
		}()
		go func(i int) {
			defer wg.Done()
			cfg := Default()
			cfg.Service.Name = fmt.Sprintf("writer-%d", i%5)
			assert.NoError(t, sc.Update(cfg))
		}(i)
	}
	wg.Wait()
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{`"1s"`, time.Second, false},
		{`"3d"`, 72 * time.Hour, false},
		{`1000`, time.Microsecond, false},
		{`""`, 0, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalJSON([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "}}}"}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [}`+"]]")))

	deep := ""
	for i := 0; i <= maxJSONDepth; i++ {
		deep += "["
	}
	assert.Error(t, validateJSONDepth([]byte(deep)))
}
