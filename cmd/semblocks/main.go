// Package main runs the semblocks server: it restores the block catalog,
// renders page previews and accepts custom component submissions.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/c360/semblocks/admission"
	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/blockregistry"
	"github.com/c360/semblocks/catalog"
	"github.com/c360/semblocks/componentstore"
	"github.com/c360/semblocks/config"
	"github.com/c360/semblocks/feature"
	"github.com/c360/semblocks/health"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/natsclient"
	"github.com/c360/semblocks/pagestore"
	"github.com/c360/semblocks/pkg/worker"
	"github.com/c360/semblocks/render"
	"github.com/c360/semblocks/schema"
	"github.com/c360/semblocks/tenantstore"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "semblocks"
)

// Process status values reported on the service status gauge
const (
	statusStarting = 1
	statusRunning  = 2
	statusStopping = 3
	statusStopped  = 0
)

var errAdmissionRejected = stderrors.New("component rejected")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return
		}
		if !stderrors.Is(err, errAdmissionRejected) {
			slog.Error("Application failed", "error", err, "exit_code", 1)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(stderr, cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cli.ConfigPath)
	if err != nil {
		return err
	}
	if cli.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}
	if cli.AdmitFile != "" {
		return runAdmit(context.Background(), cfg, cli, stdout, logger)
	}

	logger.Info("Starting semblocks", "version", Version, "config_path", cli.ConfigPath)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, cli.ShutdownTimeout, logger)
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newCatalog builds a sealed registry holding the built-in kinds and an
// admission pipeline that checks names against it.
func newCatalog(cfg *config.Config, logger *slog.Logger, metrics *metric.MetricsRegistry) (
	*schema.Catalog, *block.Registry, *admission.Pipeline, error) {
	cat, err := schema.Builtin()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load built-in catalog: %w", err)
	}
	reg := block.NewRegistry(block.WithLogger(logger), block.WithMetrics(metrics))
	pipeline := admission.NewPipeline(reg,
		admission.WithMaxSourceBytes(cfg.Admission.MaxSourceBytes),
		admission.WithLogger(logger),
		admission.WithMetrics(metrics),
	)
	return cat, reg, pipeline, nil
}

// runAdmit admits a component file against the built-in kinds and prints
// the result. A rejected component is reported through the exit status.
func runAdmit(ctx context.Context, cfg *config.Config, cli *CLIConfig, stdout io.Writer, logger *slog.Logger) error {
	source, err := os.ReadFile(cli.AdmitFile)
	if err != nil {
		return fmt.Errorf("read component: %w", err)
	}
	name := cli.AdmitName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(cli.AdmitFile), filepath.Ext(cli.AdmitFile))
	}

	cat, reg, pipeline, err := newCatalog(cfg, logger, nil)
	if err != nil {
		return err
	}
	if err := blockregistry.Register(reg, cat, blockregistry.Options{Logger: logger}); err != nil {
		return fmt.Errorf("seed built-in kinds: %w", err)
	}
	reg.Seal()

	res := pipeline.Admit(ctx, name, string(source))
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !res.Valid {
		return errAdmissionRejected
	}
	return nil
}

func knownFlags(cfg *config.Config, cat *schema.Catalog) []string {
	return append(append([]string(nil), cfg.Features.Known...), cat.Features()...)
}

func serve(ctx context.Context, cfg *config.Config, shutdownTimeout time.Duration, logger *slog.Logger) error {
	metrics := metric.NewMetricsRegistry()
	core := metrics.CoreMetrics()
	core.RecordServiceStatus(appName, statusStarting)

	natsOpts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Service.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
	}
	if cfg.NATS.Username != "" {
		natsOpts = append(natsOpts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		natsOpts = append(natsOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	nc, err := natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), natsOpts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	logger.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := nc.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = nc.Close(context.Background()) }()

	pages, err := pagestore.NewStore(ctx, nc, cfg.NATS.PageBucket,
		pagestore.WithLogger(logger), pagestore.WithMetrics(core))
	if err != nil {
		return fmt.Errorf("open page store: %w", err)
	}

	db, err := componentstore.Open(ctx, cfg.Postgres.DSN,
		cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime.Std())
	if err != nil {
		return fmt.Errorf("open component database: %w", err)
	}
	defer func() { _ = db.Close() }()
	components, err := componentstore.New(db, componentstore.WithLogger(logger), componentstore.WithMetrics(core))
	if err != nil {
		return err
	}
	if err := components.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare component table: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	tenants, err := tenantstore.New(ctx, rdb,
		tenantstore.WithCacheTTL(cfg.Redis.CacheTTL.Std()),
		tenantstore.WithLogger(logger),
		tenantstore.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("open tenant store: %w", err)
	}
	defer func() { _ = tenants.Close() }()

	cat, reg, pipeline, err := newCatalog(cfg, logger, metrics)
	if err != nil {
		return err
	}
	svc, err := catalog.NewService(reg, cat, pipeline, components,
		catalog.WithLogger(logger),
		catalog.WithPreloadTenants(cfg.Tenants.Preload...),
	)
	if err != nil {
		return err
	}
	if _, err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap block catalog: %w", err)
	}

	pool := render.NewPool(cfg.Render.DeferredWorkers, cfg.Render.QueueSize,
		worker.WithMetricsRegistry[render.DeferredJob](metrics, "render_deferred"),
		worker.WithLogger[render.DeferredJob](logger),
	)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start render pool: %w", err)
	}
	defer func() { _ = pool.Stop(shutdownTimeout) }()

	gate := feature.NewGate(knownFlags(cfg, cat), cfg.Features.KindFlags)
	dispatcher := render.NewDispatcher(reg, gate,
		render.WithPool(pool),
		render.WithDeferredTimeout(cfg.Render.DeferredTimeout.Std()),
		render.WithLogger(logger),
		render.WithMetrics(metrics),
	)

	drafts := newDraftBox()
	validator := admission.NewDraftValidator(pipeline, cfg.Admission.Debounce.Std(), drafts.deliver)
	defer validator.Close()

	monitor := health.NewMonitor(2*time.Second, core)
	monitor.Register("nats", nc.Ping, true)
	monitor.Register("postgres", components.Ping, true)
	monitor.Register("redis", tenants.Ping, false)
	monitor.CheckAll(ctx)
	go monitor.Run(ctx, 15*time.Second)

	var limiter *rate.Limiter
	if cfg.Admission.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Admission.RateLimit), cfg.Admission.RateBurst)
	}

	srv := &server{
		pages:      pages,
		tenants:    tenants,
		components: svc,
		dispatcher: dispatcher,
		versions:   render.NewVersionTracker(),
		gate:       gate,
		validator:  validator,
		drafts:     drafts,
		limiter:    limiter,
		metrics:    metrics,
		health:     monitor,
		logger:     logger,
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	core.RecordServiceStatus(appName, statusRunning)

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	core.RecordServiceStatus(appName, statusStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	core.RecordServiceStatus(appName, statusStopped)
	logger.Info("semblocks shutdown complete")
	return nil
}
