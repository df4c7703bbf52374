package render

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/feature"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/page"
	"github.com/c360/semblocks/pkg/worker"
	"github.com/c360/semblocks/schema"
)

const (
	// DefaultDeferredTimeout bounds one deferred renderer.
	DefaultDeferredTimeout = 10 * time.Second

	maxChildDepth = 4
)

// Resolver looks up block kinds. *block.Registry satisfies it.
type Resolver interface {
	Resolve(kind string) block.Resolution
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithPool runs deferred renderers on pool. Without a pool, or when its
// queue is full, deferred nodes render on first Await.
func WithPool(pool *worker.Pool[DeferredJob]) Option {
	return func(d *Dispatcher) {
		d.pool = pool
	}
}

// WithDeferredTimeout overrides DefaultDeferredTimeout
func WithDeferredTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.deferredTimeout = timeout
		}
	}
}

// WithLimits overrides the configuration shape limits
func WithLimits(limits schema.Limits) Option {
	return func(d *Dispatcher) {
		d.limits = limits
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics exports node outcome counters, render latency and the number
// of pending deferred nodes.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dispatcher) {
		if registry == nil {
			return
		}
		m, err := newRenderMetrics(registry)
		if err != nil {
			d.logger.Warn("render metrics not registered", "error", err)
			return
		}
		d.metrics = m
	}
}

// NewPool creates the worker pool deferred renderers run on. The caller
// starts and stops it.
func NewPool(workers, queueSize int, opts ...worker.Option[DeferredJob]) *worker.Pool[DeferredJob] {
	return worker.NewPool(workers, queueSize, func(_ context.Context, job DeferredJob) error {
		job.d.run()
		return job.d.err
	}, opts...)
}

// Dispatcher renders pages. It holds no per-request state and is safe for
// concurrent use.
type Dispatcher struct {
	registry        Resolver
	gate            *feature.Gate
	pool            *worker.Pool[DeferredJob]
	deferredTimeout time.Duration
	limits          schema.Limits
	logger          *slog.Logger
	metrics         *renderMetrics
}

// NewDispatcher creates a dispatcher. A nil gate enables every flag.
func NewDispatcher(registry Resolver, gate *feature.Gate, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:        registry,
		gate:            gate,
		deferredTimeout: DefaultDeferredTimeout,
		limits:          schema.DefaultLimits(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Render produces the tree for pg as seen by tenant. It never fails: every
// per-instance problem becomes a placeholder node. tenant is a snapshot and
// is not consulted again after Render returns.
func (d *Dispatcher) Render(ctx context.Context, pg *page.Page, tenant feature.TenantConfig) *Tree {
	started := time.Now()
	defer d.metrics.observeRender(started)

	tree := &Tree{}
	if pg == nil {
		return tree
	}
	tree.PageID = pg.ID
	tree.Tenant = tenant.TenantID
	tree.slots = make([]slot, len(pg.Blocks))

	for i, inst := range pg.Blocks {
		tree.slots[i] = d.renderInstance(ctx, i, inst, tenant)
	}
	return tree
}

func (d *Dispatcher) renderInstance(ctx context.Context, index int, inst page.Instance, tenant feature.TenantConfig) slot {
	desc, input, ph := d.prepare(inst, tenant)
	if ph != nil {
		d.logPlaceholder(tenant, inst, ph)
		d.metrics.node(string(ph.Reason))
		return slot{node: placeholderNode(index, inst.Kind, inst.ID, *ph)}
	}

	base := Node{Index: index, InstanceID: inst.ID, Kind: inst.Kind, Strategy: desc.Strategy}

	if desc.Strategy != block.StrategyDeferred {
		html, err := d.invoke(ctx, desc, input, tenant, 0)
		if err != nil {
			p := Placeholder{Reason: ReasonRenderFailed, Detail: err.Error()}
			d.logPlaceholder(tenant, inst, &p)
			d.metrics.node(string(ReasonRenderFailed))
			n := placeholderNode(index, inst.Kind, inst.ID, p)
			n.Strategy = desc.Strategy
			return slot{node: n}
		}
		d.metrics.node(string(StateRendered))
		base.State = StateRendered
		base.HTML = html
		return slot{node: base}
	}

	layout := desc.Layout
	base.State = StateDeferred
	base.Loading = &layout

	// Timed from acquisition. A lazily awaited node may start long after Render.
	detached := context.WithoutCancel(ctx)
	def := newDeferred(func() (template.HTML, error) {
		d.metrics.deferredStarted()
		dctx, cancel := context.WithTimeout(detached, d.deferredTimeout)
		defer cancel()
		return d.invoke(dctx, desc, input, tenant, 0)
	}, func(err error) {
		d.metrics.deferredFinished()
		if err != nil {
			d.logger.Warn("deferred block render failed",
				"tenant", tenant.TenantID, "kind", inst.Kind, "instance_id", inst.ID, "error", err)
			d.metrics.node(string(ReasonRenderFailed))
			return
		}
		d.metrics.node(string(StateRendered))
	})
	d.schedule(def, inst)
	return slot{node: base, deferred: def}
}

func (d *Dispatcher) schedule(def *deferred, inst page.Instance) {
	if d.pool == nil {
		return
	}
	err := d.pool.Submit(DeferredJob{d: def})
	switch {
	case err == nil:
	case worker.IsShed(err):
		d.logger.Debug("deferred block left for lazy render",
			"kind", inst.Kind, "instance_id", inst.ID, "reason", err)
	default:
		d.logger.Warn("deferred render pool unavailable",
			"kind", inst.Kind, "instance_id", inst.ID, "error", err)
	}
}

// prepare runs the gate, registry and configuration checks for inst. It
// returns a placeholder when the instance cannot be rendered.
func (d *Dispatcher) prepare(inst page.Instance, tenant feature.TenantConfig) (*block.Descriptor, block.Input, *Placeholder) {
	var res block.Resolution
	if d.registry != nil {
		res = d.registry.Resolve(inst.Kind)
	}

	fallback := ""
	if res.Found {
		fallback = res.Descriptor.FeatureFlag
	}
	if flag, ok := d.gate.KindEnabled(tenant, inst.Kind, fallback); !ok {
		return nil, block.Input{}, &Placeholder{
			Reason: ReasonFeatureDisabled,
			Flag:   flag,
			Detail: fmt.Sprintf("feature %q is not enabled for tenant %q", flag, tenant.TenantID),
		}
	}

	if !res.Found {
		return nil, block.Input{}, &Placeholder{
			Reason: ReasonUnregistered,
			Detail: fmt.Sprintf("block kind %q is not registered", inst.Kind),
		}
	}
	desc := res.Descriptor

	if err := d.limits.Check(inst.Config); err != nil {
		return nil, block.Input{}, &Placeholder{Reason: ReasonInvalidConfig, Detail: err.Error()}
	}
	coerced := schema.Coerce(inst.Config, desc.Schema)
	if errs := schema.ValidateConfig(coerced, desc.Schema); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Message
		}
		return nil, block.Input{}, &Placeholder{
			Reason: ReasonInvalidConfig,
			Fields: schema.Fields(errs),
			Detail: strings.Join(msgs, "; "),
		}
	}

	return desc, block.Input{
		Tenant:     tenant.TenantID,
		Kind:       inst.Kind,
		InstanceID: inst.ID,
		Config:     schema.MergeDefaults(coerced, desc.Schema),
	}, nil
}

// invoke renders children first when the kind supports them, then calls the
// renderer. Panics are recovered into errors.
func (d *Dispatcher) invoke(ctx context.Context, desc *block.Descriptor, input block.Input,
	tenant feature.TenantConfig, depth int) (html template.HTML, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("renderer panic: %v", r), "Dispatcher", "invoke", "render "+desc.Kind)
		}
	}()
	if desc.SupportsChildren {
		input.Config[childrenKey] = d.renderChildren(ctx, input, tenant, depth)
	}
	return desc.Renderer.Render(ctx, input)
}

func (d *Dispatcher) logPlaceholder(tenant feature.TenantConfig, inst page.Instance, p *Placeholder) {
	level := slog.LevelDebug
	if p.Reason == ReasonRenderFailed || p.Reason == ReasonUnregistered {
		level = slog.LevelWarn
	}
	d.logger.Log(context.Background(), level, "block replaced by placeholder",
		"tenant", tenant.TenantID, "kind", inst.Kind, "instance_id", inst.ID,
		"reason", string(p.Reason), "detail", p.Detail)
}
