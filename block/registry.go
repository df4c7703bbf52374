package block

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/metric"
)

// Registry maps kind names to descriptors. Resolve is lock-free; Register and
// Unregister serialize on a mutex and publish a new map by pointer swap.
type Registry struct {
	current atomic.Pointer[map[string]*Descriptor]
	mu      sync.Mutex
	sealed  atomic.Bool

	logger  *slog.Logger
	metrics *registryMetrics
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics exports registry gauges and counters. Registration failures
// are logged and leave the registry without metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Registry) {
		if registry == nil {
			return
		}
		m, err := newRegistryMetrics(registry)
		if err != nil {
			r.logger.Warn("block registry metrics not registered", "error", err)
			return
		}
		r.metrics = m
	}
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	empty := make(map[string]*Descriptor)
	r.current.Store(&empty)
	for _, opt := range opts {
		opt(r)
	}
	r.metrics.observe(empty)
	return r
}

// Register inserts or replaces the descriptor for desc.Kind.
//
// The descriptor is validated and copied before anything is published; a
// rejected registration leaves the previous descriptor in place. Built-in
// kinds may only be registered before Seal and never twice. Custom kinds are
// accepted only after Seal and may not reuse a built-in name. The stored
// version is one past the replaced descriptor's version, or desc.Version if
// that is higher.
func (r *Registry) Register(desc *Descriptor) error {
	source := SourceCustom
	if desc != nil {
		source = desc.Source
	}
	if err := desc.Validate(); err != nil {
		r.metrics.registration(source, "rejected")
		return errors.Wrap(err, "Registry", "Register", "descriptor validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.current.Load()
	prev, exists := old[desc.Kind]

	if err := r.checkReplace(desc, prev, exists); err != nil {
		r.metrics.registration(source, "rejected")
		return err
	}

	next := desc.Clone()
	if exists && next.Version <= prev.Version {
		next.Version = prev.Version + 1
	}
	if next.Version <= 0 {
		next.Version = 1
	}

	updated := make(map[string]*Descriptor, len(old)+1)
	for k, v := range old {
		updated[k] = v
	}
	updated[next.Kind] = next
	r.current.Store(&updated)

	r.metrics.registration(source, "accepted")
	r.metrics.observe(updated)
	r.logger.Info("block kind registered",
		"kind", next.Kind, "source", string(next.Source), "version", next.Version, "replaced", exists)
	return nil
}

func (r *Registry) checkReplace(desc, prev *Descriptor, exists bool) error {
	sealed := r.sealed.Load()
	switch desc.Source {
	case SourceBuiltIn:
		if sealed {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q registered after seal", errors.ErrBuiltInImmutable, desc.Kind),
				"Registry", "Register", "seal check")
		}
		if exists {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q already registered", errors.ErrBuiltInImmutable, desc.Kind),
				"Registry", "Register", "duplicate check")
		}
	case SourceCustom:
		if !sealed {
			return errors.WrapInvalid(errors.ErrRegistryNotSealed, "Registry", "Register", "seal check")
		}
		if exists && prev.IsBuiltIn() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q is a built-in kind", errors.ErrKindReserved, desc.Kind),
				"Registry", "Register", "name collision check")
		}
	}
	return nil
}

// Resolve looks up kind. Unknown kinds yield Found=false.
func (r *Registry) Resolve(kind string) Resolution {
	d, ok := (*r.current.Load())[kind]
	return Resolution{Descriptor: d, Found: ok}
}

// IsRegistered reports whether kind has a descriptor
func (r *Registry) IsRegistered(kind string) bool {
	_, ok := (*r.current.Load())[kind]
	return ok
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	m := *r.current.Load()
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Len returns the number of registered kinds
func (r *Registry) Len() int {
	return len(*r.current.Load())
}

// Snapshot returns a copy of the current kind map. Descriptors are shared
// and must not be modified.
func (r *Registry) Snapshot() map[string]*Descriptor {
	m := *r.current.Load()
	out := make(map[string]*Descriptor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Unregister removes a custom kind. Built-in kinds cannot be removed.
func (r *Registry) Unregister(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.current.Load()
	prev, exists := old[kind]
	if !exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrKindNotRegistered, kind), "Registry", "Unregister", "lookup")
	}
	if prev.IsBuiltIn() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrBuiltInImmutable, kind), "Registry", "Unregister", "source check")
	}

	updated := make(map[string]*Descriptor, len(old))
	for k, v := range old {
		if k != kind {
			updated[k] = v
		}
	}
	r.current.Store(&updated)

	r.metrics.observe(updated)
	r.logger.Info("block kind unregistered", "kind", kind)
	return nil
}

// Seal marks built-in seeding complete. Custom registrations are accepted
// from this point on and built-in registrations are refused.
func (r *Registry) Seal() {
	if !r.sealed.Swap(true) {
		r.logger.Info("block registry sealed", "kinds", r.Len())
	}
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}
