package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/semblocks/admission"
	"github.com/c360/semblocks/block"
	"github.com/c360/semblocks/blockregistry"
	"github.com/c360/semblocks/componentstore"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// ComponentStore persists custom components. *componentstore.Store
// satisfies it.
type ComponentStore interface {
	LoadCustomComponents(ctx context.Context, tenant string) ([]componentstore.Record, error)
	SaveCustomComponent(ctx context.Context, r *componentstore.Record) error
	DeleteCustomComponent(ctx context.Context, tenant, name string) error
}

// Report summarizes a Bootstrap run
type Report struct {
	BuiltIns int `json:"builtIns"`
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
}

// Service owns registry mutation after startup
type Service struct {
	registry *block.Registry
	catalog  *schema.Catalog
	pipeline *admission.Pipeline
	store    ComponentStore
	builtins blockregistry.Options
	tenants  []string
	logger   *slog.Logger

	// mu serializes submissions and deletions so that persistence and
	// registration happen in the same order.
	mu     sync.Mutex
	owners map[string]string
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPreloadTenants lists tenants whose components Bootstrap restores
func WithPreloadTenants(tenants ...string) Option {
	return func(s *Service) {
		s.tenants = append([]string(nil), tenants...)
	}
}

// WithBuiltinOptions configures built-in renderers
func WithBuiltinOptions(opts blockregistry.Options) Option {
	return func(s *Service) { s.builtins = opts }
}

// NewService wires the lifecycle collaborators.
func NewService(registry *block.Registry, cat *schema.Catalog, pipeline *admission.Pipeline,
	store ComponentStore, opts ...Option) (*Service, error) {
	if registry == nil || cat == nil || pipeline == nil || store == nil {
		return nil, errors.WrapInvalid(errors.ErrNilDependency, "catalog", "NewService", "dependency check")
	}
	s := &Service{
		registry: registry,
		catalog:  cat,
		pipeline: pipeline,
		store:    store,
		logger:   slog.Default(),
		owners:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builtins.Logger == nil {
		s.builtins.Logger = s.logger
	}
	s.logger = s.logger.With("component", "catalog")
	return s, nil
}

// Bootstrap seeds the built-in kinds, seals the registry and restores the
// preload tenants' components. A persisted component that no longer passes
// admission is logged, marked invalid and skipped. Failing to read a
// tenant's components aborts the bootstrap.
func (s *Service) Bootstrap(ctx context.Context) (Report, error) {
	var report Report

	if !s.registry.Sealed() {
		if err := blockregistry.Register(s.registry, s.catalog, s.builtins); err != nil {
			return report, errors.Wrap(err, "catalog", "Bootstrap", "seed built-in kinds")
		}
		s.registry.Seal()
	}
	report.BuiltIns = len(s.catalog.Kinds())

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tenant := range s.tenants {
		records, err := s.store.LoadCustomComponents(ctx, tenant)
		if err != nil {
			return report, errors.Wrap(err, "catalog", "Bootstrap", "load components for "+tenant)
		}
		for i := range records {
			if s.restore(ctx, &records[i]) {
				report.Restored++
			} else {
				report.Skipped++
			}
		}
	}

	s.logger.Info("block catalog ready",
		"built_in", report.BuiltIns, "restored", report.Restored, "skipped", report.Skipped)
	return report, nil
}

func (s *Service) restore(ctx context.Context, r *componentstore.Record) bool {
	log := s.logger.With("tenant", r.Tenant, "kind", r.Name)

	if owner, ok := s.owners[r.Name]; ok && owner != r.Tenant {
		log.Warn("custom component skipped: name owned by another tenant", "owner", owner)
		return false
	}

	res := s.pipeline.Admit(ctx, r.Name, r.SourceText)
	if !res.Valid {
		log.Warn("persisted custom component failed admission", "errors", res.Errors)
		if r.ValidationStatus != componentstore.StatusInvalid {
			r.ValidationStatus = componentstore.StatusInvalid
			if err := s.store.SaveCustomComponent(ctx, r); err != nil {
				log.Warn("could not mark component invalid", "error", err)
			}
		}
		return false
	}

	desc, err := res.Descriptor()
	if err == nil {
		err = s.registry.Register(desc)
	}
	if err != nil {
		log.Warn("persisted custom component not registered", "error", err)
		return false
	}
	s.owners[r.Name] = r.Tenant
	return true
}

// SubmitComponent admits source as component name for tenant. A valid
// component is persisted and then registered; a rejected one changes
// nothing and the previous version, if any, stays in effect. The admission
// result is returned in both cases.
func (s *Service) SubmitComponent(ctx context.Context, tenant, name, source string) (admission.Result, error) {
	if tenant == "" {
		return admission.Result{Name: name}, errors.WrapInvalid(errors.ErrTenantRequired, "catalog", "SubmitComponent", "check tenant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[name]; ok && owner != tenant {
		return admission.Result{Name: name}, errors.WrapInvalid(
			fmt.Errorf("%w: %q belongs to another tenant", errors.ErrKindReserved, name),
			"catalog", "SubmitComponent", "ownership check")
	}

	res := s.pipeline.Admit(ctx, name, source)
	if !res.Valid {
		return res, errors.WrapInvalid(
			fmt.Errorf("%w: %q has %d blocking errors", errors.ErrComponentRejected, name, len(res.Errors)),
			"catalog", "SubmitComponent", "admission")
	}

	desc, err := res.Descriptor()
	if err != nil {
		return res, err
	}
	schemaJSON, err := res.EditableSchema.JSON()
	if err != nil {
		return res, errors.WrapFatal(err, "catalog", "SubmitComponent", "encode editable schema")
	}

	status := componentstore.StatusValid
	if len(res.Warnings) > 0 {
		status = componentstore.StatusWarnings
	}
	record := &componentstore.Record{
		Tenant:             tenant,
		Name:               name,
		SourceCategory:     string(block.SourceCustom),
		SourceText:         source,
		EditableSchemaJSON: schemaJSON,
		ValidationStatus:   status,
	}
	if err := s.store.SaveCustomComponent(ctx, record); err != nil {
		return res, errors.Wrap(err, "catalog", "SubmitComponent", "persist component")
	}

	if err := s.registry.Register(desc); err != nil {
		return res, errors.Wrap(err, "catalog", "SubmitComponent", "register component")
	}
	s.owners[name] = tenant

	s.logger.Info("custom component accepted",
		"tenant", tenant, "kind", name, "warnings", len(res.Warnings))
	return res, nil
}

// DeleteComponent removes tenant's component from storage, then from the
// registry. Pages still referencing the kind render a placeholder.
func (s *Service) DeleteComponent(ctx context.Context, tenant, name string) error {
	if tenant == "" {
		return errors.WrapInvalid(errors.ErrTenantRequired, "catalog", "DeleteComponent", "check tenant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[name]; ok && owner != tenant {
		return errors.WrapInvalid(fmt.Errorf("%w: %s/%s", errors.ErrComponentNotFound, tenant, name),
			"catalog", "DeleteComponent", "ownership check")
	}

	if err := s.store.DeleteCustomComponent(ctx, tenant, name); err != nil {
		return errors.Wrap(err, "catalog", "DeleteComponent", "delete from storage")
	}

	if _, registered := s.owners[name]; registered {
		if err := s.registry.Unregister(name); err != nil && !stderrors.Is(err, errors.ErrKindNotRegistered) {
			return errors.Wrap(err, "catalog", "DeleteComponent", "unregister")
		}
		delete(s.owners, name)
	}

	s.logger.Info("custom component deleted", "tenant", tenant, "kind", name)
	return nil
}

// Components returns the names of tenant's registered components
func (s *Service) Components(tenant string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, owner := range s.owners {
		if owner == tenant {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Registry returns the registry the service mutates
func (s *Service) Registry() *block.Registry {
	return s.registry
}
