package pagestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/natsclient"
	"github.com/c360/semblocks/page"
)

// DefaultBucket is the KV bucket holding pages
const DefaultBucket = "semblocks_pages"

// Store provides persistence for pages using NATS KV
type Store struct {
	kv      *natsclient.KVStore
	logger  *slog.Logger
	now     func() time.Time
	metrics *metric.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records operation counts and latency
func WithMetrics(metrics *metric.Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

func (s *Store) observe(op string, started time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation("pagestore", op, started, *err)
	}
}

// NewStore creates the page bucket if needed and returns a store over it.
func NewStore(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNilDependency, "pagestore", "NewStore", "nats client cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Page layouts: ordered block instances per tenant",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "pagestore", "NewStore", "create KV bucket")
	}
	return New(kv, opts...), nil
}

// New wraps an existing bucket.
func New(bucket jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		kv:     natsclient.NewKVStore(bucket),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pagestore", "bucket", s.kv.Bucket())
	return s
}

func key(tenant, id string) string {
	return tenant + "." + id
}

func checkIdentity(tenant, id, method string) error {
	if tenant == "" {
		return errors.WrapInvalid(errors.ErrTenantRequired, "pagestore", method, "check tenant")
	}
	if strings.ContainsAny(tenant, ". *>") {
		return errors.WrapInvalid(fmt.Errorf("%w: tenant %q", errors.ErrInvalidData, tenant),
			"pagestore", method, "check tenant")
	}
	if id == "" || strings.ContainsAny(id, ". *>") {
		return errors.WrapInvalid(fmt.Errorf("%w: page id %q", errors.ErrInvalidData, id),
			"pagestore", method, "check page id")
	}
	return nil
}

// Create stores a new page at version 1. An existing page with the same id
// is an invalid request.
func (s *Store) Create(ctx context.Context, p *page.Page) (err error) {
	defer s.observe("create", time.Now(), &err)
	if p == nil {
		return errors.WrapInvalid(errors.ErrNilDependency, "pagestore", "Create", "page cannot be nil")
	}
	if err := checkIdentity(p.Tenant, p.ID, "Create"); err != nil {
		return err
	}

	now := s.now().UTC()
	next := p.Clone()
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	if err := next.Validate(); err != nil {
		return err
	}

	data, err := page.Marshal(next)
	if err != nil {
		return err
	}

	if _, err := s.kv.Create(ctx, next.Key(), data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(err, "pagestore", "Create", "page already exists")
		}
		return errors.WrapTransient(err, "pagestore", "Create", "create in KV")
	}

	p.Version, p.CreatedAt, p.UpdatedAt = next.Version, next.CreatedAt, next.UpdatedAt
	s.logger.Debug("page created", "tenant", p.Tenant, "page_id", p.ID)
	return nil
}

// Load retrieves a page. A missing page is ErrPageNotFound; an undecodable
// record is fatal.
func (s *Store) Load(ctx context.Context, tenant, id string) (p *page.Page, err error) {
	defer s.observe("load", time.Now(), &err)
	p, _, err = s.load(ctx, tenant, id, "Load")
	return p, err
}

func (s *Store) load(ctx context.Context, tenant, id, method string) (*page.Page, uint64, error) {
	if err := checkIdentity(tenant, id, method); err != nil {
		return nil, 0, err
	}

	entry, err := s.kv.Get(ctx, key(tenant, id))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, 0, errors.WrapInvalid(fmt.Errorf("%w: %s/%s", errors.ErrPageNotFound, tenant, id),
				"pagestore", method, "get from KV")
		}
		return nil, 0, errors.WrapTransient(err, "pagestore", method, "get from KV")
	}

	p, err := page.Unmarshal(entry.Value)
	if err != nil {
		s.logger.Error("stored page is corrupt", "tenant", tenant, "page_id", id, "error", err)
		return nil, 0, err
	}
	return p, entry.Revision, nil
}

// Save writes p if its Version equals the stored version, then increments
// Version. A stale version, or a concurrent write between the check and the
// write, is ErrVersionConflict.
func (s *Store) Save(ctx context.Context, p *page.Page) (err error) {
	defer s.observe("save", time.Now(), &err)
	if p == nil {
		return errors.WrapInvalid(errors.ErrNilDependency, "pagestore", "Save", "page cannot be nil")
	}

	current, revision, err := s.load(ctx, p.Tenant, p.ID, "Save")
	if err != nil {
		return err
	}
	if current.Version != p.Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stored %d, got %d", errors.ErrVersionConflict, current.Version, p.Version),
			"pagestore", "Save", "check version")
	}

	next := p.Clone()
	next.Version++
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now().UTC()
	if err := next.Validate(); err != nil {
		return err
	}

	data, err := page.Marshal(next)
	if err != nil {
		return err
	}

	if _, err := s.kv.Update(ctx, next.Key(), data, revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrVersionConflict, err),
				"pagestore", "Save", "update in KV")
		}
		return errors.WrapTransient(err, "pagestore", "Save", "update in KV")
	}

	p.Version, p.CreatedAt, p.UpdatedAt = next.Version, next.CreatedAt, next.UpdatedAt
	s.logger.Debug("page saved", "tenant", p.Tenant, "page_id", p.ID, "version", p.Version)
	return nil
}

// Delete removes a page
func (s *Store) Delete(ctx context.Context, tenant, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)
	if err := checkIdentity(tenant, id, "Delete"); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key(tenant, id)); err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return errors.WrapInvalid(fmt.Errorf("%w: %s/%s", errors.ErrPageNotFound, tenant, id),
				"pagestore", "Delete", "delete from KV")
		}
		return errors.WrapTransient(err, "pagestore", "Delete", "delete from KV")
	}
	return nil
}

// List returns the tenant's page ids in sorted order
func (s *Store) List(ctx context.Context, tenant string) (ids []string, err error) {
	defer s.observe("list", time.Now(), &err)
	if tenant == "" {
		return nil, errors.WrapInvalid(errors.ErrTenantRequired, "pagestore", "List", "check tenant")
	}

	prefix := tenant + "."
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, errors.WrapTransient(err, "pagestore", "List", "list KV keys")
	}

	ids = make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(ids)
	return ids, nil
}
