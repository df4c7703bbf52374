package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/c360/semblocks/admission"
	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/feature"
	"github.com/c360/semblocks/health"
	"github.com/c360/semblocks/metric"
	"github.com/c360/semblocks/page"
	"github.com/c360/semblocks/render"
)

const maxSourceBody = 1 << 20

type pageLoader interface {
	Load(ctx context.Context, tenant, id string) (*page.Page, error)
}

type tenantSource interface {
	GetTenantFeatureFlags(ctx context.Context, tenant string) (feature.TenantConfig, error)
}

type componentService interface {
	SubmitComponent(ctx context.Context, tenant, name, source string) (admission.Result, error)
	DeleteComponent(ctx context.Context, tenant, name string) error
	Components(tenant string) []string
}

// draftBox keeps the latest delivered draft result per key.
type draftBox struct {
	mu      sync.Mutex
	results map[string]admission.DraftResult
}

func newDraftBox() *draftBox {
	return &draftBox{results: make(map[string]admission.DraftResult)}
}

func (b *draftBox) deliver(r admission.DraftResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[r.Key] = r
}

func (b *draftBox) latest(key string) (admission.DraftResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.results[key]
	return r, ok
}

type server struct {
	pages      pageLoader
	tenants    tenantSource
	components componentService
	dispatcher *render.Dispatcher
	versions   *render.VersionTracker
	gate       *feature.Gate
	validator  *admission.DraftValidator
	drafts     *draftBox
	limiter    *rate.Limiter
	metrics    *metric.MetricsRegistry
	health     *health.Monitor
	logger     *slog.Logger
}

type previewResponse struct {
	PageID     string        `json:"pageId"`
	Tenant     string        `json:"tenant"`
	Version    int64         `json:"version"`
	Superseded bool          `json:"superseded,omitempty"`
	Nodes      []render.Node `json:"nodes"`
}

type componentResponse struct {
	Result admission.Result `json:"result"`
	Error  string           `json:"error,omitempty"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.health != nil {
		mux.Handle("GET /healthz", s.health.Handler(appName))
	}
	mux.HandleFunc("GET /preview/{tenant}/{page}", s.handlePreview)
	mux.HandleFunc("GET /features/{tenant}", s.handleFeatures)
	mux.HandleFunc("GET /components/{tenant}", s.handleListComponents)
	mux.HandleFunc("PUT /components/{tenant}/{name}", s.handleSubmitComponent)
	mux.HandleFunc("DELETE /components/{tenant}/{name}", s.handleDeleteComponent)
	mux.HandleFunc("POST /drafts/{key}", s.handleSubmitDraft)
	mux.HandleFunc("GET /drafts/{key}", s.handleGetDraft)
	return mux
}

// tenantConfig fetches the tenant snapshot. When the tenant store is down
// the page still renders with an empty snapshot.
func (s *server) tenantConfig(ctx context.Context, tenant string) feature.TenantConfig {
	cfg, err := s.tenants.GetTenantFeatureFlags(ctx, tenant)
	if err != nil {
		s.logger.Warn("tenant features unavailable, rendering with defaults", "tenant", tenant, "error", err)
		s.recordError(err)
		return feature.TenantConfig{TenantID: tenant}
	}
	return cfg
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, id := r.PathValue("tenant"), r.PathValue("page")

	pg, err := s.pages.Load(ctx, tenant, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg := s.tenantConfig(ctx, tenant)

	token := s.versions.Begin(pg.Key())
	tree := s.dispatcher.Render(ctx, pg, cfg)

	if r.URL.Query().Get("format") == "html" {
		markup := tree.Markup(ctx)
		if !s.versions.Commit(token, tree) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "preview superseded by a newer render"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, string(markup))
		return
	}

	nodes := tree.Resolve(ctx)
	for i := range nodes {
		nodes[i] = nodes[i].Public()
	}
	writeJSON(w, http.StatusOK, previewResponse{
		PageID:     pg.ID,
		Tenant:     pg.Tenant,
		Version:    pg.Version,
		Superseded: !s.versions.Commit(token, tree),
		Nodes:      nodes,
	})
}

func (s *server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	cfg := s.tenantConfig(r.Context(), tenant)
	enabled := s.gate.EnabledFlags(cfg)
	if enabled == nil {
		enabled = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenantId": tenant, "enabled": enabled})
}

func (s *server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	names := s.components.Components(r.PathValue("tenant"))
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": names})
}

func (s *server) handleSubmitComponent(w http.ResponseWriter, r *http.Request) {
	if !s.allowAdmission(w) {
		return
	}
	source, ok := s.readSource(w, r)
	if !ok {
		return
	}

	res, err := s.components.SubmitComponent(r.Context(), r.PathValue("tenant"), r.PathValue("name"), source)
	if err != nil {
		if stderrors.Is(err, errors.ErrComponentRejected) {
			writeJSON(w, http.StatusUnprocessableEntity, componentResponse{Result: res, Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, componentResponse{Result: res})
}

func (s *server) handleDeleteComponent(w http.ResponseWriter, r *http.Request) {
	if err := s.components.DeleteComponent(r.Context(), r.PathValue("tenant"), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name query parameter is required"})
		return
	}
	if !s.allowAdmission(w) {
		return
	}
	source, ok := s.readSource(w, r)
	if !ok {
		return
	}

	seq := s.validator.Submit(r.PathValue("key"), name, source)
	if seq == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "draft validation is shutting down"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"seq": seq})
}

func (s *server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	res, ok := s.drafts.latest(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no result for draft"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// allowAdmission throttles the endpoints that parse submitted source. A nil
// limiter admits everything.
func (s *server) allowAdmission(w http.ResponseWriter) bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many component submissions"})
	return false
}

func (s *server) readSource(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSourceBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return "", false
	}
	if len(body) > maxSourceBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "source too large"})
		return "", false
	}
	return string(body), true
}

func (s *server) recordError(err error) {
	if s.metrics != nil {
		s.metrics.CoreMetrics().RecordError("http", errors.Classify(err).String())
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrPageNotFound), stderrors.Is(err, errors.ErrComponentNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrVersionConflict), stderrors.Is(err, errors.ErrKindReserved):
		status = http.StatusConflict
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.recordError(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
