package componentstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/metric"
)

// Validation status values stored with each record
const (
	StatusValid    = "valid"
	StatusWarnings = "warnings"
	StatusInvalid  = "invalid"
)

// Record is one persisted custom component
type Record struct {
	Tenant             string          `json:"tenant"`
	Name               string          `json:"name"`
	SourceCategory     string          `json:"sourceCategory"`
	SourceText         string          `json:"sourceText"`
	EditableSchemaJSON json.RawMessage `json:"editableSchemaJSON"`
	ValidationStatus   string          `json:"validationStatus"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS custom_components (
	tenant_id            TEXT        NOT NULL,
	name                 TEXT        NOT NULL,
	source_category      TEXT        NOT NULL,
	source_text          TEXT        NOT NULL,
	editable_schema_json JSONB       NOT NULL DEFAULT '{}'::jsonb,
	validation_status    TEXT        NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, name)
)`

const selectByTenantSQL = `
SELECT tenant_id, name, source_category, source_text, editable_schema_json,
       validation_status, created_at, updated_at
FROM custom_components
WHERE tenant_id = $1
ORDER BY name`

const upsertSQL = `
INSERT INTO custom_components (
	tenant_id, name, source_category, source_text, editable_schema_json,
	validation_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (tenant_id, name) DO UPDATE SET
	source_category      = EXCLUDED.source_category,
	source_text          = EXCLUDED.source_text,
	editable_schema_json = EXCLUDED.editable_schema_json,
	validation_status    = EXCLUDED.validation_status,
	updated_at           = EXCLUDED.updated_at
RETURNING created_at, updated_at`

const deleteSQL = `DELETE FROM custom_components WHERE tenant_id = $1 AND name = $2`

// Store reads and writes custom component records
type Store struct {
	db      *sql.DB
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
		s.metrics.RecordStoreOperation("componentstore", op, started, *err)
	}
}

// New wraps an open database handle
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.WrapInvalid(errors.ErrNilDependency, "componentstore", "New", "database cannot be nil")
	}
	s := &Store{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "componentstore")
	return s, nil
}

// Open connects to PostgreSQL with the given DSN and pool limits and pings it.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "componentstore", "Open", "check dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapInvalid(err, "componentstore", "Open", "open database")
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "componentstore", "Open", "ping database")
	}
	return db, nil
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err, "Ping", "ping database")
	}
	return nil
}

// EnsureSchema creates the custom_components table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return classify(err, "EnsureSchema", "create table")
	}
	return nil
}

// LoadCustomComponents returns the tenant's records ordered by name.
func (s *Store) LoadCustomComponents(ctx context.Context, tenant string) (records []Record, err error) {
	defer s.observe("load", time.Now(), &err)
	if tenant == "" {
		return nil, errors.WrapInvalid(errors.ErrTenantRequired, "componentstore", "LoadCustomComponents", "check tenant")
	}

	rows, err := s.db.QueryContext(ctx, selectByTenantSQL, tenant)
	if err != nil {
		return nil, classify(err, "LoadCustomComponents", "query components")
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		var schemaJSON []byte
		if err := rows.Scan(&r.Tenant, &r.Name, &r.SourceCategory, &r.SourceText, &schemaJSON,
			&r.ValidationStatus, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
				"componentstore", "LoadCustomComponents", "scan row")
		}
		r.EditableSchemaJSON = json.RawMessage(schemaJSON)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "LoadCustomComponents", "iterate rows")
	}

	s.logger.Debug("custom components loaded", "tenant", tenant, "count", len(records))
	return records, nil
}

// SaveCustomComponent inserts or replaces the record for (tenant, name).
// CreatedAt and UpdatedAt are set from the stored row.
func (s *Store) SaveCustomComponent(ctx context.Context, r *Record) (err error) {
	defer s.observe("save", time.Now(), &err)
	if r == nil {
		return errors.WrapInvalid(errors.ErrNilDependency, "componentstore", "SaveCustomComponent", "record cannot be nil")
	}
	if err := r.validate(); err != nil {
		return errors.WrapInvalid(err, "componentstore", "SaveCustomComponent", "check record")
	}

	schemaJSON := []byte(r.EditableSchemaJSON)
	if len(schemaJSON) == 0 {
		schemaJSON = []byte("{}")
	}

	now := s.now().UTC()
	err = s.db.QueryRowContext(ctx, upsertSQL,
		r.Tenant, r.Name, r.SourceCategory, r.SourceText, schemaJSON, r.ValidationStatus, now,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return classify(err, "SaveCustomComponent", "upsert component")
	}

	s.logger.Info("custom component saved",
		"tenant", r.Tenant, "kind", r.Name, "validation_status", r.ValidationStatus)
	return nil
}

// DeleteCustomComponent removes the record. A missing record is
// ErrComponentNotFound.
func (s *Store) DeleteCustomComponent(ctx context.Context, tenant, name string) (err error) {
	defer s.observe("delete", time.Now(), &err)
	if tenant == "" {
		return errors.WrapInvalid(errors.ErrTenantRequired, "componentstore", "DeleteCustomComponent", "check tenant")
	}

	res, err := s.db.ExecContext(ctx, deleteSQL, tenant, name)
	if err != nil {
		return classify(err, "DeleteCustomComponent", "delete component")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "DeleteCustomComponent", "rows affected")
	}
	if n == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s/%s", errors.ErrComponentNotFound, tenant, name),
			"componentstore", "DeleteCustomComponent", "delete component")
	}

	s.logger.Info("custom component deleted", "tenant", tenant, "kind", name)
	return nil
}

func (r *Record) validate() error {
	if r.Tenant == "" {
		return errors.ErrTenantRequired
	}
	if r.Name == "" {
		return fmt.Errorf("%w: component name is empty", errors.ErrInvalidData)
	}
	if r.SourceCategory == "" {
		return fmt.Errorf("%w: source category is empty", errors.ErrInvalidData)
	}
	switch r.ValidationStatus {
	case StatusValid, StatusWarnings, StatusInvalid:
	default:
		return fmt.Errorf("%w: unknown validation status %q", errors.ErrInvalidData, r.ValidationStatus)
	}
	if len(r.EditableSchemaJSON) > 0 && !json.Valid(r.EditableSchemaJSON) {
		return fmt.Errorf("%w: editable schema is not JSON", errors.ErrInvalidData)
	}
	return nil
}

// classify maps database errors onto the error taxonomy: connectivity and
// resource problems are transient, constraint violations are invalid.
func classify(err error, method, action string) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return errors.WrapTransient(err, "componentstore", method, action)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"),
			strings.HasPrefix(code, "57P"), code == "40001", code == "40P01":
			return errors.WrapTransient(err, "componentstore", method, action)
		case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"):
			return errors.WrapInvalid(err, "componentstore", method, action)
		default:
			return errors.WrapFatal(err, "componentstore", method, action)
		}
	}

	return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "componentstore", method, action)
}
