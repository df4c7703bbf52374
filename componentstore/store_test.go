package componentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/errors"
)

var (
	created = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	updated = time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
)

var columns = []string{
	"tenant_id", "name", "source_category", "source_text", "editable_schema_json",
	"validation_status", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, WithClock(func() time.Time { return updated }))
	require.NoError(t, err)
	return db, mock, store
}

func cardRecord() *Record {
	return &Record{
		Tenant:             "acme",
		Name:               "Card",
		SourceCategory:     "custom",
		SourceText:         `{{define "Card"}}<div>{{.title}}</div>{{end}}`,
		EditableSchemaJSON: json.RawMessage(`{"properties":{"title":{"type":"string"}}}`),
		ValidationStatus:   StatusValid,
	}
}

func TestNewRejectsNilDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNilDependency)
}

func TestEnsureSchema(t *testing.T) {
	_, mock, store := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS custom_components`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCustomComponents(t *testing.T) {
	_, mock, store := setupMockDB(t)

	rows := sqlmock.NewRows(columns).
		AddRow("acme", "Banner", "custom", `{{define "Banner"}}x{{end}}`, []byte(`{}`), StatusWarnings, created, updated).
		AddRow("acme", "Card", "custom", `{{define "Card"}}y{{end}}`, []byte(`{"properties":{}}`), StatusValid, created, updated)
	mock.ExpectQuery(`SELECT tenant_id, name`).WithArgs("acme").WillReturnRows(rows)

	records, err := store.LoadCustomComponents(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Banner", records[0].Name)
	assert.Equal(t, StatusWarnings, records[0].ValidationStatus)
	assert.Equal(t, "Card", records[1].Name)
	assert.JSONEq(t, `{"properties":{}}`, string(records[1].EditableSchemaJSON))
	assert.True(t, created.Equal(records[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCustomComponentsEmpty(t *testing.T) {
	_, mock, store := setupMockDB(t)
	mock.ExpectQuery(`SELECT tenant_id, name`).WithArgs("acme").WillReturnRows(sqlmock.NewRows(columns))

	records, err := store.LoadCustomComponents(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCustomComponentsRequiresTenant(t *testing.T) {
	_, _, store := setupMockDB(t)
	_, err := store.LoadCustomComponents(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrTenantRequired)
}

func TestSaveCustomComponentUpserts(t *testing.T) {
	_, mock, store := setupMockDB(t)
	r := cardRecord()

	mock.ExpectQuery(`INSERT INTO custom_components .* ON CONFLICT \(tenant_id, name\) DO UPDATE`).
		WithArgs("acme", "Card", "custom", r.SourceText, []byte(r.EditableSchemaJSON), StatusValid, updated).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	require.NoError(t, store.SaveCustomComponent(context.Background(), r))
	assert.True(t, created.Equal(r.CreatedAt))
	assert.True(t, updated.Equal(r.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCustomComponentDefaultsEmptySchema(t *testing.T) {
	_, mock, store := setupMockDB(t)
	r := cardRecord()
	r.EditableSchemaJSON = nil

	mock.ExpectQuery(`INSERT INTO custom_components`).
		WithArgs("acme", "Card", "custom", r.SourceText, []byte(`{}`), StatusValid, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	require.NoError(t, store.SaveCustomComponent(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCustomComponentRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{name: "no tenant", mutate: func(r *Record) { r.Tenant = "" }},
		{name: "no name", mutate: func(r *Record) { r.Name = "" }},
		{name: "no category", mutate: func(r *Record) { r.SourceCategory = "" }},
		{name: "unknown status", mutate: func(r *Record) { r.ValidationStatus = "pending" }},
		{name: "schema not json", mutate: func(r *Record) { r.EditableSchemaJSON = json.RawMessage(`{`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, store := setupMockDB(t)
			r := cardRecord()
			tt.mutate(r)

			err := store.SaveCustomComponent(context.Background(), r)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteCustomComponent(t *testing.T) {
	_, mock, store := setupMockDB(t)
	mock.ExpectExec(`DELETE FROM custom_components`).WithArgs("acme", "Card").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.DeleteCustomComponent(context.Background(), "acme", "Card"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCustomComponentNotFound(t *testing.T) {
	_, mock, store := setupMockDB(t)
	mock.ExpectExec(`DELETE FROM custom_components`).WithArgs("acme", "Ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteCustomComponent(context.Background(), "acme", "Ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentNotFound)
	assert.True(t, errors.IsInvalid(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{name: "connection failure", err: &pq.Error{Code: "08006"}, transient: true},
		{name: "too many connections", err: &pq.Error{Code: "53300"}, transient: true},
		{name: "serialization", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, invalid: true},
		{name: "bad text", err: &pq.Error{Code: "22P02"}, invalid: true},
		{name: "undefined table", err: &pq.Error{Code: "42P01"}, fatal: true},
		{name: "deadline", err: context.DeadlineExceeded, transient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, store := setupMockDB(t)
			mock.ExpectQuery(`SELECT tenant_id, name`).WithArgs("acme").WillReturnError(tt.err)

			_, err := store.LoadCustomComponents(context.Background(), "acme")
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.IsTransient(err))
			assert.Equal(t, tt.invalid, errors.IsInvalid(err))
			assert.Equal(t, tt.fatal, errors.IsFatal(err))
		})
	}
}
