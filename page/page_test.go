package page

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/errors"
)

func ids(p *Page) []string {
	out := make([]string, 0, p.Len())
	for _, inst := range p.Blocks {
		out = append(out, inst.ID)
	}
	return out
}

func samplePage(t *testing.T, blockIDs ...string) *Page {
	t.Helper()
	p := New("acme", "home")
	for _, id := range blockIDs {
		require.NoError(t, p.Append(Instance{ID: id, Kind: "Hero"}))
	}
	return p
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		inst    Instance
		want    []string
		wantErr error
	}{
		{name: "front", index: 0, inst: Instance{ID: "x", Kind: "Hero"}, want: []string{"x", "a", "b", "c"}},
		{name: "middle", index: 2, inst: Instance{ID: "x", Kind: "Hero"}, want: []string{"a", "b", "x", "c"}},
		{name: "end", index: 3, inst: Instance{ID: "x", Kind: "Hero"}, want: []string{"a", "b", "c", "x"}},
		{name: "negative index", index: -1, inst: Instance{ID: "x", Kind: "Hero"}, wantErr: errors.ErrIndexOutOfRange},
		{name: "past end", index: 4, inst: Instance{ID: "x", Kind: "Hero"}, wantErr: errors.ErrIndexOutOfRange},
		{name: "duplicate id", index: 0, inst: Instance{ID: "b", Kind: "Hero"}, wantErr: errors.ErrDuplicateInstance},
		{name: "no kind", index: 0, inst: Instance{ID: "x"}, wantErr: errors.ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePage(t, "a", "b", "c")
			err := p.Insert(tt.index, tt.inst)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsInvalid(err))
				assert.Equal(t, []string{"a", "b", "c"}, ids(p))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p))
		})
	}
}

func TestInsert_GeneratesIDAndCopiesConfig(t *testing.T) {
	p := samplePage(t)
	cfg := map[string]any{"title": "Hello"}
	require.NoError(t, p.Insert(0, Instance{Kind: "Hero", Config: cfg}))

	require.Equal(t, 1, p.Len())
	assert.NotEmpty(t, p.Blocks[0].ID)

	cfg["title"] = "changed"
	assert.Equal(t, "Hello", p.Blocks[0].Config["title"])
}

func TestRemove(t *testing.T) {
	p := samplePage(t, "a", "b", "c")

	removed, err := p.Remove("b")
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)
	assert.Equal(t, []string{"a", "c"}, ids(p))
	assert.Equal(t, 1, p.IndexOf("c"))

	_, err = p.Remove("b")
	assert.ErrorIs(t, err, errors.ErrInstanceNotFound)
	assert.True(t, errors.IsInvalid(err))
}

func TestMove(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		to      int
		want    []string
		wantErr error
	}{
		{name: "forward", id: "a", to: 2, want: []string{"b", "c", "a", "d"}},
		{name: "backward", id: "d", to: 1, want: []string{"a", "d", "b", "c"}},
		{name: "to end", id: "b", to: 3, want: []string{"a", "c", "d", "b"}},
		{name: "to front", id: "c", to: 0, want: []string{"c", "a", "b", "d"}},
		{name: "same place", id: "b", to: 1, want: []string{"a", "b", "c", "d"}},
		{name: "unknown id", id: "z", to: 0, wantErr: errors.ErrInstanceNotFound},
		{name: "index past end", id: "a", to: 4, wantErr: errors.ErrIndexOutOfRange},
		{name: "negative index", id: "a", to: -1, wantErr: errors.ErrIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePage(t, "a", "b", "c", "d")
			err := p.Move(tt.id, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, []string{"a", "b", "c", "d"}, ids(p))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p))
			require.NoError(t, p.Validate())
		})
	}
}

func TestSetConfigAndGet(t *testing.T) {
	p := samplePage(t, "a")

	require.NoError(t, p.SetConfig("a", map[string]any{"title": "New"}))
	inst, ok := p.Get("a")
	require.True(t, ok)
	assert.Equal(t, "New", inst.Config["title"])

	inst.Config["title"] = "mutated copy"
	again, _ := p.Get("a")
	assert.Equal(t, "New", again.Config["title"])

	assert.ErrorIs(t, p.SetConfig("zzz", nil), errors.ErrInstanceNotFound)
	_, ok = p.Get("zzz")
	assert.False(t, ok)
}

func TestInstancesIsACopy(t *testing.T) {
	p := samplePage(t, "a", "b")
	list := p.Instances()
	list[0].ID = "changed"
	assert.Equal(t, []string{"a", "b"}, ids(p))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Page)
		wantErr error
	}{
		{name: "valid", mutate: func(*Page) {}},
		{name: "missing id", mutate: func(p *Page) { p.ID = "" }, wantErr: errors.ErrInvalidData},
		{name: "missing tenant", mutate: func(p *Page) { p.Tenant = "" }, wantErr: errors.ErrTenantRequired},
		{name: "bad visibility", mutate: func(p *Page) { p.Visibility = "secret" }, wantErr: errors.ErrInvalidData},
		{
			name:    "duplicate block",
			mutate:  func(p *Page) { p.Blocks = append(p.Blocks, Instance{ID: "a", Kind: "Hero"}) },
			wantErr: errors.ErrDuplicateInstance,
		},
		{
			name:    "block without kind",
			mutate:  func(p *Page) { p.Blocks[0].Kind = "" },
			wantErr: errors.ErrInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePage(t, "a", "b")
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	p := New("acme", "about")
	p.Title = "About <us>"
	p.Published = true
	p.Version = 7
	p.CreatedAt = time.Date(2024, 5, 1, 10, 30, 0, 123, time.UTC)
	p.UpdatedAt = p.CreatedAt
	require.NoError(t, p.Append(Instance{ID: "z", Kind: "Hero", Config: map[string]any{
		"title": "Hi", "min_height": 480, "ratio": 1.5, "cta": map[string]any{"b": 1, "a": "x"},
	}}))
	require.NoError(t, p.Append(Instance{ID: "a", Kind: "Spacer"}))
	require.NoError(t, p.Append(Instance{ID: "m", Kind: "CardGrid", Config: map[string]any{
		"cards": []any{map[string]any{"title": "One"}, map[string]any{"title": "Two"}},
	}}))
	require.NoError(t, p.Append(Instance{ID: "e", Kind: "Divider", Config: map[string]any{}}))

	first, err := Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(first), `{"id":"a","kind":"Spacer","config":{}}`)
	assert.Contains(t, string(first), `{"id":"e","kind":"Divider","config":{}}`)

	loaded, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m", "e"}, ids(loaded))
	require.NotNil(t, loaded.Blocks[1].Config)
	assert.Empty(t, loaded.Blocks[1].Config)
	if diff := cmp.Diff(map[string]any{}, loaded.Blocks[3].Config); diff != "" {
		t.Errorf("empty config mismatch (-want +got):\n%s", diff)
	}

	second, err := Marshal(loaded)
	require.NoError(t, err)
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("re-encoded page differs (-first +second):\n%s", diff)
	}

	n, ok := loaded.Blocks[0].Config["min_height"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, "480", n.String())
}

func TestUnmarshal_MissingConfigLoadsEmpty(t *testing.T) {
	tests := []struct {
		name string
		inst string
	}{
		{name: "absent", inst: `{"id":"a","kind":"Spacer"}`},
		{name: "null", inst: `{"id":"a","kind":"Spacer","config":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Unmarshal([]byte(`{"id":"p1","tenant":"t","visibility":"public","blocks":[` + tt.inst + `]}`))
			require.NoError(t, err)
			require.NotNil(t, p.Blocks[0].Config)

			data, err := Marshal(p)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"config":{}`)
		})
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{"id":`},
		{name: "missing tenant", data: `{"id":"p1","visibility":"public","blocks":[]}`},
		{
			name: "duplicate ids",
			data: `{"id":"p1","tenant":"t","visibility":"public","blocks":[{"id":"a","kind":"Hero"},{"id":"a","kind":"Hero"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestNewInstance(t *testing.T) {
	cfg := map[string]any{"height": 10}
	a := NewInstance("Spacer", cfg)
	b := NewInstance("Spacer", cfg)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "Spacer", a.Kind)
	cfg["height"] = 99
	assert.Equal(t, 10, a.Config["height"])
}

func TestKey(t *testing.T) {
	p := &Page{ID: "p1", Tenant: "acme"}
	assert.Equal(t, "acme.p1", p.Key())
}
