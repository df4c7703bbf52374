package page

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semblocks/errors"
	"github.com/c360/semblocks/schema"
)

// Visibility controls who may view a published page
type Visibility string

// Visibility values
const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Instance is one placed block: a kind name plus its configuration. Config
// is never nil on a page, so an empty configuration encodes as {}.
type Instance struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config"`
}

// NewInstance creates an instance with a fresh id. config is copied.
func NewInstance(kind string, config map[string]any) Instance {
	return Instance{ID: uuid.NewString(), Kind: kind, Config: copyConfig(config)}
}

// Clone returns a deep copy of the instance
func (i Instance) Clone() Instance {
	i.Config = schema.CopyConfig(i.Config)
	return i
}

func copyConfig(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return schema.CopyConfig(config)
}

// Page is an ordered sequence of block instances with page metadata.
type Page struct {
	ID         string     `json:"id"`
	Tenant     string     `json:"tenant"`
	Slug       string     `json:"slug"`
	Title      string     `json:"title,omitempty"`
	Visibility Visibility `json:"visibility"`
	Published  bool       `json:"published"`

	// Version for optimistic concurrency control
	Version int64 `json:"version"`

	Blocks []Instance `json:"blocks"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an empty public, unpublished page with a fresh id.
func New(tenant, slug string) *Page {
	return &Page{
		ID:         uuid.NewString(),
		Tenant:     tenant,
		Slug:       slug,
		Visibility: VisibilityPublic,
		Blocks:     []Instance{},
	}
}

// Key identifies the page across tenants.
func (p *Page) Key() string {
	return p.Tenant + "." + p.ID
}

// Len returns the number of instances
func (p *Page) Len() int {
	return len(p.Blocks)
}

// IndexOf returns the position of the instance with id, or -1.
func (p *Page) IndexOf(id string) int {
	for i, inst := range p.Blocks {
		if inst.ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the instance with id.
func (p *Page) Get(id string) (Instance, bool) {
	i := p.IndexOf(id)
	if i < 0 {
		return Instance{}, false
	}
	return p.Blocks[i].Clone(), true
}

// Instances returns a deep copy of the instances in page order.
func (p *Page) Instances() []Instance {
	out := make([]Instance, len(p.Blocks))
	for i, inst := range p.Blocks {
		out[i] = inst.Clone()
	}
	return out
}

// Insert places inst at index, shifting later instances back. index may
// equal Len to append. An empty inst.ID is filled with a fresh one.
func (p *Page) Insert(index int, inst Instance) error {
	if index < 0 || index > len(p.Blocks) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: insert at %d, page has %d blocks", errors.ErrIndexOutOfRange, index, len(p.Blocks)),
			"Page", "Insert", "index check")
	}
	if inst.Kind == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: instance has no kind", errors.ErrInvalidData), "Page", "Insert", "kind check")
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if p.IndexOf(inst.ID) >= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateInstance, inst.ID), "Page", "Insert", "id check")
	}

	inst.Config = copyConfig(inst.Config)
	p.Blocks = append(p.Blocks, Instance{})
	copy(p.Blocks[index+1:], p.Blocks[index:])
	p.Blocks[index] = inst
	return nil
}

// Append adds inst at the end of the page.
func (p *Page) Append(inst Instance) error {
	return p.Insert(len(p.Blocks), inst)
}

// Remove deletes the instance with id and returns it.
func (p *Page) Remove(id string) (Instance, error) {
	i := p.IndexOf(id)
	if i < 0 {
		return Instance{}, notFound(id, "Remove")
	}
	removed := p.Blocks[i]
	p.Blocks = append(p.Blocks[:i], p.Blocks[i+1:]...)
	return removed, nil
}

// Move relocates the instance with id so that it ends up at newIndex.
func (p *Page) Move(id string, newIndex int) error {
	from := p.IndexOf(id)
	if from < 0 {
		return notFound(id, "Move")
	}
	if newIndex < 0 || newIndex >= len(p.Blocks) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: move to %d, page has %d blocks", errors.ErrIndexOutOfRange, newIndex, len(p.Blocks)),
			"Page", "Move", "index check")
	}
	if from == newIndex {
		return nil
	}
	inst := p.Blocks[from]
	if from < newIndex {
		copy(p.Blocks[from:newIndex], p.Blocks[from+1:newIndex+1])
	} else {
		copy(p.Blocks[newIndex+1:from+1], p.Blocks[newIndex:from])
	}
	p.Blocks[newIndex] = inst
	return nil
}

// SetConfig replaces the configuration of the instance with id.
func (p *Page) SetConfig(id string, config map[string]any) error {
	i := p.IndexOf(id)
	if i < 0 {
		return notFound(id, "SetConfig")
	}
	p.Blocks[i].Config = copyConfig(config)
	return nil
}

// Clone returns a deep copy of the page
func (p *Page) Clone() *Page {
	out := *p
	out.Blocks = p.Instances()
	return &out
}

// Validate re-checks the page invariants, typically after loading.
func (p *Page) Validate() error {
	if p.ID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: page id is empty", errors.ErrInvalidData), "Page", "Validate", "id check")
	}
	if p.Tenant == "" {
		return errors.WrapInvalid(errors.ErrTenantRequired, "Page", "Validate", "tenant check")
	}
	switch p.Visibility {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown visibility %q", errors.ErrInvalidData, p.Visibility),
			"Page", "Validate", "visibility check")
	}
	seen := make(map[string]int, len(p.Blocks))
	for i, inst := range p.Blocks {
		if inst.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: block at index %d has empty id", errors.ErrInvalidData, i),
				"Page", "Validate", "block id check")
		}
		if inst.Kind == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: block %s has empty kind", errors.ErrInvalidData, inst.ID),
				"Page", "Validate", "block kind check")
		}
		if prev, dup := seen[inst.ID]; dup {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s at index %d and %d", errors.ErrDuplicateInstance, inst.ID, prev, i),
				"Page", "Validate", "block id check")
		}
		seen[inst.ID] = i
	}
	return nil
}

func notFound(id, method string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInstanceNotFound, id), "Page", method, "instance lookup")
}
