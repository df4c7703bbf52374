package natsclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MemoryBucket is an in-process jetstream.KeyValue covering the operations
// KVStore uses. Revisions come from a bucket-wide sequence like a real stream.
// Methods outside that set are not implemented and panic if called.
type MemoryBucket struct {
	jetstream.KeyValue

	name string
	mu   sync.Mutex
	seq  uint64
	data map[string]*memoryEntry

	// FailNext, when set, is returned by the next operation and then cleared.
	FailNext error
}

// NewMemoryBucket creates an empty bucket
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, data: make(map[string]*memoryEntry)}
}

type memoryEntry struct {
	jetstream.KeyValueEntry

	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	deleted  bool
}

func (e *memoryEntry) Bucket() string                  { return e.bucket }
func (e *memoryEntry) Key() string                     { return e.key }
func (e *memoryEntry) Value() []byte                   { return append([]byte(nil), e.value...) }
func (e *memoryEntry) Revision() uint64                { return e.revision }
func (e *memoryEntry) Created() time.Time              { return e.created }
func (e *memoryEntry) Delta() uint64                   { return 0 }
func (e *memoryEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

func (b *MemoryBucket) takeFailure() error {
	err := b.FailNext
	b.FailNext = nil
	return err
}

func (b *MemoryBucket) write(key string, value []byte) uint64 {
	b.seq++
	b.data[key] = &memoryEntry{
		bucket:   b.name,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: b.seq,
		created:  time.Now(),
	}
	return b.seq
}

// Bucket returns the bucket name
func (b *MemoryBucket) Bucket() string {
	return b.name
}

// Get returns the live entry for key
func (b *MemoryBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return nil, err
	}
	e, ok := b.data[key]
	if !ok || e.deleted {
		return nil, jetstream.ErrKeyNotFound
	}
	cp := *e
	return &cp, nil
}

// Put writes unconditionally
func (b *MemoryBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return 0, err
	}
	return b.write(key, value), nil
}

// Create writes if key is absent or deleted
func (b *MemoryBucket) Create(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return 0, err
	}
	if e, ok := b.data[key]; ok && !e.deleted {
		return 0, jetstream.ErrKeyExists
	}
	return b.write(key, value), nil
}

// Update writes if the live revision equals last
func (b *MemoryBucket) Update(_ context.Context, key string, value []byte, last uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return 0, err
	}
	e, ok := b.data[key]
	var current uint64
	if ok {
		current = e.revision
	}
	if current != last {
		return 0, fmt.Errorf("nats: wrong last sequence: %d", current)
	}
	return b.write(key, value), nil
}

// Delete places a delete marker
func (b *MemoryBucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return err
	}
	b.seq++
	b.data[key] = &memoryEntry{bucket: b.name, key: key, revision: b.seq, created: time.Now(), deleted: true}
	return nil
}

// Keys lists live keys in sorted order
func (b *MemoryBucket) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(b.data))
	for k, e := range b.data {
		if !e.deleted {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	sort.Strings(keys)
	return keys, nil
}
