package natsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T, opts ...func(*KVOptions)) (*KVStore, *MemoryBucket) {
	t.Helper()
	bucket := NewMemoryBucket("test_bucket")
	return NewKVStore(bucket, opts...), bucket
}

func TestKVStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t)

	rev, err := kv.Create(ctx, "page.a", []byte("v1"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "page.a", []byte("again"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "page.a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	newRev, err := kv.Update(ctx, "page.a", []byte("v2"), rev)
	require.NoError(t, err)
	assert.Greater(t, newRev, rev)

	_, err = kv.Update(ctx, "page.a", []byte("stale"), rev)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)
	assert.True(t, IsKVConflictError(err))
}

func TestKVStore_GetMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t)

	_, err := kv.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
	assert.True(t, IsKVNotFoundError(err))

	_, err = kv.Put(ctx, "k", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, kv.Delete(ctx, "k"))

	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	// A deleted key can be created again.
	_, err = kv.Create(ctx, "k", []byte("y"))
	assert.NoError(t, err)
}

func TestKVStore_ValueSizeLimit(t *testing.T) {
	kv, _ := newTestKV(t, func(o *KVOptions) { o.MaxValueSize = 4 })

	_, err := kv.Put(context.Background(), "k", []byte("12345"))
	assert.ErrorIs(t, err, ErrKVValueTooLarge)
}

func TestKVStore_Keys(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t)

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, k := range []string{"acme.home", "acme.about", "globex.home"} {
		_, err := kv.Put(ctx, k, []byte("{}"))
		require.NoError(t, err)
	}

	keys, err = kv.Keys(ctx, "acme.")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.about", "acme.home"}, keys)
}

func TestKVStore_UpdateWithRetry_CreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t)

	require.NoError(t, kv.UpdateWithRetry(ctx, "counter", func(cur []byte) ([]byte, error) {
		assert.Nil(t, cur)
		return []byte("1"), nil
	}))
	require.NoError(t, kv.UpdateWithRetry(ctx, "counter", func(cur []byte) ([]byte, error) {
		return append(cur, '1'), nil
	}))

	entry, err := kv.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "11", string(entry.Value))
}

func TestKVStore_UpdateWithRetry_FunctionErrorIsNotRetried(t *testing.T) {
	kv, _ := newTestKV(t)
	calls := 0
	err := kv.UpdateWithRetry(context.Background(), "k", func([]byte) ([]byte, error) {
		calls++
		return nil, errors.New("refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestKVStore_UpdateWithRetry_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t, func(o *KVOptions) {
		o.MaxRetries = 50
		o.RetryDelay = time.Millisecond
		o.MaxRetryDelay = 5 * time.Millisecond
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kv.UpdateWithRetry(ctx, "n", func(cur []byte) ([]byte, error) {
				var n int
				if cur != nil {
					_, _ = fmt.Sscanf(string(cur), "%d", &n)
				}
				return []byte(fmt.Sprint(n + 1)), nil
			}))
		}()
	}
	wg.Wait()

	entry, err := kv.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "10", string(entry.Value))
}

func TestKVStore_PropagatesBackendErrors(t *testing.T) {
	kv, bucket := newTestKV(t)
	bucket.FailNext = errors.New("nats: timeout")

	_, err := kv.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, IsKVNotFoundError(err))
	assert.Contains(t, err.Error(), "timeout")
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err      error
		notFound bool
		conflict bool
	}{
		{nil, false, false},
		{ErrKVKeyNotFound, true, false},
		{errors.New("nats: key not found"), true, false},
		{ErrKVRevisionMismatch, false, true},
		{errors.New("nats: wrong last sequence: 4"), false, true},
		{errors.New("something else"), false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.notFound, IsKVNotFoundError(tt.err), "%v", tt.err)
		assert.Equal(t, tt.conflict, IsKVConflictError(tt.err), "%v", tt.err)
	}
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222", WithName("semblocks-test"), WithToken("t"))
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)

	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, c.Close(context.Background()))
}
