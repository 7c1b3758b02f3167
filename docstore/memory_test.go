package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"name": "RTX 4090"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"name": "something else"})
	require.NoError(t, err)
	assert.False(t, created)

	doc, err := store.Get(ctx, "gpus", "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, "RTX 4090", doc.String("name"))
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			created, err := store.CreateIfAbsent(ctx, "students", "alice", Doc{"writer": float64(n)})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	_, err := store.Get(ctx, "students", "alice")
	assert.NoError(t, err)
}

func TestUpdatePartial(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, "students", "bob", Doc{
		"name":                "Bob",
		"total_usage_seconds": float64(100),
	})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, "students", "bob", Doc{"total_usage_seconds": float64(225)}))

	doc, err := store.Get(ctx, "students", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", doc.String("name"))
	assert.Equal(t, float64(225), doc.Float("total_usage_seconds"))
}

func TestUpdateMissingDoc(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), "gpus", "nope", Doc{"status": "in-use"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissingDoc(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "gpus", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServerTimestampResolved(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.NowFunc = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"session_started_at": ServerTimestamp})
	require.NoError(t, err)

	doc, err := store.Get(ctx, "gpus", "gpu-0")
	require.NoError(t, err)
	assert.True(t, fixed.Equal(doc.Time("session_started_at")))
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ch, cancel := store.Subscribe(ctx, "gpus")
	defer cancel()

	initial := <-ch
	assert.Empty(t, initial)

	_, err := store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"status": "available"})
	require.NoError(t, err)

	snapshot := <-ch
	require.Contains(t, snapshot, "gpu-0")
	assert.Equal(t, "available", snapshot["gpu-0"].String("status"))

	require.NoError(t, store.Update(ctx, "gpus", "gpu-0", Doc{"status": "in-use"}))
	snapshot = <-ch
	assert.Equal(t, "in-use", snapshot["gpu-0"].String("status"))
}

func TestSubscribeSnapshotDoesNotAliasStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"status": "available"})
	require.NoError(t, err)

	ch, cancel := store.Subscribe(ctx, "gpus")
	defer cancel()

	snapshot := <-ch
	snapshot["gpu-0"]["status"] = "mutated"

	doc, err := store.Get(ctx, "gpus", "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, "available", doc.String("status"))
}

func TestSubscribeDoc(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ch, cancel := store.SubscribeDoc(ctx, "students", "alice")
	defer cancel()

	initial := <-ch
	assert.Nil(t, initial)

	_, err := store.CreateIfAbsent(ctx, "students", "alice", Doc{"name": "Alice"})
	require.NoError(t, err)
	doc := <-ch
	require.NotNil(t, doc)
	assert.Equal(t, "Alice", doc.String("name"))

	// A different document must not wake this subscriber.
	_, err = store.CreateIfAbsent(ctx, "students", "bob", Doc{"name": "Bob"})
	require.NoError(t, err)
	select {
	case doc := <-ch:
		t.Fatalf("unexpected snapshot: %v", doc)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesStream(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ch, cancel := store.Subscribe(ctx, "gpus")
	<-ch
	cancel()

	_, err := store.CreateIfAbsent(ctx, "gpus", "gpu-0", Doc{"status": "available"})
	require.NoError(t, err)

	_, ok := <-ch
	assert.False(t, ok, "stream must be closed after cancel")
}
