package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runboard/runboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSaveInvalidates(t *testing.T) {
	cache := NewCache(NewStore(filepath.Join(t.TempDir(), "running_data.csv")))

	_, err := cache.Snapshot()
	require.ErrorIs(t, err, ErrNoDataset)

	require.NoError(t, cache.Save([]model.Activity{run(1, "2025-01-01", 5000)}))

	snap, err := cache.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(snap.Activities))
}

func TestCacheWatchInvalidatesOnExternalWrite(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "running_data.csv"))
	require.NoError(t, store.Save([]model.Activity{run(1, "2025-01-01", 5000)}))

	cache := NewCache(store)
	snap, err := cache.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Activities, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cache.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, store.Save([]model.Activity{run(1, "2025-01-01", 5000), run(2, "2025-01-02", 3000)}))

	assert.Eventually(t, func() bool {
		snap, err := cache.Snapshot()
		return err == nil && len(snap.Activities) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCacheWatchMissingDir(t *testing.T) {
	cache := NewCache(NewStore(filepath.Join(t.TempDir(), "missing", "running_data.csv")))

	err := cache.Watch(context.Background())
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Dir(cache.Path()))
	assert.True(t, os.IsNotExist(statErr))
}
