package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaults(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "app_config.json"), 120)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 120.0, s.MonthlyGoal)
	assert.Nil(t, s.LastUpdate)
}

func TestStoreSetMonthlyGoal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_config.json")
	store := NewStore(path, 100)

	t.Run("rejects non-positive goals", func(t *testing.T) {
		_, err := store.SetMonthlyGoal(0)
		assert.ErrorIs(t, err, ErrInvalidGoal)
		_, err = store.SetMonthlyGoal(-5)
		assert.ErrorIs(t, err, ErrInvalidGoal)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("persists the goal", func(t *testing.T) {
		s, err := store.SetMonthlyGoal(150)
		require.NoError(t, err)
		assert.Equal(t, 150.0, s.MonthlyGoal)

		reloaded, err := NewStore(path, 100).Load()
		require.NoError(t, err)
		assert.Equal(t, 150.0, reloaded.MonthlyGoal)
	})
}

func TestStoreMarkSyncedKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"monthly_goal": 80, "theme": "dark"}`), 0644))
	store := NewStore(path, 100)

	at := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	s, err := store.MarkSynced(at)
	require.NoError(t, err)
	require.NotNil(t, s.LastUpdate)
	assert.True(t, at.Equal(*s.LastUpdate))
	assert.Equal(t, 80.0, s.MonthlyGoal)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dark", raw["theme"])
	assert.Equal(t, "2025-03-04T09:30:00Z", raw["last_update"])
}

func TestStoreLegacyTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"monthly_goal": 100, "last_update": "2025-03-04T09:30:00.123456"}`), 0644))

	s, err := NewStore(path, 100).Load()
	require.NoError(t, err)
	require.NotNil(t, s.LastUpdate)
	assert.Equal(t, time.Date(2025, 3, 4, 9, 30, 0, 123456000, time.UTC), *s.LastUpdate)
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := NewStore(path, 100).Load()
	assert.Error(t, err)
}

func TestStoreConcurrentWritersKeepBothKeys(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "app_config.json"), 100)
	at := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.SetMonthlyGoal(140)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := store.MarkSynced(at)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 140.0, s.MonthlyGoal)
	require.NotNil(t, s.LastUpdate)
	assert.True(t, at.Equal(*s.LastUpdate))
}
