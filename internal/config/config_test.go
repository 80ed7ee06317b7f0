package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"DATA_DIR", "SYNC_MAX_ACTIVITIES", "SYNC_HOUR", "DEFAULT_MONTHLY_GOAL", "DB_CONNECTION", "S3_BUCKET", "STRAVA_CLIENT_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, filepath.Join("data", "running_data.csv"), cfg.DatasetPath())
	assert.Equal(t, filepath.Join("data", "app_config.json"), cfg.SettingsPath())
	assert.Equal(t, 1000, cfg.SyncMaxActivities)
	assert.Equal(t, 8, cfg.SyncHour)
	assert.Equal(t, 100.0, cfg.DefaultMonthlyGoal)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.MirrorEnabled())
	assert.False(t, cfg.BackupEnabled())
	assert.False(t, cfg.HasStravaCredentials())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATA_DIR", "/var/lib/runboard")
	t.Setenv("SETTINGS_FILE", "/etc/runboard/settings.json")
	t.Setenv("SYNC_MAX_ACTIVITIES", "250")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("DEFAULT_MONTHLY_GOAL", "160.5")
	t.Setenv("STRAVA_CLIENT_ID", "1")
	t.Setenv("STRAVA_CLIENT_SECRET", "2")
	t.Setenv("STRAVA_REFRESH_TOKEN", "3")

	cfg := Load()

	assert.Equal(t, "/var/lib/runboard/running_data.csv", cfg.DatasetPath())
	assert.Equal(t, "/etc/runboard/settings.json", cfg.SettingsPath())
	assert.Equal(t, 250, cfg.SyncMaxActivities)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 160.5, cfg.DefaultMonthlyGoal)
	assert.True(t, cfg.HasStravaCredentials())
}

func TestLoadClampsOutOfRange(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SYNC_MAX_ACTIVITIES", "5000")
	t.Setenv("SYNC_HOUR", "25")
	t.Setenv("DEFAULT_MONTHLY_GOAL", "-3")
	t.Setenv("HTTP_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 1000, cfg.SyncMaxActivities)
	assert.Equal(t, 8, cfg.SyncHour)
	assert.Equal(t, 100.0, cfg.DefaultMonthlyGoal)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
