package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	Port    string

	// Data files (dataset CSV and settings JSON live in DataDir unless
	// given as absolute paths)
	DataDir      string
	DatasetFile  string
	SettingsFile string
	BudgetFile   string // upstream request budget shared by CLI runs and the server

	// Strava
	StravaClientID     string
	StravaClientSecret string
	StravaRefreshToken string
	StravaAPIURL       string
	StravaAuthURL      string
	HTTPTimeout        time.Duration

	// Sync
	SyncMaxActivities  int
	SyncHour           int // local hour after which a daily sync is due
	DefaultMonthlyGoal float64

	// Mirror database (optional, empty DB_CONNECTION disables it)
	DBDriver     string
	DBConnection string

	// Observability (optional)
	SentryDSN string

	// Backup storage (optional, empty S3_BUCKET disables it)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for S3-compatible services (MinIO, R2, etc.)
	S3Prefix    string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Running Analytics"),
		AppEnv:  envString("APP_ENV", "development"),
		Port:    envString("PORT", "8090"),

		// Data files
		DataDir:      envString("DATA_DIR", "./data"),
		DatasetFile:  envString("DATASET_FILE", "running_data.csv"),
		SettingsFile: envString("SETTINGS_FILE", "app_config.json"),
		BudgetFile:   envString("BUDGET_FILE", "strava_budget.json"),

		// Strava (credentials are checked when a sync runs, the dashboard
		// works without them)
		StravaClientID:     envString("STRAVA_CLIENT_ID", ""),
		StravaClientSecret: envString("STRAVA_CLIENT_SECRET", ""),
		StravaRefreshToken: envString("STRAVA_REFRESH_TOKEN", ""),
		StravaAPIURL:       envString("STRAVA_API_URL", "https://www.strava.com/api/v3"),
		StravaAuthURL:      envString("STRAVA_AUTH_URL", "https://www.strava.com"),
		HTTPTimeout:        envDuration("HTTP_TIMEOUT", 30*time.Second),

		// Sync
		SyncMaxActivities:  envInt("SYNC_MAX_ACTIVITIES", 1000),
		SyncHour:           envInt("SYNC_HOUR", 8),
		DefaultMonthlyGoal: envFloat("DEFAULT_MONTHLY_GOAL", 100),

		// Mirror database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Backup storage
		S3Region:    envString("S3_REGION", "us-east-1"),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
		S3Prefix:    envString("S3_PREFIX", "runboard/"),
	}

	cfg.normalize()
	return cfg
}

// normalize clamps values that have hard upstream or calendar bounds.
func (c *Config) normalize() {
	if c.SyncMaxActivities <= 0 || c.SyncMaxActivities > 1000 {
		slog.Warn("config SYNC_MAX_ACTIVITIES out of range, using 1000", "value", c.SyncMaxActivities)
		c.SyncMaxActivities = 1000
	}
	if c.SyncHour < 0 || c.SyncHour > 23 {
		slog.Warn("config SYNC_HOUR out of range, using 8", "value", c.SyncHour)
		c.SyncHour = 8
	}
	if c.DefaultMonthlyGoal <= 0 {
		c.DefaultMonthlyGoal = 100
	}
}

func (c *Config) DatasetPath() string {
	return c.dataPath(c.DatasetFile)
}

func (c *Config) SettingsPath() string {
	return c.dataPath(c.SettingsFile)
}

func (c *Config) BudgetPath() string {
	return c.dataPath(c.BudgetFile)
}

func (c *Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) HasStravaCredentials() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != "" && c.StravaRefreshToken != ""
}

func (c *Config) MirrorEnabled() bool {
	return c.DBConnection != ""
}

func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != ""
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config invalid number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config with only public/safe fields.
// Strava credentials, storage keys and connection strings are excluded.
// Safe to expose in ctx and templates.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:           c.AppName,
		AppEnv:            c.AppEnv,
		Port:              c.Port,
		SyncMaxActivities: c.SyncMaxActivities,
		SyncHour:          c.SyncHour,
	}
}
