package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/config"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/planning.db", cfg.Database.Path)
	assert.Equal(t, "./configs/catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, 0, cfg.Fatigue.WindowDays)
	assert.Len(t, cfg.Server.CORSOrigins, 2)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"PLANNING_PORT":                "9090",
		"PLANNING_DB_PATH":             ":memory:",
		"PLANNING_CATALOG_PATH":        "/etc/planning/catalog.yaml",
		"PLANNING_FATIGUE_WINDOW_DAYS": "28",
		"PLANNING_LOG_LEVEL":           "debug",
		"PLANNING_LOG_FORMAT":          "json",
		"PLANNING_CORS_ORIGINS":        "https://planning.example.org",
		"PLANNING_SHUTDOWN_TIMEOUT":    "30s",
		"PORT":                         "1", // unprefixed, ignored
	})

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "/etc/planning/catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, 28, cfg.Fatigue.WindowDays)
	assert.Equal(t, []string{"https://planning.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	lc := cfg.Logging()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestLoadFrom_Invalid(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"PLANNING_FATIGUE_WINDOW_DAYS": "-3"})
	assert.ErrorContains(t, err, "FATIGUE_WINDOW_DAYS")

	_, err = config.LoadFrom(map[string]string{"PLANNING_FATIGUE_WINDOW_DAYS": "soon"})
	assert.Error(t, err)

	_, err = config.LoadFrom(map[string]string{"PLANNING_LOG_LEVEL": "loud"})
	assert.ErrorContains(t, err, "log level")
}
