package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
env: production
server:
  port: 9090
database:
  driver: postgres
  host: db.internal
  name: photos
analysis:
  min_confidence: 0.5
  use_thumbnail: false
  scene_keywords: [beach, night]
  place_type_labels:
    museum: Museum
providers:
  timeout: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 0.5, cfg.Analysis.MinConfidence)
	assert.False(t, cfg.Analysis.UseThumbnail)
	assert.Equal(t, []string{"beach", "night"}, cfg.Analysis.SceneKeywords)
	assert.Equal(t, "Museum", cfg.Analysis.PlaceTypeLabels["museum"])
	assert.Equal(t, 30*time.Second, cfg.Providers.Timeout)

	// untouched fields fall back to defaults
	assert.Equal(t, 0.95, cfg.Analysis.PersistThreshold)
	assert.Equal(t, 3, cfg.Analysis.MaxParallelism)
	assert.Equal(t, int64(2), cfg.Analysis.Categories.Location)
	assert.Equal(t, "photo-originals", cfg.Minio.OriginalsBucket)
	assert.Equal(t, 4*1024*1024, cfg.MaxPayloadBytes())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANALYSIS_MAX_PARALLELISM", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, 8, cfg.Analysis.MaxParallelism)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.True(t, cfg.Analysis.UseThumbnail)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 0.7, cfg.Analysis.MinConfidence)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	assert.ErrorContains(t, err, "database.driver")

	_, err = Load(writeConfig(t, "analysis:\n  min_confidence: 1.5\n"))
	assert.ErrorContains(t, err, "min_confidence")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := newConfig()
	cfg.Database = DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "photos", SSLMode: "disable"}

	assert.Equal(t, "u:p@tcp(db:3306)/photos?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())
	assert.Contains(t, cfg.MySQLMigrateDSN(), "multiStatements=true")

	cfg.Database.Driver = "postgres"
	cfg.Database.Port = 5432
	assert.Equal(t, "postgres://u:p@db:5432/photos?sslmode=disable", cfg.DSN())
}
