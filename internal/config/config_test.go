package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 100, cfg.Ledger.StartingTokens)
	assert.Equal(t, 5, cfg.Ledger.EmailCost)
	assert.Equal(t, 10, cfg.Ledger.SchedulingCost)
	assert.Equal(t, 1000, cfg.Site.Capacity)
	assert.False(t, cfg.Auth.GoogleEnabled())
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg, err := Read()
	require.NoError(t, err, "read skips validation")
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("COST_EMAIL", "7")
	t.Setenv("DATASET_REFRESH", "5m")
	t.Setenv("DB_AUTO_MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 7, cfg.Ledger.EmailCost)
	assert.Equal(t, 5*time.Minute, cfg.Dataset.Refresh)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Contains(t, cfg.Database.DSN(), "port=6543")
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http:
  addr: ":9090"
ledger:
  starting_tokens: 50
  email_cost: 3
  scheduling_cost: 4
  audit_buffer: 16
auth:
  jwt_secret: from-file
dataset:
  url: s3://bucket/investors.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr, "env wins over file")
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 50, cfg.Ledger.StartingTokens)
	assert.Equal(t, 3, cfg.Ledger.EmailCost)
	assert.Equal(t, "s3://bucket/investors.csv", cfg.Dataset.URL)
}

func TestValidate_Costs(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "x"
	cfg.Ledger.SchedulingCost = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "costs")
}

func TestGoogleEnabled(t *testing.T) {
	c := AuthConfig{GoogleClientID: "id", GoogleClientSecret: "s", GoogleRedirectURL: "http://x/cb"}
	assert.True(t, c.GoogleEnabled())
	c.GoogleRedirectURL = ""
	assert.False(t, c.GoogleEnabled())
}
