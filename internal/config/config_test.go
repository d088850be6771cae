package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 4096, cfg.Provider.MaxTokens)
	assert.InDelta(t, 50.0, cfg.Classify.Threshold, 0.001)
	assert.Equal(t, 3, cfg.Years.ScanPages)
	assert.Equal(t, []string{"2024", "2023"}, cfg.Years.Fallback)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "pdftoppm", cfg.Render.PdftoppmPath)
	assert.Equal(t, 150, cfg.Render.DPI)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.InDelta(t, 3.0, cfg.Pricing.Anthropic["claude-sonnet-4-5-20250929"].Input, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
provider:
  name: openai
classify:
  threshold: 65
years:
  fallback: ["2023", "2022", "2021"]
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.InDelta(t, 65.0, cfg.Classify.Threshold, 0.001)
	assert.Equal(t, []string{"2023", "2022", "2021"}, cfg.Years.Fallback)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("STATEMENT_STORE_DRIVER", "postgres")
	t.Setenv("STATEMENT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvFallbackList(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STATEMENT_YEARS_FALLBACK", "2022, 2021")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2022", "2021"}, cfg.Years.Fallback)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STATEMENT_SERVER_PORT=3001\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("STATEMENT_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("provider: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadExplicitFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: openai\nserver:\n  port: 9090\n"), 0644))
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	chdirTemp(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Provider.Name = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Classify.Threshold = 50
	cfg.Years.ScanPages = 3
	cfg.Years.Fallback = []string{"2024", "2023"}
	cfg.Pipeline.Concurrency = 4
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "statement.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateExtract_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("extract"))
}

func TestValidateExtract_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "openai"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")
}

func TestValidateExtract_BadProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider.Name = "mistral"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.name")
}

func TestValidateExtract_PipelineLimits(t *testing.T) {
	cfg := validDefaults()
	cfg.Classify.Threshold = 150
	cfg.Pipeline.Concurrency = 0
	cfg.Years.Fallback = nil

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify.threshold")
	assert.Contains(t, err.Error(), "pipeline.concurrency")
	assert.Contains(t, err.Error(), "years.fallback")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateRuns_StoreOnly(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/statements"
	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidate_UnknownMode(t *testing.T) {
	assert.Error(t, validDefaults().Validate("bogus"))
}
