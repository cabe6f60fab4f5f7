package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AGENDEI_BACKEND_KEY", "secret")
	path := writeConfig(t, `
backend:
  base_url: "https://api.example.com"
  api_key: "${AGENDEI_BACKEND_KEY}"
database:
  path: "journal.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Backend.APIKey)
	assert.Equal(t, "America/Sao_Paulo", cfg.Booking.Timezone)
	assert.Equal(t, WindowConfig{Start: 0, End: 1}, cfg.Booking.EagerWindow)
	assert.Equal(t, WindowConfig{Start: 0, End: 31}, cfg.Booking.LazyWindow)
	assert.Equal(t, 30*time.Minute, cfg.Booking.SessionTTL())
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout())
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "${AGENDEI_TEST_BASE_URL}"
`)
	require.NoError(t, os.WriteFile(".env", []byte("AGENDEI_TEST_BASE_URL=http://backend.local\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AGENDEI_TEST_BASE_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.local", cfg.Backend.BaseURL)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := Load("does-not-exist.yaml")
		assert.Error(t, err)
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeConfig(t, "backend: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := Load(writeConfig(t, "app:\n  name: x\n"))
		assert.ErrorContains(t, err, "base_url")
	})
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Backend: BackendConfig{BaseURL: "http://b"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Backend.BaseURL = " " }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "empty eager window", mutate: func(c *Config) { c.Booking.EagerWindow = WindowConfig{Start: 1, End: 1} }, wantErr: true},
		{name: "negative lazy start", mutate: func(c *Config) { c.Booking.LazyWindow = WindowConfig{Start: -1, End: 31} }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTelegram(t *testing.T) {
	cfg := Config{Telegram: TelegramConfig{BotToken: "YOUR_BOT_TOKEN_HERE", CompanyID: "co-1"}}
	assert.Error(t, cfg.ValidateTelegram())

	cfg.Telegram.BotToken = "123:abc"
	assert.NoError(t, cfg.ValidateTelegram())

	cfg.Telegram.CompanyID = ""
	assert.Error(t, cfg.ValidateTelegram())
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "configs/config.yaml", Path())
	t.Setenv("CONFIG_PATH", "/etc/agendei.yaml")
	assert.Equal(t, "/etc/agendei.yaml", Path())
}
