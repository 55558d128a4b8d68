package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"telerelay/internal/constants"
	"telerelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, cfg models.Config) string {
	t.Helper()

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func minimalConfig() models.Config {
	return models.Config{
		Gateway:  models.GatewayConfig{BaseURL: "http://gateway:8090"},
		Sender:   models.SenderConfig{BaseURL: "http://sender:8091", Token: "test-token"},
		Database: models.DatabaseConfig{Path: "/var/lib/telerelay/relay.db"},
		Sessions: models.SessionsConfig{ArtifactDir: "/var/lib/telerelay/sessions"},
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRestoreAttempts, cfg.Sessions.RestoreAttempts)
	assert.Equal(t, constants.DefaultRestoreDelaySec, cfg.Sessions.RestoreDelaySec)
	assert.Equal(t, constants.DefaultHealthSweepIntervalSec, cfg.Sessions.HealthSweepIntervalSec)
	assert.Equal(t, constants.DefaultMaxRecoveryAttempts, cfg.Sessions.MaxRecoveryAttempts)
	assert.Equal(t, constants.DefaultRecoveryCooldownSec, cfg.Sessions.RecoveryCooldownSec)
	assert.Equal(t, constants.DefaultQueueShutdownTimeoutSec, cfg.Relay.ShutdownTimeoutSec)
	assert.Equal(t, constants.DefaultValidationAttempts, cfg.Relay.ValidationAttempts)
	assert.Equal(t, constants.DefaultBackupRetentionDays, cfg.Sessions.BackupRetentionDays)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestLoadConfigPreservesExplicitValues(t *testing.T) {
	cfg := minimalConfig()
	cfg.Server.Port = 9000
	cfg.Sessions.RestoreAttempts = 5
	cfg.Sessions.HealthSweepIntervalSec = 60
	path := writeConfig(t, cfg)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, loaded.Server.Port)
	assert.Equal(t, 5, loaded.Sessions.RestoreAttempts)
	assert.Equal(t, 60, loaded.Sessions.HealthSweepIntervalSec)
}

func TestLoadConfigMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr error
	}{
		{"missing gateway URL", func(c *models.Config) { c.Gateway.BaseURL = "" }, ErrMissingGatewayURL},
		{"missing sender URL", func(c *models.Config) { c.Sender.BaseURL = "" }, ErrMissingSenderURL},
		{"missing db path", func(c *models.Config) { c.Database.Path = "" }, ErrMissingDBPath},
		{"missing artifact dir", func(c *models.Config) { c.Sessions.ArtifactDir = "" }, ErrMissingArtifacts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig()
			tt.mutate(&cfg)
			path := writeConfig(t, cfg)

			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigInvalidPort(t *testing.T) {
	cfg := minimalConfig()
	cfg.Server.Port = 70000
	path := writeConfig(t, cfg)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsTraversalPath(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TELERELAY_GATEWAY_URL", "http://override:1234")
	t.Setenv("TELERELAY_SENDER_TOKEN", "env-token")
	t.Setenv("TELERELAY_APP_ID", "777")
	t.Setenv("TELERELAY_APP_HASH", "env-hash")
	t.Setenv("DB_PATH", "/tmp/override.db")

	cfg := minimalConfig()
	cfg.Sender.Token = ""
	path := writeConfig(t, cfg)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:1234", loaded.Gateway.BaseURL)
	assert.Equal(t, "env-token", loaded.Sender.Token)
	assert.Equal(t, int64(777), loaded.Gateway.DefaultAppID)
	assert.Equal(t, "env-hash", loaded.Gateway.DefaultAppHash)
	assert.Equal(t, "/tmp/override.db", loaded.Database.Path)
}

func TestProductionRequiresSenderToken(t *testing.T) {
	t.Setenv("TELERELAY_ENV", "production")

	cfg := minimalConfig()
	cfg.Sender.Token = ""
	path := writeConfig(t, cfg)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("TELERELAY_ENV", "production")

	cfg := minimalConfig()
	cfg.LogLevel = "debug"
	path := writeConfig(t, cfg)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
