package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"telerelay/internal/constants"
	"telerelay/internal/models"
	"telerelay/internal/security"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing transport gateway URL"}
	ErrMissingSenderURL  = models.ConfigError{Message: "missing sender base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingArtifacts  = models.ConfigError{Message: "missing session artifact directory"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.BaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Sender.BaseURL == "" {
		return ErrMissingSenderURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Sessions.ArtifactDir == "" {
		return ErrMissingArtifacts
	}

	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = constants.DefaultGatewayTimeoutSec
	}
	if c.Sender.TimeoutSec <= 0 {
		c.Sender.TimeoutSec = constants.DefaultSenderTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Sessions.RestoreAttempts <= 0 {
		c.Sessions.RestoreAttempts = constants.DefaultRestoreAttempts
	}
	if c.Sessions.RestoreDelaySec <= 0 {
		c.Sessions.RestoreDelaySec = constants.DefaultRestoreDelaySec
	}
	if c.Sessions.HealthSweepIntervalSec <= 0 {
		c.Sessions.HealthSweepIntervalSec = constants.DefaultHealthSweepIntervalSec
	}
	if c.Sessions.MaxRecoveryAttempts <= 0 {
		c.Sessions.MaxRecoveryAttempts = constants.DefaultMaxRecoveryAttempts
	}
	if c.Sessions.RecoveryCooldownSec <= 0 {
		c.Sessions.RecoveryCooldownSec = constants.DefaultRecoveryCooldownSec
	}
	if c.Sessions.StartupDelayMs <= 0 {
		c.Sessions.StartupDelayMs = constants.DefaultStartupDelayMs
	}
	if c.Sessions.CleanupIntervalHours <= 0 {
		c.Sessions.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}
	if c.Sessions.BackupRetentionDays <= 0 {
		c.Sessions.BackupRetentionDays = constants.DefaultBackupRetentionDays
	}

	if c.Relay.ShutdownTimeoutSec <= 0 {
		c.Relay.ShutdownTimeoutSec = constants.DefaultQueueShutdownTimeoutSec
	}
	if c.Relay.ValidationAttempts <= 0 {
		c.Relay.ValidationAttempts = constants.DefaultValidationAttempts
	}

	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
		c.Tracing.SampleRate = 1.0
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("TELERELAY_GATEWAY_URL"); url != "" {
		c.Gateway.BaseURL = url
	}
	if url := os.Getenv("TELERELAY_GATEWAY_WS_URL"); url != "" {
		c.Gateway.WebsocketURL = url
	}

	// SECURITY: API keys and bot tokens should be set via environment
	// variables rather than the config file
	if key := os.Getenv("TELERELAY_GATEWAY_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if token := os.Getenv("TELERELAY_SENDER_TOKEN"); token != "" {
		c.Sender.Token = token
	}
	if hash := os.Getenv("TELERELAY_APP_HASH"); hash != "" {
		c.Gateway.DefaultAppHash = hash
	}
	if id := os.Getenv("TELERELAY_APP_ID"); id != "" {
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Gateway.DefaultAppID = parsed
		}
	}

	if url := os.Getenv("TELERELAY_SENDER_URL"); url != "" {
		c.Sender.BaseURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("TELERELAY_ARTIFACT_DIR"); dir != "" {
		c.Sessions.ArtifactDir = dir
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	// Check if we're in production mode
	isProduction := os.Getenv("TELERELAY_ENV") == "production"

	if isProduction {
		// In production, the sender token is mandatory
		if c.Sender.Token == "" {
			return models.ConfigError{Message: "sender bot token is required in production (set TELERELAY_SENDER_TOKEN environment variable)"}
		}

		// Warn about debug logging in production
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		// In development, warn if secrets are missing
		if c.Sender.Token == "" {
			fmt.Fprintf(os.Stderr, "WARNING: sender bot token not set. Set TELERELAY_SENDER_TOKEN environment variable.\n")
		}
	}

	return nil
}
