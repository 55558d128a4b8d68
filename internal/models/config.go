package models

// ConfigError represents a configuration validation error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// Config is the full application configuration tree.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Sender   SenderConfig   `json:"sender"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Sessions SessionsConfig `json:"sessions"`
	Relay    RelayConfig    `json:"relay"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
	Verbose  bool           `json:"verbose,omitempty"`
}

// GatewayConfig points at the transport gateway that terminates
// end-user sessions.
type GatewayConfig struct {
	BaseURL        string `json:"base_url"`
	WebsocketURL   string `json:"websocket_url,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	TimeoutSec     int    `json:"timeout_sec,omitempty"`
	DefaultAppID   int64  `json:"default_app_id,omitempty"`
	DefaultAppHash string `json:"default_app_hash,omitempty"`
}

// SenderConfig points at the Bot-API-style delivery endpoint.
type SenderConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type ServerConfig struct {
	Port            int `json:"port,omitempty"`
	ReadTimeoutSec  int `json:"read_timeout_sec,omitempty"`
	WriteTimeoutSec int `json:"write_timeout_sec,omitempty"`
	IdleTimeoutSec  int `json:"idle_timeout_sec,omitempty"`
}

// SessionsConfig controls session lifecycle behavior: where artifacts
// live, how restoration retries, and how the health sweep recovers
// broken sessions.
type SessionsConfig struct {
	ArtifactDir            string `json:"artifact_dir"`
	RestoreAttempts        int    `json:"restore_attempts,omitempty"`
	RestoreDelaySec        int    `json:"restore_delay_sec,omitempty"`
	HealthSweepIntervalSec int    `json:"health_sweep_interval_sec,omitempty"`
	MaxRecoveryAttempts    int    `json:"max_recovery_attempts,omitempty"`
	RecoveryCooldownSec    int    `json:"recovery_cooldown_sec,omitempty"`
	StartupDelayMs         int    `json:"startup_delay_ms,omitempty"`
	CleanupIntervalHours   int    `json:"cleanup_interval_hours,omitempty"`
	BackupRetentionDays    int    `json:"backup_retention_days,omitempty"`
}

// RelayConfig controls the ingestion queue and pipeline.
type RelayConfig struct {
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec,omitempty"`
	ValidationAttempts int `json:"validation_attempts,omitempty"`
}

type TracingConfig struct {
	Enabled    bool    `json:"enabled"`
	Endpoint   string  `json:"endpoint,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty"`
	UseStdout  bool    `json:"use_stdout,omitempty"`
	Insecure   bool    `json:"insecure,omitempty"`
}
