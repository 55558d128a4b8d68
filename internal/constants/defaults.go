package constants

// Default session lifecycle values
const (
	DefaultRestoreAttempts        = 3
	DefaultRestoreDelaySec        = 2
	DefaultHealthSweepIntervalSec = 300
	DefaultMaxRecoveryAttempts    = 5
	DefaultRecoveryCooldownSec    = 3600
	DefaultStartupDelayMs         = 1000
	DefaultBackupRetentionDays    = 30
)

// Default relay pipeline values
const (
	DefaultValidationAttempts      = 3
	DefaultQueueShutdownTimeoutSec = 5
	DefaultConversationCacheSize   = 500
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGatewayTimeoutSec     = 30
	DefaultSenderTimeoutSec      = 30
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultGracefulShutdownSec   = 30
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultCleanupIntervalHours  = 24
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultBlobMaskLength  = 8
)

// Field size limits
const (
	MaxPatternLength     = 512
	MaxDecorationLength  = 1024
	MaxButtonLabelLength = 64
	MaxButtonURLLength   = 2048
	MinPhoneNumberLength = 10
	MaxPhoneNumberLength = 20
	MaxRequestBodyBytes  = 64 * 1024
)

// Encryption salts for credential-at-rest protection
const (
	EncryptionSalt       = "telerelay-cred-salt-v1"
	EncryptionLookupSalt = "telerelay-lookup-salt-v1"
)
