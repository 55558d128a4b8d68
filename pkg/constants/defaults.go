package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGatewayConnectSec     = 60
	DefaultWebsocketHandshakeSec = 10
)

// Response body limits for client packages
const (
	BytesPerMegabyte     = 1024 * 1024
	MaxResponseBodyBytes = 1 * BytesPerMegabyte
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Circuit breaker defaults for outbound delivery
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeoutSec  = 30
)

// Timing constants used by packages
const (
	DefaultBackoffInitialMs = 500
	DefaultBackoffMaxSec    = 5
)
