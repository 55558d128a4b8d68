package service

import (
	"context"
	"strings"

	"telerelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizePhoneNumber masks phone numbers for privacy, keeping only
// the last few digits.
func SanitizePhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	cleaned := strings.TrimPrefix(phone, "+")
	if len(cleaned) > constants.DefaultPhoneMaskLength {
		return "***" + cleaned[len(cleaned)-constants.DefaultPhoneMaskLength:]
	}
	return "***"
}

// SanitizeSessionBlob shortens an exported session blob so logs never
// carry restorable credential material.
func SanitizeSessionBlob(blob string) string {
	if blob == "" {
		return ""
	}
	if len(blob) > constants.DefaultBlobMaskLength {
		return blob[:constants.DefaultBlobMaskLength] + "..."
	}
	return "..."
}

// SanitizeContent completely hides message content for privacy
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogRelayedMessage logs one relayed message with privacy controls:
// content and titles appear only under verbose logging.
func LogRelayedMessage(ctx context.Context, logger *logrus.Logger, userID, ruleID int64, content string) {
	fields := logrus.Fields{
		"userId": userID,
		"ruleId": ruleID,
	}
	if IsVerboseLogging(ctx) {
		fields["content"] = content
	} else {
		fields["content"] = SanitizeContent(content)
	}
	logger.WithFields(fields).Info("Relayed message")
}
