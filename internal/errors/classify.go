package errors

import (
	"strings"
)

// criticalAuthMarkers are substrings of transport error text that mean
// the stored credential is dead and must not be retried. Matching is
// case-insensitive against the full error chain.
var criticalAuthMarkers = []string{
	"auth_key_invalid",
	"auth_key_unregistered",
	"user_deactivated",
	"account_banned",
	"session_revoked",
	"session_expired",
	"unauthorized",
}

// forbiddenMarkers indicate the session can reach the transport but is
// not allowed into the conversation. These never warrant a retry.
var forbiddenMarkers = []string{
	"banned",
	"deleted",
	"not found",
	"access denied",
	"forbidden",
	"chat_write_forbidden",
}

// IsCriticalAuth reports whether err means the credential is
// permanently unusable. A classified AppError is trusted directly;
// raw transport errors are matched by keyword.
func IsCriticalAuth(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeCriticalAuth
	}
	return containsAny(err.Error(), criticalAuthMarkers)
}

// IsConversationForbidden reports whether err is a non-retryable
// access rejection for a conversation.
func IsConversationForbidden(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		if appErr.Code == ErrCodeConversationForbidden {
			return true
		}
		if appErr.Code != ErrCodeInternalError {
			return false
		}
	}
	return containsAny(err.Error(), forbiddenMarkers)
}

// IsConversationUnresolvable reports whether err means the handle
// could not resolve the conversation id at all.
func IsConversationUnresolvable(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeConversationUnresolvable
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "peer id invalid") ||
		strings.Contains(errStr, "could not resolve") ||
		strings.Contains(errStr, "id not found")
}

// ClassifyTransportError converts a raw transport error into a
// classified AppError. Anything not recognized as a critical auth
// failure is treated as transient and retryable.
func ClassifyTransportError(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	if containsAny(err.Error(), criticalAuthMarkers) {
		return Wrap(err, ErrCodeCriticalAuth, message)
	}
	return WrapRetryable(err, ErrCodeTransientNetwork, message)
}

func containsAny(s string, markers []string) bool {
	lowered := strings.ToLower(s)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
