package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCriticalAuth(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "revoked session keyword",
			err:      errors.New("RPC error: SESSION_REVOKED"),
			expected: true,
		},
		{
			name:     "invalid auth key keyword",
			err:      errors.New("auth_key_invalid: the key is invalid"),
			expected: true,
		},
		{
			name:     "deactivated account keyword",
			err:      errors.New("USER_DEACTIVATED"),
			expected: true,
		},
		{
			name:     "banned account keyword",
			err:      errors.New("account_banned by transport"),
			expected: true,
		},
		{
			name:     "expired session keyword",
			err:      errors.New("session_expired, please log in"),
			expected: true,
		},
		{
			name:     "unauthorized keyword",
			err:      errors.New("401 Unauthorized"),
			expected: true,
		},
		{
			name:     "network error",
			err:      errors.New("connection reset by peer"),
			expected: false,
		},
		{
			name:     "classified critical AppError",
			err:      New(ErrCodeCriticalAuth, "credential dead"),
			expected: true,
		},
		{
			name:     "classified transient AppError with auth-looking cause",
			err:      WrapRetryable(errors.New("unauthorized"), ErrCodeTransientNetwork, "retrying"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCriticalAuth(tt.err))
		})
	}
}

func TestIsConversationForbidden(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "banned from channel",
			err:      errors.New("user is banned from this channel"),
			expected: true,
		},
		{
			name:     "channel deleted",
			err:      errors.New("channel was deleted"),
			expected: true,
		},
		{
			name:     "access denied",
			err:      errors.New("access denied"),
			expected: true,
		},
		{
			name:     "write forbidden",
			err:      errors.New("CHAT_WRITE_FORBIDDEN"),
			expected: true,
		},
		{
			name:     "transient flood error",
			err:      errors.New("flood wait of 30 seconds"),
			expected: false,
		},
		{
			name:     "classified forbidden AppError",
			err:      New(ErrCodeConversationForbidden, "no access"),
			expected: true,
		},
		{
			name:     "classified unresolvable AppError is not forbidden",
			err:      New(ErrCodeConversationUnresolvable, "unknown id"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsConversationForbidden(tt.err))
		})
	}
}

func TestIsConversationUnresolvable(t *testing.T) {
	assert.True(t, IsConversationUnresolvable(errors.New("Peer id invalid: -100123")))
	assert.True(t, IsConversationUnresolvable(New(ErrCodeConversationUnresolvable, "unknown")))
	assert.False(t, IsConversationUnresolvable(New(ErrCodeConversationForbidden, "banned")))
	assert.False(t, IsConversationUnresolvable(errors.New("timeout")))
	assert.False(t, IsConversationUnresolvable(nil))
}

func TestClassifyTransportError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, ClassifyTransportError(nil, "connect"))
	})

	t.Run("critical keyword becomes critical auth", func(t *testing.T) {
		err := ClassifyTransportError(errors.New("AUTH_KEY_INVALID"), "connect failed")
		assert.Equal(t, ErrCodeCriticalAuth, err.Code)
		assert.False(t, err.Retryable)
	})

	t.Run("unknown error becomes transient", func(t *testing.T) {
		err := ClassifyTransportError(errors.New("dial tcp: i/o timeout"), "connect failed")
		assert.Equal(t, ErrCodeTransientNetwork, err.Code)
		assert.True(t, err.Retryable)
	})

	t.Run("already classified error passes through", func(t *testing.T) {
		orig := New(ErrCodeConversationForbidden, "banned")
		assert.Equal(t, orig, ClassifyTransportError(orig, "ignored"))
	})
}
