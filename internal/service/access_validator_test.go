package service

import (
	"context"
	stderrors "errors"
	"testing"

	"telerelay/internal/errors"
	"telerelay/internal/models"
	transporttypes "telerelay/pkg/transport/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReadableSource(t *testing.T) {
	handle := newFakeHandle()
	handle.conversations[-100] = &transporttypes.ConversationInfo{ID: -100, Kind: transporttypes.ConversationBroadcast, CanPost: false}

	v := NewAccessValidator(testLogger(), 3)
	info, err := v.Validate(context.Background(), handle, -100, transporttypes.RoleReader)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), info.ID)
}

func TestValidateWriterNeedsPostingRights(t *testing.T) {
	handle := newFakeHandle()
	handle.conversations[-100] = &transporttypes.ConversationInfo{ID: -100, Kind: transporttypes.ConversationBroadcast, CanPost: false}
	handle.conversations[-200] = &transporttypes.ConversationInfo{ID: -200, Kind: transporttypes.ConversationSupergroup, CanPost: true}

	v := NewAccessValidator(testLogger(), 3)

	_, err := v.Validate(context.Background(), handle, -100, transporttypes.RoleWriter)
	require.Error(t, err)
	assert.True(t, errors.IsConversationForbidden(err))

	info, err := v.Validate(context.Background(), handle, -200, transporttypes.RoleWriter)
	require.NoError(t, err)
	assert.True(t, info.CanPost)
}

func TestValidateRejectsPrivateConversations(t *testing.T) {
	handle := newFakeHandle()
	handle.conversations[500] = &transporttypes.ConversationInfo{ID: 500, Kind: transporttypes.ConversationPrivate, CanPost: true}

	v := NewAccessValidator(testLogger(), 3)
	_, err := v.Validate(context.Background(), handle, 500, transporttypes.RoleReader)
	require.Error(t, err)
	assert.True(t, errors.IsConversationForbidden(err))
}

func TestValidateForbiddenFailsImmediately(t *testing.T) {
	handle := newFakeHandle()
	handle.conversationErrs[-100] = stderrors.New("access denied: banned from channel")

	v := NewAccessValidator(testLogger(), 3)
	_, err := v.Validate(context.Background(), handle, -100, transporttypes.RoleReader)
	require.Error(t, err)
	assert.True(t, errors.IsConversationForbidden(err))

	// No cache refresh and no retries on a forbidden classification
	assert.Equal(t, 0, handle.refreshCalls)
}

func TestValidateUnresolvableRefreshesCacheOnce(t *testing.T) {
	handle := newFakeHandle()
	handle.conversationErrs[-100] = stderrors.New("could not resolve peer")
	handle.onRefresh = func() {
		handle.mu.Lock()
		defer handle.mu.Unlock()
		delete(handle.conversationErrs, -100)
		handle.conversations[-100] = &transporttypes.ConversationInfo{ID: -100, Kind: transporttypes.ConversationGroup, CanPost: true}
	}

	v := NewAccessValidator(testLogger(), 3)
	info, err := v.Validate(context.Background(), handle, -100, transporttypes.RoleReader)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), info.ID)
	assert.Equal(t, 1, handle.refreshCalls)
}

func TestValidateExhaustsRetries(t *testing.T) {
	handle := newFakeHandle()
	handle.conversationErrs[-100] = stderrors.New("gateway timeout")

	v := NewAccessValidator(testLogger(), 3)
	_, err := v.Validate(context.Background(), handle, -100, transporttypes.RoleReader)
	require.Error(t, err)
	assert.True(t, errors.IsConversationUnresolvable(err))
}

func TestValidateOnceDoesNotRetry(t *testing.T) {
	calls := 0
	handle := newFakeHandle()
	handle.conversationErrs[-100] = stderrors.New("gateway timeout")
	handle.onRefresh = func() { calls++ }

	v := NewAccessValidator(testLogger(), 3)
	_, err := v.ValidateOnce(context.Background(), handle, -100, transporttypes.RoleReader)
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestValidateRuleChecksBothEnds(t *testing.T) {
	handle := newFakeHandle()
	handle.conversations[-100] = &transporttypes.ConversationInfo{ID: -100, Kind: transporttypes.ConversationBroadcast, CanPost: false}
	handle.conversations[-200] = &transporttypes.ConversationInfo{ID: -200, Kind: transporttypes.ConversationSupergroup, CanPost: true}

	v := NewAccessValidator(testLogger(), 3)

	rule := &models.ForwardingRule{SourceChatID: -100, TargetChatID: -200}
	assert.NoError(t, v.ValidateRule(context.Background(), handle, rule))

	// Target without posting rights fails the rule
	reversed := &models.ForwardingRule{SourceChatID: -200, TargetChatID: -100}
	err := v.ValidateRule(context.Background(), handle, reversed)
	require.Error(t, err)
	assert.True(t, errors.IsConversationForbidden(err))
}
