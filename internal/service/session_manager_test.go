package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"telerelay/internal/errors"
	"telerelay/internal/models"
	transporttypes "telerelay/pkg/transport/types"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	client    *fakeTransportClient
	store     *fakeStore
	artifacts *fakeArtifacts
	registry  *Registry
	enqueuer  *recordingEnqueuer
	manager   *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	logger := testLogger()
	f := &sessionFixture{
		client:    &fakeTransportClient{},
		store:     newFakeStore(),
		artifacts: newFakeArtifacts(),
		registry:  NewRegistry(),
		enqueuer:  &recordingEnqueuer{},
	}
	f.manager = NewSessionManager(
		f.client, f.store, f.artifacts, f.registry,
		NewAccessValidator(logger, 3), f.enqueuer, logger,
		SessionManagerOptions{
			RestoreAttempts: 3,
			RestoreDelay:    time.Millisecond,
			DefaultAppID:    111,
			DefaultAppHash:  "default-hash",
		},
	)
	return f
}

func (f *sessionFixture) seedCredential(userID int64, blob string) {
	f.store.creds[userID] = &models.Credential{UserID: userID, SessionBlob: blob, AppID: 222, AppHash: "user-hash"}
}

func TestAcquireReturnsSameHandleWhileHealthy(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := newFakeHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	ctx := context.Background()
	first, err := f.manager.Acquire(ctx, 42)
	require.NoError(t, err)
	second, err := f.manager.Acquire(ctx, 42)
	require.NoError(t, err)

	assert.Same(t, first.(*fakeHandle), second.(*fakeHandle))
	assert.Len(t, f.client.connectCalls(), 1)
}

func TestAcquireReplacesUnhealthyHandle(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	broken := newFakeHandle()
	broken.probeErr = stderrors.New("event stream broken")
	f.registry.Put(42, broken)

	fresh := newFakeHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return fresh, nil
	}

	handle, err := f.manager.Acquire(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, fresh, handle.(*fakeHandle))
	assert.True(t, broken.closed)
}

func TestRestoreFromStoredCredentialRetries(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	attempts := 0
	handle := newFakeHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		attempts++
		if attempts < 3 {
			return nil, stderrors.New("gateway timeout")
		}
		return handle, nil
	}

	got, err := f.manager.Acquire(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, handle, got.(*fakeHandle))
	assert.Equal(t, 3, attempts)

	// Restored blob is materialized as the on-disk artifact
	blob, err := f.artifacts.Load(42)
	require.NoError(t, err)
	assert.Equal(t, "blob-1", blob)
}

func TestCriticalAuthAbortsRemainingStrategies(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")
	require.NoError(t, f.artifacts.Save(42, "artifact-blob"))
	require.NoError(t, f.store.SetUserAuthenticated(context.Background(), 42, true))

	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return nil, stderrors.New("AUTH_KEY_INVALID: session revoked by transport")
	}

	_, err := f.manager.Acquire(context.Background(), 42)
	require.Error(t, err)

	// Credential cleared, authentication off, no further connect attempts
	cred, getErr := f.store.GetCredential(context.Background(), 42)
	require.NoError(t, getErr)
	assert.Nil(t, cred)
	assert.Equal(t, "critical auth failure", f.store.clearedReasons[42])

	user, getErr := f.store.GetUser(context.Background(), 42)
	require.NoError(t, getErr)
	assert.False(t, user.IsAuthenticated)

	assert.Len(t, f.client.connectCalls(), 1)
}

func TestRestoreFallsBackToArtifact(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.artifacts.Save(42, "artifact-blob"))

	handle := newFakeHandle()
	handle.exportBlob = "fresh-blob"
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		if cred.SessionBlob != "artifact-blob" {
			return nil, stderrors.New("unauthorized: no session")
		}
		return handle, nil
	}

	got, err := f.manager.Acquire(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, handle, got.(*fakeHandle))

	// Fresh export persisted as the live credential and artifact
	cred, err := f.store.GetCredential(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "fresh-blob", cred.SessionBlob)
	assert.Equal(t, int64(111), cred.AppID)

	blob, err := f.artifacts.Load(42)
	require.NoError(t, err)
	assert.Equal(t, "fresh-blob", blob)
}

func TestRepairSuccessPersistsFreshCredential(t *testing.T) {
	f := newSessionFixture(t)

	handle := newFakeHandle()
	handle.exportBlob = "repaired-blob"
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		if cred.SessionBlob != "" {
			return nil, stderrors.New("gateway timeout")
		}
		return handle, nil
	}

	got, err := f.manager.Acquire(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, handle, got.(*fakeHandle))

	cred, err := f.store.GetCredential(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "repaired-blob", cred.SessionBlob)
}

func TestRestoreTransientFailureKeepsCredential(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return nil, stderrors.New("gateway timeout")
	}

	_, err := f.manager.Acquire(context.Background(), 42)
	require.Error(t, err)

	cred, getErr := f.store.GetCredential(context.Background(), 42)
	require.NoError(t, getErr)
	require.NotNil(t, cred)
	assert.Equal(t, "blob-1", cred.SessionBlob)
}

func TestRestoreFailureLogsErrorClassification(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	client := &fakeTransportClient{}
	store := newFakeStore()
	manager := NewSessionManager(client, store, newFakeArtifacts(), NewRegistry(),
		NewAccessValidator(logger, 3), &recordingEnqueuer{}, logger,
		SessionManagerOptions{RestoreAttempts: 1, RestoreDelay: time.Millisecond})

	store.creds[42] = &models.Credential{UserID: 42, SessionBlob: "blob", AppID: 1, AppHash: "h"}
	client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return nil, stderrors.New("gateway timeout")
	}

	_, err := manager.Acquire(context.Background(), 42)
	require.Error(t, err)

	var entry *logrus.Entry
	for i := range hook.Entries {
		if hook.Entries[i].Message == "Restoration strategy failed" {
			entry = &hook.Entries[i]
			break
		}
	}
	require.NotNil(t, entry, "expected a strategy failure log entry")

	// A transient classification lands at warn with its code attached
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, errors.ErrCodeTransientNetwork, entry.Data["error_code"])
	assert.Equal(t, true, entry.Data["retryable"])
	assert.Equal(t, "stored_credential", entry.Data["strategy"])
}

func TestReleaseKeepsCredential(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := newFakeHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	_, err := f.manager.Acquire(context.Background(), 42)
	require.NoError(t, err)

	f.manager.Release(42)

	assert.Nil(t, f.registry.Get(42))
	assert.True(t, handle.closed)
	assert.False(t, handle.loggedOut)

	cred, err := f.store.GetCredential(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

func TestLogoutDestroysCredentialAndArtifact(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")
	require.NoError(t, f.store.SetUserAuthenticated(context.Background(), 42, true))

	handle := newFakeHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	ctx := context.Background()
	_, err := f.manager.Acquire(ctx, 42)
	require.NoError(t, err)

	require.NoError(t, f.manager.Logout(ctx, 42))

	assert.True(t, handle.loggedOut)
	assert.Nil(t, f.registry.Get(42))
	assert.False(t, f.artifacts.Exists(42))
	assert.Equal(t, "logout", f.store.clearedReasons[42])

	user, err := f.store.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.False(t, user.IsAuthenticated)
}

func bindFixtureHandle() *fakeHandle {
	handle := newFakeHandle()
	handle.conversations[-100] = &transporttypes.ConversationInfo{ID: -100, Kind: transporttypes.ConversationBroadcast, CanPost: false}
	handle.conversations[-200] = &transporttypes.ConversationInfo{ID: -200, Kind: transporttypes.ConversationSupergroup, CanPost: true}
	return handle
}

func TestBindRuleEnqueuesEnvelopes(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := bindFixtureHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	rule := &models.ForwardingRule{ID: 7, UserID: 42, SourceChatID: -100, TargetChatID: -200, Active: true}
	require.NoError(t, f.manager.BindRule(context.Background(), rule))
	assert.Equal(t, []int64{7}, f.manager.BoundRules(42))

	handle.emit(transporttypes.MessageEvent{
		ConversationID: -100,
		MessageID:      1,
		Text:           "hello",
		ReceivedAt:     time.Now(),
	})
	handle.emit(transporttypes.MessageEvent{
		ConversationID: -100,
		MessageID:      2,
		Text:           "photo caption",
		Media:          &transporttypes.MediaAttachment{Kind: "photo", FileID: "file-9", Width: 640},
	})

	envelopes := f.enqueuer.all()
	require.Len(t, envelopes, 2)

	first := envelopes[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, int64(42), first.UserID)
	assert.Equal(t, int64(7), first.RuleID)
	assert.Equal(t, int64(-100), first.SourceChatID)
	assert.Equal(t, int64(-200), first.TargetChatID)
	assert.Equal(t, models.MediaKindText, first.Payload.Kind)
	assert.Equal(t, "hello", first.Payload.Text)
	assert.False(t, first.CapturedAt.IsZero())

	second := envelopes[1]
	assert.Equal(t, models.MediaKindPhoto, second.Payload.Kind)
	assert.Equal(t, "photo caption", second.Payload.Text)
	require.NotNil(t, second.Payload.Media)
	assert.Equal(t, "file-9", second.Payload.Media.FileID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBindRuleFailsWithoutTargetPostingRights(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := bindFixtureHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	// Target is the read-only broadcast
	rule := &models.ForwardingRule{ID: 7, UserID: 42, SourceChatID: -200, TargetChatID: -100, Active: true}
	err := f.manager.BindRule(context.Background(), rule)
	require.Error(t, err)
	assert.Empty(t, f.manager.BoundRules(42))
	assert.Equal(t, 0, handle.subscriptionCount())
}

func TestUnbindRuleRemovesSubscription(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := bindFixtureHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	rule := &models.ForwardingRule{ID: 7, UserID: 42, SourceChatID: -100, TargetChatID: -200, Active: true}
	require.NoError(t, f.manager.BindRule(context.Background(), rule))
	require.Equal(t, 1, handle.subscriptionCount())

	f.manager.UnbindRule(42, 7)
	assert.Equal(t, 0, handle.subscriptionCount())
	assert.Empty(t, f.manager.BoundRules(42))

	// Unbinding again is a no-op
	f.manager.UnbindRule(42, 7)
}

func TestRebindReplacesPreviousSubscription(t *testing.T) {
	f := newSessionFixture(t)
	f.seedCredential(42, "blob-1")

	handle := bindFixtureHandle()
	f.client.connectFn = func(cred transporttypes.Credential) (transporttypes.Handle, error) {
		return handle, nil
	}

	rule := &models.ForwardingRule{ID: 7, UserID: 42, SourceChatID: -100, TargetChatID: -200, Active: true}
	require.NoError(t, f.manager.BindRule(context.Background(), rule))
	require.NoError(t, f.manager.BindRule(context.Background(), rule))

	// The stale subscription was dropped, not duplicated
	assert.Equal(t, 1, handle.subscriptionCount())
}

func TestPayloadFromEventUnknownMediaKind(t *testing.T) {
	payload := payloadFromEvent(transporttypes.MessageEvent{
		Text:  "caption",
		Media: &transporttypes.MediaAttachment{Kind: "animation", FileID: "file-1"},
	})
	assert.Equal(t, models.MediaKindDocument, payload.Kind)
	assert.Equal(t, "file-1", payload.Media.FileID)
}
