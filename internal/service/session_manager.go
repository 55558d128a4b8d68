package service

import (
	"context"
	"sync"
	"time"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/metrics"
	"telerelay/internal/models"
	transporttypes "telerelay/pkg/transport/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Artifacts is the on-disk session artifact contract. The filesystem
// implementation lives in pkg/transport.
type Artifacts interface {
	Save(userID int64, blob string) error
	Load(userID int64) (string, error)
	Remove(userID int64) error
	Exists(userID int64) bool
	CleanupBackups(retentionDays int) error
}

// SessionManagerOptions carries the tunables for session restoration.
type SessionManagerOptions struct {
	RestoreAttempts int
	RestoreDelay    time.Duration
	DefaultAppID    int64
	DefaultAppHash  string
}

// SessionManager owns at most one live transport handle per user. It
// brings handles up from persisted credentials through an ordered list
// of restoration strategies and binds forwarding rules to them.
type SessionManager struct {
	client    transporttypes.Client
	store     Store
	artifacts Artifacts
	registry  *Registry
	validator *AccessValidator
	enqueuer  Enqueuer
	logger    *logrus.Logger
	errlog    *errors.Logger
	opts      SessionManagerOptions

	listenerMu sync.Mutex
	listeners  map[int64]map[int64]transporttypes.SubscriptionToken
}

func NewSessionManager(client transporttypes.Client, store Store, artifacts Artifacts, registry *Registry, validator *AccessValidator, enqueuer Enqueuer, logger *logrus.Logger, opts SessionManagerOptions) *SessionManager {
	if opts.RestoreAttempts <= 0 {
		opts.RestoreAttempts = constants.DefaultRestoreAttempts
	}
	if opts.RestoreDelay <= 0 {
		opts.RestoreDelay = time.Duration(constants.DefaultRestoreDelaySec) * time.Second
	}
	return &SessionManager{
		client:    client,
		store:     store,
		artifacts: artifacts,
		registry:  registry,
		validator: validator,
		enqueuer:  enqueuer,
		logger:    logger,
		errlog:    errors.WrapLogger(logger),
		opts:      opts,
		listeners: make(map[int64]map[int64]transporttypes.SubscriptionToken),
	}
}

// Acquire returns the registered handle for a user when a liveness
// probe succeeds, otherwise runs restoration. A second Acquire for the
// same user returns the same handle instance while it stays healthy.
func (m *SessionManager) Acquire(ctx context.Context, userID int64) (transporttypes.Handle, error) {
	if handle := m.registry.Get(userID); handle != nil {
		if _, err := handle.Probe(ctx); err == nil {
			return handle, nil
		}
		m.logger.WithField("userId", userID).Warn("Registered handle failed liveness probe, tearing down")
		m.teardown(userID)
	}
	return m.restore(ctx, userID)
}

// Release tears down the user's handle and listeners without touching
// persisted credentials.
func (m *SessionManager) Release(userID int64) {
	m.teardown(userID)
	m.logger.WithField("userId", userID).Info("Session released")
}

// Logout is Release plus credential destruction: the transport session
// is terminated remotely, the artifact removed, the stored credential
// cleared, and the user flagged unauthenticated.
func (m *SessionManager) Logout(ctx context.Context, userID int64) error {
	m.forgetListeners(userID)

	if handle := m.registry.Remove(userID); handle != nil {
		if err := handle.Logout(ctx); err != nil {
			m.logger.WithError(err).WithField("userId", userID).Warn("Transport logout failed, continuing local teardown")
		}
	}

	if err := m.artifacts.Remove(userID); err != nil {
		m.logger.WithError(err).WithField("userId", userID).Warn("Failed to remove session artifact")
	}
	if err := m.store.ClearCredential(ctx, userID, "logout"); err != nil {
		return err
	}
	if err := m.store.SetUserAuthenticated(ctx, userID, false); err != nil {
		return err
	}

	m.logger.WithField("userId", userID).Info("User logged out")
	return nil
}

type restoreStrategy struct {
	name string
	run  func(ctx context.Context, userID int64) (transporttypes.Handle, error)
}

// restore tries the ordered strategies until one yields a handle. A
// strategy may report "not applicable" by returning (nil, nil). A
// critical auth classification aborts the remaining strategies, clears
// the stored credential, and flips authentication off.
func (m *SessionManager) restore(ctx context.Context, userID int64) (transporttypes.Handle, error) {
	log := m.logger.WithField("userId", userID)

	strategies := []restoreStrategy{
		{"stored_credential", m.restoreFromStored},
		{"local_artifact", m.restoreFromArtifact},
		{"repair_probe", m.restoreFromRepair},
	}

	var lastErr error
	for _, strategy := range strategies {
		metrics.IncrementCounter("sessions.restore.attempts", map[string]string{"strategy": strategy.name}, "Session restoration attempts per strategy")

		handle, err := strategy.run(ctx, userID)
		if err == nil && handle != nil {
			log.WithField("strategy", strategy.name).Info("Session restored")
			m.register(ctx, userID, handle)
			return handle, nil
		}
		if err == nil {
			log.WithField("strategy", strategy.name).Debug("Restoration strategy not applicable")
			continue
		}

		if errors.IsCriticalAuth(err) {
			m.errlog.LogError(err, "Critical auth failure, aborting restoration",
				logrus.Fields{"userId": userID, "strategy": strategy.name})
			m.handleCriticalAuth(ctx, userID)
			return nil, err
		}

		m.errlog.LogRetryableError(err, "Restoration strategy failed",
			logrus.Fields{"userId": userID, "strategy": strategy.name})
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New(errors.ErrCodeSessionNotFound, "no restoration strategy applicable")
	}
	return nil, lastErr
}

// restoreFromStored connects with the live stored credential, retried
// with a fixed delay between attempts.
func (m *SessionManager) restoreFromStored(ctx context.Context, userID int64) (transporttypes.Handle, error) {
	cred, err := m.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	var lastErr error
	for attempt := 1; attempt <= m.opts.RestoreAttempts; attempt++ {
		handle, err := m.client.Connect(ctx, transporttypes.Credential{
			SessionBlob: cred.SessionBlob,
			AppID:       cred.AppID,
			AppHash:     cred.AppHash,
		})
		if err == nil {
			m.saveArtifact(userID, cred.SessionBlob)
			return handle, nil
		}

		classified := errors.ClassifyTransportError(err, "connect from stored credential failed")
		if errors.IsCriticalAuth(classified) {
			return nil, classified
		}
		lastErr = classified

		m.logger.WithError(err).WithFields(logrus.Fields{
			"userId":  userID,
			"attempt": attempt,
		}).Warn("Stored credential connect failed")

		if attempt < m.opts.RestoreAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.opts.RestoreDelay):
			}
		}
	}
	return nil, lastErr
}

// restoreFromArtifact connects with the on-disk artifact blob and, on
// success, persists a freshly exported credential.
func (m *SessionManager) restoreFromArtifact(ctx context.Context, userID int64) (transporttypes.Handle, error) {
	if !m.artifacts.Exists(userID) {
		return nil, nil
	}
	blob, err := m.artifacts.Load(userID)
	if err != nil {
		return nil, err
	}

	appID, appHash := m.appKeys(ctx, userID)
	handle, err := m.client.Connect(ctx, transporttypes.Credential{
		SessionBlob: blob,
		AppID:       appID,
		AppHash:     appHash,
	})
	if err != nil {
		return nil, errors.ClassifyTransportError(err, "connect from session artifact failed")
	}

	m.persistExportedCredential(ctx, userID, handle, appID, appHash)
	return handle, nil
}

// restoreFromRepair connects with no prior credential. This normally
// fails with a disambiguating error; when the gateway still holds
// server-side session state it can succeed, in which case the fresh
// credential is exported and persisted like an artifact restore.
func (m *SessionManager) restoreFromRepair(ctx context.Context, userID int64) (transporttypes.Handle, error) {
	appID, appHash := m.appKeys(ctx, userID)

	handle, err := m.client.Connect(ctx, transporttypes.Credential{
		AppID:   appID,
		AppHash: appHash,
	})
	if err != nil {
		return nil, errors.ClassifyTransportError(err, "repair connect failed")
	}

	m.logger.WithField("userId", userID).Info("Repair connect unexpectedly succeeded, persisting fresh credential")
	m.persistExportedCredential(ctx, userID, handle, appID, appHash)
	return handle, nil
}

// persistExportedCredential exports the handle's session and writes it
// as the new live credential plus on-disk artifact. Failures are
// logged, not fatal: the handle itself is already healthy.
func (m *SessionManager) persistExportedCredential(ctx context.Context, userID int64, handle transporttypes.Handle, appID int64, appHash string) {
	log := m.logger.WithField("userId", userID)

	blob, err := handle.ExportCredential(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to export fresh credential")
		return
	}
	if err := m.store.SaveCredential(ctx, &models.Credential{
		UserID:      userID,
		SessionBlob: blob,
		AppID:       appID,
		AppHash:     appHash,
	}); err != nil {
		log.WithError(err).Warn("Failed to persist exported credential")
	}
	m.saveArtifact(userID, blob)
}

func (m *SessionManager) saveArtifact(userID int64, blob string) {
	if err := m.artifacts.Save(userID, blob); err != nil {
		m.logger.WithError(err).WithField("userId", userID).Warn("Failed to save session artifact")
	}
}

// appKeys returns the transport app key pair from the stored
// credential when one exists, falling back to the configured defaults.
func (m *SessionManager) appKeys(ctx context.Context, userID int64) (int64, string) {
	cred, err := m.store.GetCredential(ctx, userID)
	if err == nil && cred != nil && cred.AppID != 0 {
		return cred.AppID, cred.AppHash
	}
	return m.opts.DefaultAppID, m.opts.DefaultAppHash
}

func (m *SessionManager) register(ctx context.Context, userID int64, handle transporttypes.Handle) {
	if displaced := m.registry.Put(userID, handle); displaced != nil {
		_ = displaced.Close()
	}
	if err := m.store.TouchUserActivity(ctx, userID); err != nil {
		m.logger.WithError(err).WithField("userId", userID).Debug("Failed to refresh user activity timestamp")
	}
}

func (m *SessionManager) handleCriticalAuth(ctx context.Context, userID int64) {
	metrics.IncrementCounter("sessions.critical_auth", nil, "Restorations aborted by a critical auth classification")

	if err := m.store.ClearCredential(ctx, userID, "critical auth failure"); err != nil {
		m.logger.WithError(err).WithField("userId", userID).Error("Failed to clear credential after critical auth failure")
	}
	if err := m.store.SetUserAuthenticated(ctx, userID, false); err != nil {
		m.logger.WithError(err).WithField("userId", userID).Error("Failed to flip authentication off after critical auth failure")
	}
}

// BindRule validates both ends of a rule and attaches a listener to
// the source conversation. The listener's only job is to package an
// envelope and enqueue it; it never blocks on the consumer.
func (m *SessionManager) BindRule(ctx context.Context, rule *models.ForwardingRule) error {
	handle, err := m.Acquire(ctx, rule.UserID)
	if err != nil {
		return err
	}

	if err := m.validator.ValidateRule(ctx, handle, rule); err != nil {
		return err
	}

	userID, ruleID := rule.UserID, rule.ID
	sourceChatID, targetChatID := rule.SourceChatID, rule.TargetChatID

	token, err := handle.Subscribe(sourceChatID, func(event transporttypes.MessageEvent) {
		capturedAt := event.ReceivedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now()
		}
		m.enqueuer.Enqueue(models.MessageEnvelope{
			ID:           uuid.NewString(),
			UserID:       userID,
			RuleID:       ruleID,
			SourceChatID: sourceChatID,
			TargetChatID: targetChatID,
			Payload:      payloadFromEvent(event),
			CapturedAt:   capturedAt,
		})
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTransientNetwork, "failed to subscribe to source conversation")
	}

	m.trackListener(userID, ruleID, token, handle)

	m.logger.WithFields(logrus.Fields{
		"userId":       userID,
		"ruleId":       ruleID,
		"sourceChatId": sourceChatID,
		"targetChatId": targetChatID,
	}).Info("Forwarding rule bound")
	return nil
}

// UnbindRule detaches the listener for one rule. Unknown rules are a
// no-op.
func (m *SessionManager) UnbindRule(userID, ruleID int64) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	tokens, exists := m.listeners[userID]
	if !exists {
		return
	}
	token, exists := tokens[ruleID]
	if !exists {
		return
	}
	delete(tokens, ruleID)

	if handle := m.registry.Get(userID); handle != nil {
		handle.Unsubscribe(token)
	}
	m.logger.WithFields(logrus.Fields{"userId": userID, "ruleId": ruleID}).Info("Forwarding rule unbound")
}

// trackListener records a rule's subscription token, replacing (and
// unsubscribing) any previous binding for the same rule.
func (m *SessionManager) trackListener(userID, ruleID int64, token transporttypes.SubscriptionToken, handle transporttypes.Handle) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	tokens, exists := m.listeners[userID]
	if !exists {
		tokens = make(map[int64]transporttypes.SubscriptionToken)
		m.listeners[userID] = tokens
	}
	if previous, exists := tokens[ruleID]; exists {
		handle.Unsubscribe(previous)
	}
	tokens[ruleID] = token
}

// BoundRules returns the rule ids currently bound for a user.
func (m *SessionManager) BoundRules(userID int64) []int64 {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	ruleIDs := make([]int64, 0, len(m.listeners[userID]))
	for ruleID := range m.listeners[userID] {
		ruleIDs = append(ruleIDs, ruleID)
	}
	return ruleIDs
}

// forgetListeners drops all listener bookkeeping for a user without
// touching the handle; used when the handle is going away anyway.
func (m *SessionManager) forgetListeners(userID int64) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	delete(m.listeners, userID)
}

func (m *SessionManager) teardown(userID int64) {
	m.forgetListeners(userID)
	if handle := m.registry.Remove(userID); handle != nil {
		_ = handle.Close()
	}
}

// payloadFromEvent normalizes a transport event into the tagged
// payload variant the pipeline dispatches on.
func payloadFromEvent(event transporttypes.MessageEvent) models.MessagePayload {
	if event.Media == nil {
		return models.MessagePayload{Kind: models.MediaKindText, Text: event.Text}
	}

	kind := models.MediaKind(event.Media.Kind)
	switch kind {
	case models.MediaKindPhoto, models.MediaKindVideo, models.MediaKindDocument,
		models.MediaKindAudio, models.MediaKindVoice, models.MediaKindSticker:
	default:
		// Unrecognized media relays as a document so nothing is lost.
		kind = models.MediaKindDocument
	}

	return models.MessagePayload{
		Kind: kind,
		Text: event.Text,
		Media: &models.MediaRef{
			FileID:   event.Media.FileID,
			FileName: event.Media.FileName,
			MimeType: event.Media.MimeType,
			Duration: event.Media.Duration,
			Width:    event.Media.Width,
			Height:   event.Media.Height,
			Size:     event.Media.Size,
		},
	}
}
