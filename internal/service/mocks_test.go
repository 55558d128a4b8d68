package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"telerelay/internal/models"
	sendertypes "telerelay/pkg/sender/types"
	transporttypes "telerelay/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu             sync.Mutex
	users          map[int64]*models.User
	creds          map[int64]*models.Credential
	rules          map[int64]*models.ForwardingRule
	nextRuleID     int64
	clearedReasons map[int64]string
	credentialErr  error
	cleanupCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:          make(map[int64]*models.User),
		creds:          make(map[int64]*models.Credential),
		rules:          make(map[int64]*models.ForwardingRule),
		clearedReasons: make(map[int64]string),
	}
}

func (s *fakeStore) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[userID]
	if !exists {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) SetUserAuthenticated(ctx context.Context, userID int64, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, exists := s.users[userID]; exists {
		user.IsAuthenticated = authenticated
	} else {
		s.users[userID] = &models.User{ID: userID, IsAuthenticated: authenticated}
	}
	return nil
}

func (s *fakeStore) TouchUserActivity(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, exists := s.users[userID]; exists {
		user.LastActiveAt = time.Now()
	}
	return nil
}

func (s *fakeStore) GetAllAuthenticatedUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, user := range s.users {
		if user.IsAuthenticated {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (s *fakeStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cred
	s.creds[cred.UserID] = &copied
	return nil
}

func (s *fakeStore) GetCredential(ctx context.Context, userID int64) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credentialErr != nil {
		return nil, s.credentialErr
	}
	cred, exists := s.creds[userID]
	if !exists {
		return nil, nil
	}
	copied := *cred
	return &copied, nil
}

func (s *fakeStore) ClearCredential(ctx context.Context, userID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, userID)
	s.clearedReasons[userID] = reason
	return nil
}

func (s *fakeStore) CleanupCredentialBackups(retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupCalls++
	return nil
}

func (s *fakeStore) SaveRule(ctx context.Context, rule *models.ForwardingRule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	rule.ID = s.nextRuleID
	copied := *rule
	s.rules[rule.ID] = &copied
	return rule.ID, nil
}

func (s *fakeStore) GetRule(ctx context.Context, ruleID int64) (*models.ForwardingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return nil, nil
	}
	copied := *rule
	return &copied, nil
}

func (s *fakeStore) GetRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error) {
	return s.rulesFor(userID, false)
}

func (s *fakeStore) GetActiveRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error) {
	return s.rulesFor(userID, true)
}

func (s *fakeStore) rulesFor(userID int64, activeOnly bool) ([]models.ForwardingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rules []models.ForwardingRule
	for _, rule := range s.rules {
		if rule.UserID != userID {
			continue
		}
		if activeOnly && !rule.Active {
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

func (s *fakeStore) SetRuleActive(ctx context.Context, ruleID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule, exists := s.rules[ruleID]; exists {
		rule.Active = active
	}
	return nil
}

func (s *fakeStore) DeleteRule(ctx context.Context, ruleID int64) error {
	return s.SetRuleActive(context.Background(), ruleID, false)
}

func (s *fakeStore) PurgeRule(ctx context.Context, ruleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, ruleID)
	return nil
}

func (s *fakeStore) seedRule(rule models.ForwardingRule) *models.ForwardingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == 0 {
		s.nextRuleID++
		rule.ID = s.nextRuleID
	}
	s.rules[rule.ID] = &rule
	return &rule
}

// fakeHandle is a scriptable transport handle.
type fakeHandle struct {
	mu               sync.Mutex
	info             transporttypes.SessionInfo
	probeErr         error
	probeCalls       int
	conversations    map[int64]*transporttypes.ConversationInfo
	conversationErrs map[int64]error
	refreshCalls     int
	onRefresh        func()
	nextToken        transporttypes.SubscriptionToken
	handlers         map[transporttypes.SubscriptionToken]struct {
		conversationID int64
		handler        transporttypes.EventHandler
	}
	subscribeErr error
	exportBlob   string
	exportErr    error
	loggedOut    bool
	closed       bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		info:             transporttypes.SessionInfo{UserID: 42},
		conversations:    make(map[int64]*transporttypes.ConversationInfo),
		conversationErrs: make(map[int64]error),
		handlers: make(map[transporttypes.SubscriptionToken]struct {
			conversationID int64
			handler        transporttypes.EventHandler
		}),
	}
}

func (h *fakeHandle) Probe(ctx context.Context) (*transporttypes.SessionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probeCalls++
	if h.probeErr != nil {
		return nil, h.probeErr
	}
	info := h.info
	return &info, nil
}

func (h *fakeHandle) Conversations(ctx context.Context) ([]transporttypes.ConversationInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var conversations []transporttypes.ConversationInfo
	for _, info := range h.conversations {
		conversations = append(conversations, *info)
	}
	return conversations, nil
}

func (h *fakeHandle) Conversation(ctx context.Context, conversationID int64) (*transporttypes.ConversationInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, exists := h.conversationErrs[conversationID]; exists && err != nil {
		return nil, err
	}
	if info, exists := h.conversations[conversationID]; exists {
		copied := *info
		return &copied, nil
	}
	return nil, stderrors.New("conversation id not found")
}

func (h *fakeHandle) RefreshConversations(ctx context.Context) error {
	h.mu.Lock()
	h.refreshCalls++
	onRefresh := h.onRefresh
	h.mu.Unlock()
	if onRefresh != nil {
		onRefresh()
	}
	return nil
}

func (h *fakeHandle) Subscribe(conversationID int64, handler transporttypes.EventHandler) (transporttypes.SubscriptionToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribeErr != nil {
		return 0, h.subscribeErr
	}
	h.nextToken++
	h.handlers[h.nextToken] = struct {
		conversationID int64
		handler        transporttypes.EventHandler
	}{conversationID, handler}
	return h.nextToken, nil
}

func (h *fakeHandle) Unsubscribe(token transporttypes.SubscriptionToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, token)
}

func (h *fakeHandle) ExportCredential(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exportBlob, h.exportErr
}

func (h *fakeHandle) Logout(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	h.closed = true
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// emit delivers an event to every handler subscribed to the
// conversation, mirroring the real handle's dispatch.
func (h *fakeHandle) emit(event transporttypes.MessageEvent) {
	h.mu.Lock()
	var handlers []transporttypes.EventHandler
	for _, sub := range h.handlers {
		if sub.conversationID == event.ConversationID {
			handlers = append(handlers, sub.handler)
		}
	}
	h.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (h *fakeHandle) subscriptionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

// fakeTransportClient scripts Connect per call.
type fakeTransportClient struct {
	mu        sync.Mutex
	connectFn func(cred transporttypes.Credential) (transporttypes.Handle, error)
	calls     []transporttypes.Credential
}

func (c *fakeTransportClient) Connect(ctx context.Context, cred transporttypes.Credential) (transporttypes.Handle, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cred)
	connectFn := c.connectFn
	c.mu.Unlock()
	if connectFn == nil {
		return newFakeHandle(), nil
	}
	return connectFn(cred)
}

func (c *fakeTransportClient) connectCalls() []transporttypes.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transporttypes.Credential(nil), c.calls...)
}

// sentMessage records one sender call.
type sentMessage struct {
	method string
	chatID int64
	fileID string
	body   string
	button *sendertypes.Button
}

// fakeSender records every call and can fail per method, optionally
// only for the first N calls of that method.
type fakeSender struct {
	mu        sync.Mutex
	calls     []sentMessage
	errs      map[string]error
	failFirst map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		errs:      make(map[string]error),
		failFirst: make(map[string]int),
	}
}

func (s *fakeSender) record(method string, chatID int64, fileID, body string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sentMessage{method, chatID, fileID, body, button})
	if n := s.failFirst[method]; n > 0 {
		s.failFirst[method] = n - 1
		return nil, stderrors.New("send " + method + " failed")
	}
	if err := s.errs[method]; err != nil {
		return nil, err
	}
	return &sendertypes.SendResponse{MessageID: int64(len(s.calls)), Status: "sent"}, nil
}

func (s *fakeSender) SendText(ctx context.Context, chatID int64, text string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("text", chatID, "", text, button)
}

func (s *fakeSender) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("photo", chatID, fileID, caption, button)
}

func (s *fakeSender) SendVideo(ctx context.Context, chatID int64, fileID, caption string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("video", chatID, fileID, caption, button)
}

func (s *fakeSender) SendDocument(ctx context.Context, chatID int64, fileID, caption string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("document", chatID, fileID, caption, button)
}

func (s *fakeSender) SendAudio(ctx context.Context, chatID int64, fileID, caption string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("audio", chatID, fileID, caption, button)
}

func (s *fakeSender) SendVoice(ctx context.Context, chatID int64, fileID, caption string, button *sendertypes.Button) (*sendertypes.SendResponse, error) {
	return s.record("voice", chatID, fileID, caption, button)
}

func (s *fakeSender) SendSticker(ctx context.Context, chatID int64, fileID string) (*sendertypes.SendResponse, error) {
	return s.record("sticker", chatID, fileID, "", nil)
}

func (s *fakeSender) sentCalls() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.calls...)
}

// fakeArtifacts is an in-memory Artifacts store.
type fakeArtifacts struct {
	mu           sync.Mutex
	blobs        map[int64]string
	saveErr      error
	removed      []int64
	cleanupCalls int
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{blobs: make(map[int64]string)}
}

func (a *fakeArtifacts) Save(userID int64, blob string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return a.saveErr
	}
	a.blobs[userID] = blob
	return nil
}

func (a *fakeArtifacts) Load(userID int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	blob, exists := a.blobs[userID]
	if !exists {
		return "", stderrors.New("no artifact")
	}
	return blob, nil
}

func (a *fakeArtifacts) Remove(userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.blobs, userID)
	a.removed = append(a.removed, userID)
	return nil
}

func (a *fakeArtifacts) Exists(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.blobs[userID]
	return exists
}

func (a *fakeArtifacts) CleanupBackups(retentionDays int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupCalls++
	return nil
}

// recordingEnqueuer captures enqueued envelopes.
type recordingEnqueuer struct {
	mu        sync.Mutex
	envelopes []models.MessageEnvelope
}

func (e *recordingEnqueuer) Enqueue(env models.MessageEnvelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envelopes = append(e.envelopes, env)
}

func (e *recordingEnqueuer) all() []models.MessageEnvelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.MessageEnvelope(nil), e.envelopes...)
}
