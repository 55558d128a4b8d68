package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"telerelay/pkg/transport/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// GatewayClient talks to the transport gateway. Session and
// conversation operations go over HTTP; message events arrive on a
// websocket stream, one per handle.
type GatewayClient struct {
	baseURL string
	wsURL   string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

type Option func(*GatewayClient)

func WithTimeout(timeout time.Duration) Option {
	return func(c *GatewayClient) {
		c.client.Timeout = timeout
	}
}

func WithAPIKey(apiKey string) Option {
	return func(c *GatewayClient) {
		c.apiKey = apiKey
	}
}

func WithWebsocketURL(wsURL string) Option {
	return func(c *GatewayClient) {
		c.wsURL = wsURL
	}
}

func NewGatewayClient(baseURL string, logger *logrus.Logger, opts ...Option) *GatewayClient {
	c := &GatewayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.wsURL == "" {
		c.wsURL = deriveWebsocketURL(c.baseURL)
	}
	return c
}

func deriveWebsocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

type connectResponse struct {
	Token   string            `json:"token"`
	Session types.SessionInfo `json:"session"`
}

// Connect opens a session from a credential and returns a live handle.
func (c *GatewayClient) Connect(ctx context.Context, cred types.Credential) (types.Handle, error) {
	var resp connectResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/sessions", "", cred, &resp); err != nil {
		return nil, err
	}

	h := &sessionHandle{
		client:    c,
		token:     resp.Token,
		session:   resp.Session,
		subs:      make(map[types.SubscriptionToken]subscription),
		convCache: make(map[int64]types.ConversationInfo),
		closed:    make(chan struct{}),
	}

	return h, nil
}

func (c *GatewayClient) doRequest(ctx context.Context, method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(data))
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &apiError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type subscription struct {
	conversationID int64
	handler        types.EventHandler
}

// sessionHandle is the live session state: an auth token for HTTP
// calls, a conversation cache, and a lazily opened event stream.
type sessionHandle struct {
	client  *GatewayClient
	token   string
	session types.SessionInfo

	mu        sync.RWMutex
	subs      map[types.SubscriptionToken]subscription
	nextSub   types.SubscriptionToken
	stream    *websocket.Conn
	streamErr error

	cacheMu   sync.RWMutex
	convCache map[int64]types.ConversationInfo

	closeOnce sync.Once
	closed    chan struct{}
}

func (h *sessionHandle) Probe(ctx context.Context) (*types.SessionInfo, error) {
	h.mu.RLock()
	streamErr := h.streamErr
	h.mu.RUnlock()
	if streamErr != nil {
		return nil, fmt.Errorf("event stream broken: %w", streamErr)
	}

	var info types.SessionInfo
	if err := h.client.doRequest(ctx, http.MethodGet, "/v1/sessions/me", h.token, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *sessionHandle) Conversations(ctx context.Context) ([]types.ConversationInfo, error) {
	var conversations []types.ConversationInfo
	if err := h.client.doRequest(ctx, http.MethodGet, "/v1/conversations", h.token, nil, &conversations); err != nil {
		return nil, err
	}

	h.cacheMu.Lock()
	for _, conv := range conversations {
		h.convCache[conv.ID] = conv
	}
	h.cacheMu.Unlock()

	return conversations, nil
}

func (h *sessionHandle) Conversation(ctx context.Context, conversationID int64) (*types.ConversationInfo, error) {
	h.cacheMu.RLock()
	cached, ok := h.convCache[conversationID]
	h.cacheMu.RUnlock()
	if ok {
		return &cached, nil
	}

	var conv types.ConversationInfo
	path := fmt.Sprintf("/v1/conversations/%d", conversationID)
	if err := h.client.doRequest(ctx, http.MethodGet, path, h.token, nil, &conv); err != nil {
		return nil, err
	}

	h.cacheMu.Lock()
	h.convCache[conv.ID] = conv
	h.cacheMu.Unlock()

	return &conv, nil
}

func (h *sessionHandle) RefreshConversations(ctx context.Context) error {
	h.cacheMu.Lock()
	h.convCache = make(map[int64]types.ConversationInfo)
	h.cacheMu.Unlock()

	_, err := h.Conversations(ctx)
	return err
}

func (h *sessionHandle) Subscribe(conversationID int64, handler types.EventHandler) (types.SubscriptionToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.closed:
		return 0, fmt.Errorf("handle is closed")
	default:
	}

	if h.stream == nil {
		if err := h.openStreamLocked(); err != nil {
			return 0, err
		}
	}

	h.nextSub++
	token := h.nextSub
	h.subs[token] = subscription{conversationID: conversationID, handler: handler}
	return token, nil
}

func (h *sessionHandle) Unsubscribe(token types.SubscriptionToken) {
	h.mu.Lock()
	delete(h.subs, token)
	h.mu.Unlock()
}

func (h *sessionHandle) openStreamLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, h.client.wsURL+"/v1/events?token="+h.token, nil)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	h.stream = conn
	h.streamErr = nil
	go h.readLoop(conn)
	return nil
}

func (h *sessionHandle) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		var event types.MessageEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			select {
			case <-h.closed:
				return
			default:
			}

			// A broken stream marks the handle unhealthy; the health
			// sweep tears it down and rebuilds the session.
			h.mu.Lock()
			h.streamErr = err
			h.stream = nil
			h.mu.Unlock()

			h.client.logger.WithError(err).WithField("userID", h.session.UserID).
				Warn("Event stream closed unexpectedly")
			return
		}

		if event.ReceivedAt.IsZero() {
			event.ReceivedAt = time.Now()
		}

		h.mu.RLock()
		handlers := make([]types.EventHandler, 0, 1)
		for _, sub := range h.subs {
			if sub.conversationID == event.ConversationID {
				handlers = append(handlers, sub.handler)
			}
		}
		h.mu.RUnlock()

		for _, handler := range handlers {
			handler(event)
		}
	}
}

func (h *sessionHandle) ExportCredential(ctx context.Context) (string, error) {
	var resp struct {
		SessionBlob string `json:"session_blob"`
	}
	if err := h.client.doRequest(ctx, http.MethodPost, "/v1/sessions/export", h.token, nil, &resp); err != nil {
		return "", err
	}
	return resp.SessionBlob, nil
}

func (h *sessionHandle) Logout(ctx context.Context) error {
	err := h.client.doRequest(ctx, http.MethodDelete, "/v1/sessions", h.token, nil, nil)
	closeErr := h.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (h *sessionHandle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		if h.stream != nil {
			_ = h.stream.Close(websocket.StatusNormalClosure, "handle closed")
			h.stream = nil
		}
		h.subs = make(map[types.SubscriptionToken]subscription)
		h.mu.Unlock()
	})
	return nil
}
