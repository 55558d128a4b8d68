package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"telerelay/pkg/circuitbreaker"
	"telerelay/pkg/constants"
	"telerelay/pkg/sender/types"
)

// BotClient delivers messages through a Bot-API-style HTTP endpoint.
type BotClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

type Option func(*BotClient)

func WithTimeout(timeout time.Duration) Option {
	return func(c *BotClient) {
		c.client.Timeout = timeout
	}
}

// WithCircuitBreaker shields the delivery endpoint from sustained failures.
// While the breaker is open, sends fail fast without hitting the wire.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *BotClient) {
		c.breaker = cb
	}
}

func NewClient(baseURL, token string, opts ...Option) types.Client {
	c := &BotClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BotClient) SendText(ctx context.Context, chatID int64, text string, button *types.Button) (*types.SendResponse, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	attachButton(payload, button)

	return c.sendRequest(ctx, "/sendMessage", payload)
}

func (c *BotClient) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	return c.sendMedia(ctx, "/sendPhoto", "photo", chatID, fileID, caption, button)
}

func (c *BotClient) SendVideo(ctx context.Context, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	return c.sendMedia(ctx, "/sendVideo", "video", chatID, fileID, caption, button)
}

func (c *BotClient) SendDocument(ctx context.Context, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	return c.sendMedia(ctx, "/sendDocument", "document", chatID, fileID, caption, button)
}

func (c *BotClient) SendAudio(ctx context.Context, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	return c.sendMedia(ctx, "/sendAudio", "audio", chatID, fileID, caption, button)
}

func (c *BotClient) SendVoice(ctx context.Context, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	return c.sendMedia(ctx, "/sendVoice", "voice", chatID, fileID, caption, button)
}

func (c *BotClient) SendSticker(ctx context.Context, chatID int64, fileID string) (*types.SendResponse, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"sticker": fileID,
	}

	return c.sendRequest(ctx, "/sendSticker", payload)
}

func (c *BotClient) sendMedia(ctx context.Context, endpoint, field string, chatID int64, fileID, caption string, button *types.Button) (*types.SendResponse, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		field:     fileID,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	attachButton(payload, button)

	return c.sendRequest(ctx, endpoint, payload)
}

func attachButton(payload map[string]interface{}, button *types.Button) {
	if button == nil {
		return
	}
	payload["reply_markup"] = map[string]interface{}{
		"inline_keyboard": [][]map[string]string{
			{{"text": button.Label, "url": button.URL}},
		},
	}
}

func (c *BotClient) sendRequest(ctx context.Context, endpoint string, payload interface{}) (*types.SendResponse, error) {
	if c.breaker == nil {
		return c.doSend(ctx, endpoint, payload)
	}

	var result *types.SendResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = c.doSend(ctx, endpoint, payload)
		return sendErr
	})
	return result, err
}

func (c *BotClient) doSend(ctx context.Context, endpoint string, payload interface{}) (*types.SendResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := c.baseURL + "/bot" + c.token + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result types.SendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, constants.MaxResponseBodyBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &result, &DeliveryError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: result.Error}
	}

	return &result, nil
}

// DeliveryError carries the HTTP status of a failed send so callers
// can decide between the plain-text downgrade and a hard drop.
type DeliveryError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("send to %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}
