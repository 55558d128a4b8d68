package types

import "context"

// Button is a single inline URL button attached below a message.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SendResponse is the delivery endpoint's reply.
type SendResponse struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Client delivers composed messages to target conversations. Media is
// sent by file reference; the relay never uploads content.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, button *Button) (*SendResponse, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, button *Button) (*SendResponse, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, button *Button) (*SendResponse, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, button *Button) (*SendResponse, error)
	SendAudio(ctx context.Context, chatID int64, fileID, caption string, button *Button) (*SendResponse, error)
	SendVoice(ctx context.Context, chatID int64, fileID, caption string, button *Button) (*SendResponse, error)
	SendSticker(ctx context.Context, chatID int64, fileID string) (*SendResponse, error)
}
