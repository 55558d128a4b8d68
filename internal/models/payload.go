package models

// MediaKind discriminates the payload variants a relayed message can
// carry. Text payloads have no media reference; every other kind
// carries one.
type MediaKind string

const (
	MediaKindText     MediaKind = "text"
	MediaKindPhoto    MediaKind = "photo"
	MediaKindVideo    MediaKind = "video"
	MediaKindDocument MediaKind = "document"
	MediaKindAudio    MediaKind = "audio"
	MediaKindVoice    MediaKind = "voice"
	MediaKindSticker  MediaKind = "sticker"
)

// MediaRef identifies a media object on the transport side. Media is
// forwarded by reference; the relay never downloads file content.
type MediaRef struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessagePayload is the content of one captured message. Kind is the
// single discriminant: Text holds the message text for text payloads
// and the caption otherwise, Media is nil if and only if Kind is
// MediaKindText.
type MessagePayload struct {
	Kind  MediaKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Media *MediaRef `json:"media,omitempty"`
}

// IsText reports whether the payload is plain text.
func (p MessagePayload) IsText() bool {
	return p.Kind == MediaKindText
}
