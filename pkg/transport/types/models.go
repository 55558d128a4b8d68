package types

import "time"

// Credential is the material needed to open a transport session.
// SessionBlob is an opaque exported session string; an empty blob asks
// the gateway for a bare probe session, which only succeeds if the
// gateway still holds server-side state for the app key pair.
type Credential struct {
	SessionBlob string `json:"session_blob"`
	AppID       int64  `json:"app_id"`
	AppHash     string `json:"app_hash"`
}

// SessionInfo describes the account behind a live session.
type SessionInfo struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// ConversationKind classifies a conversation on the transport side.
type ConversationKind string

const (
	ConversationPrivate    ConversationKind = "private"
	ConversationGroup      ConversationKind = "group"
	ConversationSupergroup ConversationKind = "supergroup"
	ConversationBroadcast  ConversationKind = "broadcast"
)

// ConversationInfo is cached conversation metadata.
type ConversationInfo struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title,omitempty"`
	Username string           `json:"username,omitempty"`
	Kind     ConversationKind `json:"kind"`
	CanPost  bool             `json:"can_post"`
}

// AccessRole is the capability a caller needs in a conversation.
type AccessRole string

const (
	RoleReader AccessRole = "reader"
	RoleWriter AccessRole = "writer"
)

// MediaAttachment references a media object carried by an event.
type MediaAttachment struct {
	Kind     string `json:"kind"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessageEvent is one message observed in a subscribed conversation.
// Text carries the message text, or the caption when Media is set.
type MessageEvent struct {
	ConversationID int64            `json:"conversation_id"`
	MessageID      int64            `json:"message_id"`
	Text           string           `json:"text,omitempty"`
	Media          *MediaAttachment `json:"media,omitempty"`
	ReceivedAt     time.Time        `json:"received_at"`
}
