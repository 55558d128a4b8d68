package models

import "time"

// ForwardingRule links one source conversation to one target
// conversation for a user. Only active rules are bound to live
// listeners; inactive rules are retained for reactivation.
type ForwardingRule struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	SourceChatID   int64     `json:"sourceChatId"`
	SourceChatName string    `json:"sourceChatName,omitempty"`
	TargetChatID   int64     `json:"targetChatId"`
	TargetChatName string    `json:"targetChatName,omitempty"`
	ExtractPattern string    `json:"extractPattern,omitempty"`
	HeaderText     string    `json:"headerText,omitempty"`
	FooterText     string    `json:"footerText,omitempty"`
	ButtonLabel    string    `json:"buttonLabel,omitempty"`
	ButtonURL      string    `json:"buttonUrl,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HasButton reports whether the rule carries a complete inline button.
// A button is attached only when both label and URL are non-blank.
func (r *ForwardingRule) HasButton() bool {
	return r.ButtonLabel != "" && r.ButtonURL != ""
}
