package models

import "time"

// MessageEnvelope is one captured message queued for relay. RuleID is
// re-resolved against the store at processing time so envelopes whose
// rule was deleted or deactivated in flight are dropped.
type MessageEnvelope struct {
	ID           string         `json:"id"`
	UserID       int64          `json:"userId"`
	RuleID       int64          `json:"ruleId"`
	SourceChatID int64          `json:"sourceChatId"`
	TargetChatID int64          `json:"targetChatId"`
	Payload      MessagePayload `json:"payload"`
	CapturedAt   time.Time      `json:"capturedAt"`
}
