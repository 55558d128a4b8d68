package models

import "time"

// Credential is the serialized transport credential for one user.
// SessionBlob is the opaque exported session string; AppID and AppHash
// are the transport application key pair it was issued under.
type Credential struct {
	UserID      int64     `json:"userId"`
	SessionBlob string    `json:"sessionBlob"`
	AppID       int64     `json:"appId"`
	AppHash     string    `json:"appHash"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CredentialBackup is one historical credential snapshot. The store
// keeps at most MaxCredentialBackups per user, evicting the oldest.
type CredentialBackup struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	SessionBlob string    `json:"sessionBlob"`
	AppID       int64     `json:"appId"`
	AppHash     string    `json:"appHash"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MaxCredentialBackups bounds the per-user credential history.
const MaxCredentialBackups = 5
