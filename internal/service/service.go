package service

import (
	"context"

	"telerelay/internal/models"
)

// Store is the persistence contract the relay core depends on. The
// sqlite implementation lives in internal/database.
type Store interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SetUserAuthenticated(ctx context.Context, userID int64, authenticated bool) error
	TouchUserActivity(ctx context.Context, userID int64) error
	GetAllAuthenticatedUsers(ctx context.Context) ([]models.User, error)

	SaveCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, userID int64) (*models.Credential, error)
	ClearCredential(ctx context.Context, userID int64, reason string) error
	CleanupCredentialBackups(retentionDays int) error

	SaveRule(ctx context.Context, rule *models.ForwardingRule) (int64, error)
	GetRule(ctx context.Context, ruleID int64) (*models.ForwardingRule, error)
	GetRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error)
	GetActiveRulesForUser(ctx context.Context, userID int64) ([]models.ForwardingRule, error)
	SetRuleActive(ctx context.Context, ruleID int64, active bool) error
	DeleteRule(ctx context.Context, ruleID int64) error
	PurgeRule(ctx context.Context, ruleID int64) error
}

// Enqueuer accepts captured envelopes for relay. Implementations must
// not block; subscription callbacks call this from transport readers.
type Enqueuer interface {
	Enqueue(env models.MessageEnvelope)
}
