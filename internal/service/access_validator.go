package service

import (
	"context"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/models"
	transporttypes "telerelay/pkg/transport/types"

	"github.com/sirupsen/logrus"
)

// AccessValidator confirms a conversation is reachable and usable in a
// given role before a rule is bound to it. A successful validation
// also warms the handle's conversation cache for that id.
type AccessValidator struct {
	logger   *logrus.Logger
	attempts int
}

func NewAccessValidator(logger *logrus.Logger, attempts int) *AccessValidator {
	if attempts <= 0 {
		attempts = constants.DefaultValidationAttempts
	}
	return &AccessValidator{
		logger:   logger,
		attempts: attempts,
	}
}

// Validate resolves a conversation and checks it against the role. On
// an unresolvable id it refreshes the handle's conversation cache once
// and keeps retrying; a forbidden classification fails immediately.
func (v *AccessValidator) Validate(ctx context.Context, handle transporttypes.Handle, conversationID int64, role transporttypes.AccessRole) (*transporttypes.ConversationInfo, error) {
	return v.validate(ctx, handle, conversationID, role, v.attempts)
}

// ValidateOnce is the single-shot variant used where the caller does
// its own retrying.
func (v *AccessValidator) ValidateOnce(ctx context.Context, handle transporttypes.Handle, conversationID int64, role transporttypes.AccessRole) (*transporttypes.ConversationInfo, error) {
	return v.validate(ctx, handle, conversationID, role, 1)
}

func (v *AccessValidator) validate(ctx context.Context, handle transporttypes.Handle, conversationID int64, role transporttypes.AccessRole, attempts int) (*transporttypes.ConversationInfo, error) {
	log := v.logger.WithFields(logrus.Fields{
		"conversationId": conversationID,
		"role":           string(role),
	})

	refreshed := false
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		info, err := handle.Conversation(ctx, conversationID)
		if err == nil {
			return v.checkRole(info, role)
		}
		lastErr = err

		if errors.IsConversationForbidden(err) {
			log.WithError(err).Warn("Conversation access forbidden")
			return nil, errors.Wrap(err, errors.ErrCodeConversationForbidden, "conversation access forbidden")
		}

		if errors.IsConversationUnresolvable(err) && !refreshed {
			refreshed = true
			log.WithError(err).Info("Conversation id unresolvable, refreshing conversation cache")
			if refreshErr := handle.RefreshConversations(ctx); refreshErr != nil {
				log.WithError(refreshErr).Warn("Conversation cache refresh failed")
			}
			continue
		}

		log.WithError(err).WithField("attempt", attempt).Debug("Conversation validation attempt failed")
	}

	return nil, errors.Wrap(lastErr, errors.ErrCodeConversationUnresolvable, "conversation validation exhausted retries")
}

// checkRole rejects conversations the role cannot use. Sources only
// need read visibility, which resolution already proved. Targets need
// posting rights.
func (v *AccessValidator) checkRole(info *transporttypes.ConversationInfo, role transporttypes.AccessRole) (*transporttypes.ConversationInfo, error) {
	if info.Kind == transporttypes.ConversationPrivate {
		return nil, errors.New(errors.ErrCodeConversationForbidden, "private conversations cannot be bound to forwarding rules")
	}
	if role == transporttypes.RoleWriter && !info.CanPost {
		return nil, errors.New(errors.ErrCodeConversationForbidden, "no posting rights in target conversation")
	}
	return info, nil
}

// ValidateRule checks both ends of a rule: the source as a readable
// conversation and the target as a writable one.
func (v *AccessValidator) ValidateRule(ctx context.Context, handle transporttypes.Handle, rule *models.ForwardingRule) error {
	if _, err := v.Validate(ctx, handle, rule.SourceChatID, transporttypes.RoleReader); err != nil {
		return err
	}
	if _, err := v.Validate(ctx, handle, rule.TargetChatID, transporttypes.RoleWriter); err != nil {
		return err
	}
	return nil
}
