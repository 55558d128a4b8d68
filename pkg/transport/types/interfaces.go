package types

import "context"

// EventHandler receives message events for a subscription. Handlers
// must not block; slow work belongs on the consumer side of a queue.
type EventHandler func(event MessageEvent)

// SubscriptionToken identifies one conversation subscription on a
// handle.
type SubscriptionToken int64

// Handle is one live transport session.
type Handle interface {
	// Probe checks that the session is alive and returns the account
	// it belongs to.
	Probe(ctx context.Context) (*SessionInfo, error)

	// Conversations lists the conversations the session can see and
	// refreshes the handle's local cache.
	Conversations(ctx context.Context) ([]ConversationInfo, error)

	// Conversation resolves a single conversation, from the local
	// cache when possible.
	Conversation(ctx context.Context, conversationID int64) (*ConversationInfo, error)

	// RefreshConversations drops the local cache and rebuilds it.
	RefreshConversations(ctx context.Context) error

	// Subscribe registers a handler for messages in a conversation.
	Subscribe(conversationID int64, handler EventHandler) (SubscriptionToken, error)

	// Unsubscribe removes a subscription. Unknown tokens are ignored.
	Unsubscribe(token SubscriptionToken)

	// ExportCredential serializes the session into a fresh blob.
	ExportCredential(ctx context.Context) (string, error)

	// Logout terminates the session on the transport side and closes
	// the handle.
	Logout(ctx context.Context) error

	// Close releases the handle without touching transport state.
	Close() error
}

// Client opens transport sessions through the gateway.
type Client interface {
	Connect(ctx context.Context, cred Credential) (Handle, error)
}
