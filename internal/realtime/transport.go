package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/chat"
)

// Event is the wire shape of a pushed message-row change. The channel is
// scoped to one conversation, so events carry no conversation id of their
// own.
type Event struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	SenderUserID  string    `json:"sender_user_id,omitempty"`
	SenderAgentID string    `json:"sender_agent_id,omitempty"`
}

// Handler receives each inbound event of a subscription.
type Handler func(Event)

// Subscription is an open push channel. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Transport opens push channels scoped to a conversation. ctx bounds the
// initial subscribe only; the channel then lives until Unsubscribe, with
// implementations recovering from drops internally. No redelivery
// guarantee is assumed; dedup is MessageLog's job.
type Transport interface {
	Subscribe(ctx context.Context, conversationID string, handler Handler) (Subscription, error)
}

// normalizeEvent converts a wire event into a transcript message.
// Events with roles other than user/assistant are dropped.
func normalizeEvent(ev Event, conversationID uuid.UUID) (chat.Message, bool) {
	var role chat.Role
	switch strings.ToLower(ev.Role) {
	case "user":
		role = chat.RoleUser
	case "assistant", "agent":
		role = chat.RoleAssistant
	default:
		return chat.Message{}, false
	}

	timestamp := ev.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return chat.Message{
		ID:             ev.ID,
		Role:           role,
		Content:        ev.Content,
		Timestamp:      timestamp,
		ConversationID: conversationID,
		SenderUserID:   ev.SenderUserID,
		SenderAgentID:  ev.SenderAgentID,
		Completed:      true,
	}, true
}
