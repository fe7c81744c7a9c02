package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/logger"
)

// LocationSink receives the active conversation id so the host UI can
// reflect it in the navigable location (URL), keeping reload/share working.
type LocationSink func(conversationID uuid.UUID)

// ActiveConversation is the snapshot returned by EnsureActive.
type ActiveConversation struct {
	ConversationID uuid.UUID
	SessionID      uuid.UUID
	Ephemeral      bool
}

// ConversationIdentity owns the lifecycle of the active conversation
// identifier: ephemeral -> persisted -> active -> archived.
//
// None of its operations touch the network; they are pure bookkeeping and
// cannot fail. Exactly one conversation is active at a time.
type ConversationIdentity struct {
	mu        sync.Mutex
	id        uuid.UUID
	sessionID uuid.UUID
	lifecycle Lifecycle

	locationSink LocationSink
	logger       *logger.Logger
}

// NewConversationIdentity creates an identity tracker with no active
// conversation. locationSink may be nil.
func NewConversationIdentity(locationSink LocationSink, log *logger.Logger) *ConversationIdentity {
	return &ConversationIdentity{
		locationSink: locationSink,
		logger:       log.WithComponent("conversation-identity"),
	}
}

// EnsureActive returns the active conversation, generating a fresh
// ephemeral one when none is active.
func (c *ConversationIdentity) EnsureActive() ActiveConversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle == LifecycleNone || c.lifecycle == LifecycleArchived {
		c.id = uuid.New()
		c.sessionID = uuid.New()
		c.lifecycle = LifecycleEphemeral

		c.logger.Info("ephemeral conversation created",
			slog.String("conversation_id", c.id.String()))

		if c.locationSink != nil {
			c.locationSink(c.id)
		}
	}

	return ActiveConversation{
		ConversationID: c.id,
		SessionID:      c.sessionID,
		Ephemeral:      c.lifecycle == LifecycleEphemeral,
	}
}

// Promote flips an ephemeral conversation to persisted after its first
// successful write. Idempotent: repeated calls and calls for a different
// id are no-ops. The id is immutable once lifecycle leaves ephemeral.
func (c *ConversationIdentity) Promote(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle != LifecycleEphemeral || c.id != conversationID {
		return
	}

	c.lifecycle = LifecyclePersisted
	c.logger.Info("conversation persisted",
		slog.String("conversation_id", conversationID.String()))
}

// SwitchTo adopts an existing conversation as active. The caller is
// responsible for tearing down the previous conversation's producers
// (MessageLog.Reset, RealtimeSync unsubscribe) first; the orchestrator
// wires this through its SwitchConversation operation.
func (c *ConversationIdentity) SwitchTo(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = conversationID
	c.sessionID = uuid.New()
	c.lifecycle = LifecycleActive

	c.logger.Info("switched active conversation",
		slog.String("conversation_id", conversationID.String()))

	if c.locationSink != nil {
		c.locationSink(conversationID)
	}
}

// Archive marks the active conversation archived. A later EnsureActive
// starts a fresh ephemeral conversation.
func (c *ConversationIdentity) Archive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle == LifecycleNone {
		return
	}

	c.lifecycle = LifecycleArchived
	c.logger.Info("conversation archived",
		slog.String("conversation_id", c.id.String()))
}

// Current returns the active conversation id and lifecycle.
func (c *ConversationIdentity) Current() (uuid.UUID, Lifecycle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id, c.lifecycle
}
