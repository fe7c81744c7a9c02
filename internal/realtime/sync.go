package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/chat"
	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/metrics"
)

// Sync feeds pushed message events into the MessageLog for the active
// conversation. It satisfies chat.RealtimeChannel.
//
// A pushed assistant event additionally closes any open thinking slot
// immediately, covering the case where the push beats the HTTP response
// the same client is awaiting. Correctness under duplicate delivery and
// either arrival order comes from MessageLog.Merge, not from the
// transport.
type Sync struct {
	transport  Transport
	log        *chat.MessageLog
	processing *chat.ProcessingStateMachine
	logger     *logger.Logger

	mu             sync.Mutex
	sub            Subscription
	conversationID uuid.UUID
}

// NewSync creates a Sync over transport.
func NewSync(transport Transport, log *chat.MessageLog, processing *chat.ProcessingStateMachine, lg *logger.Logger) *Sync {
	return &Sync{
		transport:  transport,
		log:        log,
		processing: processing,
		logger:     lg.WithComponent("realtime-sync"),
	}
}

// Subscribe opens the push channel for conversationID, tearing down any
// previous channel first.
func (s *Sync) Subscribe(ctx context.Context, conversationID uuid.UUID) error {
	s.Unsubscribe()

	sub, err := s.transport.Subscribe(ctx, conversationID.String(), func(ev Event) {
		s.handleEvent(conversationID, ev)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.conversationID = conversationID
	s.mu.Unlock()

	s.logger.Debug("subscribed to conversation",
		slog.String("conversation_id", conversationID.String()))

	return nil
}

// Unsubscribe tears down the channel. Safe to call when not subscribed.
func (s *Sync) Unsubscribe() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.conversationID = uuid.Nil
	s.mu.Unlock()

	if sub == nil {
		return
	}

	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("failed to unsubscribe", slog.String("error", err.Error()))
	}
}

func (s *Sync) handleEvent(conversationID uuid.UUID, ev Event) {
	// Ignore stragglers delivered after a conversation switch.
	s.mu.Lock()
	active := s.conversationID
	s.mu.Unlock()
	if active != conversationID {
		return
	}

	msg, ok := normalizeEvent(ev, conversationID)
	if !ok {
		return
	}

	metrics.RealtimeEvents.Inc()
	s.log.Merge(msg)

	// Merge first, observe second: by the time the state machine resets,
	// the log has already resolved the slot, so the HTTP completion that
	// may still be in flight becomes a no-op.
	if msg.Role == chat.RoleAssistant && s.processing != nil {
		s.processing.ObserveAssistant(conversationID)
	}
}
