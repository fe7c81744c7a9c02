package chat

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/metrics"
)

// MessageLog is the single ordered collection backing the rendered
// transcript. Three producers feed it: the orchestrator's optimistic
// appends, the HTTP response to the user's own request, and the realtime
// event stream. All mutation goes through Append/Merge/promote so the
// dedup invariant is enforced in one place.
//
// Thread-safety: every method takes the log mutex; the log is the only
// resource mutated by more than one goroutine.
type MessageLog struct {
	mu      sync.Mutex
	msgs    []*Message
	nextSeq uint64

	// maxMessages bounds the in-memory transcript per conversation.
	// Oldest entries are evicted first; the open thinking slot is never
	// evicted.
	maxMessages int

	logger *logger.Logger
}

// NewMessageLog creates an empty log bounded to maxMessages entries.
// A maxMessages of zero or less disables the bound.
func NewMessageLog(maxMessages int, log *logger.Logger) *MessageLog {
	return &MessageLog{
		msgs:        make([]*Message, 0, 64),
		nextSeq:     1,
		maxMessages: maxMessages,
		logger:      log.WithComponent("message-log"),
	}
}

// Append inserts an optimistic local message and returns its arrival
// sequence number. The message must not carry a server ID.
func (l *MessageLog) Append(m Message) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.ID = ""
	seq := l.appendLocked(&m)

	l.logger.Debug("optimistic message appended",
		slog.String("role", string(m.Role)),
		slog.Uint64("seq", seq))

	return seq
}

// Merge reconciles a server-authoritative message with the log.
//
// Rules, in order:
//  1. A message whose server ID is already present is a duplicate; no-op.
//  2. An unresolved optimistic message with the same role, conversation,
//     and content is resolved in place (server ID attached).
//  3. An assistant message with an open thinking slot in the same
//     conversation promotes that slot in place.
//  4. Otherwise the message is appended.
//
// Any interleaving of Append/Merge from any producer leaves each logical
// message in the log exactly once.
func (l *MessageLog) Merge(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m.ID != "" {
		for _, existing := range l.msgs {
			if existing.ID == m.ID {
				metrics.DuplicatesAbsorbed.Inc()
				l.logger.Debug("duplicate delivery absorbed",
					slog.String("message_id", m.ID))
				return
			}
		}
	}

	// Resolve an optimistic twin in place rather than appending a copy.
	for _, existing := range l.msgs {
		if existing.ID != "" || existing.ConversationID != m.ConversationID {
			continue
		}
		if existing.Role == m.Role && existing.Content == m.Content {
			existing.ID = m.ID
			if existing.SenderUserID == "" {
				existing.SenderUserID = m.SenderUserID
			}
			if existing.SenderAgentID == "" {
				existing.SenderAgentID = m.SenderAgentID
			}
			metrics.OptimisticResolved.Inc()
			l.logger.Debug("optimistic message resolved",
				slog.String("message_id", m.ID),
				slog.Uint64("seq", existing.Seq))
			return
		}
	}

	// A pushed assistant answer lands in the open thinking slot, if any.
	if m.Role == RoleAssistant {
		if slot := l.openThinkingLocked(m.ConversationID); slot != nil {
			slot.Role = RoleAssistant
			slot.ID = m.ID
			slot.Content = m.Content
			slot.Completed = true
			slot.SenderAgentID = m.SenderAgentID
			slot.Steps = finalizeSteps(slot.Steps, m.Timestamp)

			metrics.OptimisticResolved.Inc()
			l.logger.Debug("thinking slot promoted by realtime event",
				slog.String("message_id", m.ID),
				slog.Uint64("seq", slot.Seq))
			return
		}
	}

	l.appendLocked(&m)
}

// Render returns the transcript sorted by timestamp ascending, ties broken
// by arrival order. The returned slice is a copy.
func (l *MessageLog) Render() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = *m
	}

	// msgs is in arrival order, so a stable sort on timestamp alone
	// yields arrival-order tie-breaks.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Reset clears the log. Used on conversation switch.
func (l *MessageLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.msgs = l.msgs[:0]
	l.logger.Debug("message log reset")
}

// Discard removes an optimistic message that never reached the server.
// Returns false if the message is gone or already carries a server ID.
func (l *MessageLog) Discard(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, m := range l.msgs {
		if m.Seq != seq {
			continue
		}
		if m.ID != "" {
			// The write reached durable storage after all; keep it so
			// user input is not lost.
			return false
		}
		l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
		l.logger.Debug("optimistic message rolled back", slog.Uint64("seq", seq))
		return true
	}

	return false
}

// HasOpenThinking reports whether the conversation has an open turn slot.
func (l *MessageLog) HasOpenThinking(conversationID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.openThinkingLocked(conversationID) != nil
}

// Len returns the number of messages in the log.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.msgs)
}

// promoteThinking atomically converts the thinking slot identified by seq
// into the final assistant message. Returns false if the slot is gone or
// was already promoted (e.g. by a realtime event that arrived first);
// the caller must then treat the turn as already finalized.
func (l *MessageLog) promoteThinking(seq uint64, content string, steps []ProcessStep) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.msgs {
		if m.Seq != seq {
			continue
		}
		if !m.OpenThinking() {
			return false
		}
		m.Role = RoleAssistant
		m.Content = content
		m.Completed = true
		m.Steps = steps
		return true
	}

	return false
}

// failThinking marks the thinking slot completed without changing its role,
// so the UI renders it as an aborted turn. Returns false if the slot is
// gone or already finalized.
func (l *MessageLog) failThinking(seq uint64, steps []ProcessStep) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.msgs {
		if m.Seq != seq {
			continue
		}
		if !m.OpenThinking() {
			return false
		}
		m.Completed = true
		m.Steps = steps
		return true
	}

	return false
}

// updateThinkingSteps refreshes the step history shown on the open slot.
func (l *MessageLog) updateThinkingSteps(seq uint64, steps []ProcessStep) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.msgs {
		if m.Seq == seq && m.OpenThinking() {
			m.Steps = steps
			return
		}
	}
}

func (l *MessageLog) openThinkingLocked(conversationID uuid.UUID) *Message {
	for _, m := range l.msgs {
		if m.ConversationID == conversationID && m.OpenThinking() {
			return m
		}
	}
	return nil
}

func (l *MessageLog) appendLocked(m *Message) uint64 {
	m.Seq = l.nextSeq
	l.nextSeq++
	l.msgs = append(l.msgs, m)
	l.evictLocked()
	return m.Seq
}

func (l *MessageLog) evictLocked() {
	if l.maxMessages <= 0 {
		return
	}
	for len(l.msgs) > l.maxMessages {
		evicted := false
		for i, m := range l.msgs {
			if m.OpenThinking() {
				continue
			}
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// finalizeSteps closes any open step with its elapsed duration and appends
// the terminal completed step, so a turn finalized by a pushed event
// carries the same history shape as one finalized over HTTP.
func finalizeSteps(steps []ProcessStep, now time.Time) []ProcessStep {
	for i := range steps {
		if !steps[i].Completed {
			steps[i].Completed = true
			if d := now.Sub(steps[i].StartTime); d > 0 {
				steps[i].Duration = d
			}
		}
	}
	return append(steps, ProcessStep{
		Phase:     PhaseCompleted,
		Label:     defaultPhaseLabel(PhaseCompleted, nil),
		StartTime: now,
		Completed: true,
	})
}
