package realtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/chat"
	"github.com/eternisai/agent-console/internal/logger"
)

type fakeTransport struct {
	mu      sync.Mutex
	handler Handler
	scoped  string
	unsubs  int
}

func (f *fakeTransport) Subscribe(ctx context.Context, conversationID string, handler Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	f.scoped = conversationID
	return subscriptionFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubs++
		return nil
	}), nil
}

func (f *fakeTransport) push(ev Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }

func newSyncFixture(t *testing.T) (*Sync, *chat.MessageLog, *chat.ProcessingStateMachine, *fakeTransport) {
	t.Helper()
	lg := logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
	log := chat.NewMessageLog(0, lg)
	processing := chat.NewProcessingStateMachine(log, chat.RealClock(), nil, lg)
	transport := &fakeTransport{}
	return NewSync(transport, log, processing, lg), log, processing, transport
}

func TestSyncMergesPushedMessages(t *testing.T) {
	s, log, _, transport := newSyncFixture(t)
	convID := uuid.New()

	if err := s.Subscribe(context.Background(), convID); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if transport.scoped != convID.String() {
		t.Errorf("transport scoped to %q, expected %s", transport.scoped, convID)
	}

	transport.push(Event{ID: "srv-1", Role: "user", Content: "hi", CreatedAt: time.Now()})
	transport.push(Event{ID: "srv-1", Role: "user", Content: "hi", CreatedAt: time.Now()})

	if log.Len() != 1 {
		t.Errorf("duplicate delivery should collapse to one message, got %d", log.Len())
	}
}

func TestSyncAssistantEventClosesOpenSlot(t *testing.T) {
	s, log, processing, transport := newSyncFixture(t)
	convID := uuid.New()

	if err := s.Subscribe(context.Background(), convID); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := processing.Start(convID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	transport.push(Event{ID: "srv-2", Role: "assistant", Content: "done", CreatedAt: time.Now()})

	if processing.InFlight() {
		t.Error("assistant event should retire the open slot")
	}

	rendered := log.Render()
	if len(rendered) != 1 {
		t.Fatalf("expected the slot promoted in place, got %d messages", len(rendered))
	}
	if rendered[0].Role != chat.RoleAssistant || rendered[0].ID != "srv-2" {
		t.Errorf("unexpected promoted message: %+v", rendered[0])
	}
}

func TestSyncDropsUnknownRoles(t *testing.T) {
	s, log, _, transport := newSyncFixture(t)
	convID := uuid.New()

	if err := s.Subscribe(context.Background(), convID); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	transport.push(Event{ID: "srv-3", Role: "system", Content: "ignored"})

	if log.Len() != 0 {
		t.Errorf("non-chat roles must be dropped, got %d messages", log.Len())
	}
}

func TestSyncIgnoresStragglersAfterSwitch(t *testing.T) {
	s, log, _, transport := newSyncFixture(t)
	first := uuid.New()

	if err := s.Subscribe(context.Background(), first); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Capture the first conversation's handler, then switch away.
	transport.mu.Lock()
	stale := transport.handler
	transport.mu.Unlock()

	if err := s.Subscribe(context.Background(), uuid.New()); err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}

	stale(Event{ID: "srv-4", Role: "user", Content: "late", CreatedAt: time.Now()})

	if log.Len() != 0 {
		t.Errorf("stale events must be ignored after a switch, got %d messages", log.Len())
	}

	if transport.unsubs != 1 {
		t.Errorf("expected the first subscription released, got %d unsubscribes", transport.unsubs)
	}
}

func TestNormalizeEvent(t *testing.T) {
	convID := uuid.New()

	tests := []struct {
		name     string
		event    Event
		wantOK   bool
		wantRole chat.Role
	}{
		{
			name:     "user role",
			event:    Event{ID: "1", Role: "user", Content: "hi"},
			wantOK:   true,
			wantRole: chat.RoleUser,
		},
		{
			name:     "assistant role",
			event:    Event{ID: "2", Role: "assistant", Content: "hello"},
			wantOK:   true,
			wantRole: chat.RoleAssistant,
		},
		{
			name:     "agent alias",
			event:    Event{ID: "3", Role: "Agent", Content: "hello"},
			wantOK:   true,
			wantRole: chat.RoleAssistant,
		},
		{
			name:   "unknown role dropped",
			event:  Event{ID: "4", Role: "system", Content: "x"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := normalizeEvent(tt.event, convID)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !ok {
				return
			}
			if msg.Role != tt.wantRole {
				t.Errorf("expected role %s, got %s", tt.wantRole, msg.Role)
			}
			if msg.ConversationID != convID {
				t.Errorf("conversation id not stamped: %s", msg.ConversationID)
			}
			if !msg.Completed {
				t.Error("pushed messages are always completed")
			}
			if msg.Timestamp.IsZero() {
				t.Error("zero timestamps must be filled in")
			}
		})
	}
}
