package chat

import (
	"testing"

	"github.com/google/uuid"
)

func TestEnsureActiveGeneratesEphemeral(t *testing.T) {
	var sunk []uuid.UUID
	identity := NewConversationIdentity(func(id uuid.UUID) {
		sunk = append(sunk, id)
	}, testLogger())

	first := identity.EnsureActive()
	if first.ConversationID == uuid.Nil || first.SessionID == uuid.Nil {
		t.Fatal("expected non-nil ids")
	}
	if !first.Ephemeral {
		t.Error("fresh conversation should be ephemeral")
	}

	// Stable until the lifecycle changes.
	second := identity.EnsureActive()
	if second.ConversationID != first.ConversationID {
		t.Error("repeated EnsureActive must return the same conversation")
	}
	if second.SessionID != first.SessionID {
		t.Error("repeated EnsureActive must return the same session")
	}

	if len(sunk) != 1 || sunk[0] != first.ConversationID {
		t.Errorf("expected one location update with the new id, got %v", sunk)
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	identity := NewConversationIdentity(nil, testLogger())
	active := identity.EnsureActive()

	identity.Promote(active.ConversationID)
	id, lifecycle := identity.Current()
	if lifecycle != LifecyclePersisted {
		t.Fatalf("expected persisted, got %s", lifecycle)
	}
	if id != active.ConversationID {
		t.Error("promotion must not change the id")
	}

	identity.Promote(active.ConversationID)
	if _, lc := identity.Current(); lc != LifecyclePersisted {
		t.Errorf("repeated promote changed lifecycle to %s", lc)
	}
}

func TestPromoteIgnoresMismatchedID(t *testing.T) {
	identity := NewConversationIdentity(nil, testLogger())
	identity.EnsureActive()

	identity.Promote(uuid.New())
	if _, lifecycle := identity.Current(); lifecycle != LifecycleEphemeral {
		t.Errorf("promote for a different id must be a no-op, got %s", lifecycle)
	}
}

func TestSwitchToAdoptsConversation(t *testing.T) {
	var sunk []uuid.UUID
	identity := NewConversationIdentity(func(id uuid.UUID) {
		sunk = append(sunk, id)
	}, testLogger())

	before := identity.EnsureActive()
	adopted := uuid.New()
	identity.SwitchTo(adopted)

	id, lifecycle := identity.Current()
	if id != adopted {
		t.Errorf("expected adopted id %s, got %s", adopted, id)
	}
	if lifecycle != LifecycleActive {
		t.Errorf("expected active lifecycle, got %s", lifecycle)
	}

	after := identity.EnsureActive()
	if after.SessionID == before.SessionID {
		t.Error("switching must start a fresh session")
	}
	if after.Ephemeral {
		t.Error("an adopted conversation is not ephemeral")
	}

	if len(sunk) != 2 || sunk[1] != adopted {
		t.Errorf("expected location updated to the adopted id, got %v", sunk)
	}
}

func TestArchiveStartsFreshOnNextEnsure(t *testing.T) {
	identity := NewConversationIdentity(nil, testLogger())
	before := identity.EnsureActive()

	identity.Archive()
	if _, lifecycle := identity.Current(); lifecycle != LifecycleArchived {
		t.Fatalf("expected archived, got %s", lifecycle)
	}

	after := identity.EnsureActive()
	if after.ConversationID == before.ConversationID {
		t.Error("EnsureActive after archive must generate a fresh conversation")
	}
	if !after.Ephemeral {
		t.Error("the fresh conversation should be ephemeral")
	}
}

func TestArchiveWithoutConversationIsNoop(t *testing.T) {
	identity := NewConversationIdentity(nil, testLogger())
	identity.Archive()

	if _, lifecycle := identity.Current(); lifecycle != LifecycleNone {
		t.Errorf("archive before any conversation must be a no-op, got %s", lifecycle)
	}
}
