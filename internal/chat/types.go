package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who a message is from. RoleThinking is the in-progress
// placeholder for a turn that has not produced an answer yet.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleThinking  Role = "thinking"
)

// Phase is one step of the visible turn-processing pipeline.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseThinking           Phase = "thinking"
	PhaseAnalyzingTools     Phase = "analyzing_tools"
	PhaseExecutingTool      Phase = "executing_tool"
	PhaseProcessingResults  Phase = "processing_results"
	PhaseGeneratingResponse Phase = "generating_response"
	PhaseCompleted          Phase = "completed"
	PhaseFailed             Phase = "failed"
)

// phaseOrder maps each phase to its pipeline position. Used to enforce
// in-order advancement so elapsed-time-per-phase stays meaningful.
var phaseOrder = map[Phase]int{
	PhaseIdle:               0,
	PhaseThinking:           1,
	PhaseAnalyzingTools:     2,
	PhaseExecutingTool:      3,
	PhaseProcessingResults:  4,
	PhaseGeneratingResponse: 5,
	PhaseCompleted:          6,
	PhaseFailed:             6,
}

// Order returns the pipeline position of the phase.
func (p Phase) Order() int {
	return phaseOrder[p]
}

// Terminal reports whether the phase ends a turn.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// ToolInfo describes the tool a turn is (believed to be) executing.
type ToolInfo struct {
	ToolName string `json:"tool_name"`
	Provider string `json:"provider"`
	Status   string `json:"status"`
}

// ProcessStep records one phase of a turn's history. The sequence is
// attached to the thinking message while the turn runs and frozen onto the
// final assistant message for later inspection.
type ProcessStep struct {
	Phase     Phase         `json:"phase"`
	Label     string        `json:"label"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration,omitempty"`
	Completed bool          `json:"completed"`
	Tool      *ToolInfo     `json:"tool_info,omitempty"`
}

// Attachment references a document attached to a user message. Upload and
// text extraction happen elsewhere; the engine only carries the reference.
type Attachment struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
}

// Message is one entry of the conversation transcript.
//
// ID is the server-assigned identity and stays empty for optimistic local
// inserts until the authoritative copy arrives. Seq is a client-local
// arrival number assigned by MessageLog; it breaks timestamp ties and lets
// the engine address optimistic messages before they have a server ID.
type Message struct {
	ID             string       `json:"id,omitempty"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	SenderUserID   string       `json:"sender_user_id,omitempty"`
	SenderAgentID  string       `json:"sender_agent_id,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Completed      bool         `json:"is_completed"`
	Steps          []ProcessStep `json:"process_details,omitempty"`

	Seq uint64 `json:"-"`
}

// OpenThinking reports whether the message is the open placeholder slot
// of an in-flight turn.
func (m *Message) OpenThinking() bool {
	return m.Role == RoleThinking && !m.Completed
}

// Lifecycle is the conversation identifier lifecycle.
type Lifecycle string

const (
	// LifecycleNone means no conversation is active yet.
	LifecycleNone Lifecycle = ""

	// LifecycleEphemeral is a client-generated id not yet confirmed
	// written to durable storage.
	LifecycleEphemeral Lifecycle = "ephemeral"

	// LifecyclePersisted means the first message write succeeded.
	LifecyclePersisted Lifecycle = "persisted"

	// LifecycleActive is an adopted, previously persisted conversation.
	LifecycleActive Lifecycle = "active"

	// LifecycleArchived conversations are read-only history.
	LifecycleArchived Lifecycle = "archived"
)
