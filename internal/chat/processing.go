package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/agent-console/internal/logger"
)

// ErrTurnInFlight is returned by Start while a thinking slot is open.
// Callers must await completion or failure of the running turn first.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// LabelFunc produces the human-readable label for a phase. A nil func
// falls back to defaultPhaseLabel.
type LabelFunc func(phase Phase, tool *ToolInfo) string

// ThinkingHandle identifies the placeholder message of an in-flight turn.
type ThinkingHandle struct {
	seq            uint64
	conversationID uuid.UUID
}

// Seq returns the log sequence number of the thinking message.
func (h *ThinkingHandle) Seq() uint64 {
	return h.seq
}

// ProcessingStateMachine tracks the phases of one in-flight turn and owns
// the single thinking placeholder in the MessageLog.
//
// Phase progression is linear: thinking -> analyzing_tools ->
// (executing_tool -> processing_results)? -> generating_response ->
// completed | failed. Skipping the tool phases is the only permitted
// branch, taken when no tool is inferred for the turn. Repeated visits to
// the current phase update its open step in place instead of creating a
// new one.
type ProcessingStateMachine struct {
	mu       sync.Mutex
	log      *MessageLog
	clock    Clock
	labelFor LabelFunc
	logger   *logger.Logger

	open           bool
	seq            uint64
	conversationID uuid.UUID
	current        Phase
	steps          []ProcessStep
}

// NewProcessingStateMachine creates an idle state machine bound to log.
func NewProcessingStateMachine(log *MessageLog, clock Clock, labelFor LabelFunc, lg *logger.Logger) *ProcessingStateMachine {
	if labelFor == nil {
		labelFor = defaultPhaseLabel
	}

	return &ProcessingStateMachine{
		log:      log,
		clock:    clock,
		labelFor: labelFor,
		logger:   lg.WithComponent("processing"),
		current:  PhaseIdle,
	}
}

// Start opens a turn: inserts the thinking placeholder into the log and
// enters the thinking phase. Refuses to open a second slot.
func (p *ProcessingStateMachine) Start(conversationID uuid.UUID) (*ThinkingHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return nil, ErrTurnInFlight
	}

	now := p.clock.Now()
	seq := p.log.Append(Message{
		Role:           RoleThinking,
		Timestamp:      now,
		ConversationID: conversationID,
	})

	p.open = true
	p.seq = seq
	p.conversationID = conversationID
	p.current = PhaseThinking
	p.steps = []ProcessStep{{
		Phase:     PhaseThinking,
		Label:     p.labelFor(PhaseThinking, nil),
		StartTime: now,
	}}
	p.pushStepsLocked()

	p.logger.Debug("turn started",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("seq", seq))

	return &ThinkingHandle{seq: seq, conversationID: conversationID}, nil
}

// Advance moves to phase. On the first visit the previous phase's step is
// closed and a new one opened; a repeated visit updates the open step's
// tool info instead. Out-of-order transitions are ignored with a warning
// so elapsed-per-phase stays meaningful.
func (p *ProcessingStateMachine) Advance(phase Phase, tool *ToolInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}

	if phase == p.current {
		if step := p.openStepLocked(); step != nil {
			step.Tool = tool
			if tool != nil {
				step.Label = p.labelFor(phase, tool)
			}
			p.pushStepsLocked()
		}
		return
	}

	if phase.Order() < p.current.Order() {
		p.logger.Warn("ignoring backwards phase transition",
			slog.String("from", string(p.current)),
			slog.String("to", string(phase)))
		return
	}

	now := p.clock.Now()
	p.closeOpenStepLocked(now)

	p.current = phase
	p.steps = append(p.steps, ProcessStep{
		Phase:     phase,
		Label:     p.labelFor(phase, tool),
		StartTime: now,
		Tool:      tool,
	})
	p.pushStepsLocked()
}

// CompleteWithResponse closes all open steps and resolves the thinking
// placeholder into the final assistant message. This is the single place
// that retires the open slot on success. Returns false when the slot was
// already finalized (a realtime event for the same answer won the race);
// the log is unchanged in that case, preserving exactly-once.
func (p *ProcessingStateMachine) CompleteWithResponse(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return false
	}

	now := p.clock.Now()
	p.closeOpenStepLocked(now)
	p.steps = append(p.steps, ProcessStep{
		Phase:     PhaseCompleted,
		Label:     p.labelFor(PhaseCompleted, nil),
		StartTime: now,
		Completed: true,
	})

	promoted := p.log.promoteThinking(p.seq, text, p.snapshotStepsLocked())
	p.resetLocked()

	if !promoted {
		p.logger.Debug("slot already finalized, completion is a no-op")
	}

	return promoted
}

// Fail marks the thinking placeholder completed without changing its role
// and retires the slot. Used for transport failures and cancellation.
func (p *ProcessingStateMachine) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}

	now := p.clock.Now()
	p.closeOpenStepLocked(now)
	p.steps = append(p.steps, ProcessStep{
		Phase:     PhaseFailed,
		Label:     p.labelFor(PhaseFailed, nil),
		StartTime: now,
		Completed: true,
	})

	p.log.failThinking(p.seq, p.snapshotStepsLocked())
	p.resetLocked()

	p.logger.Debug("turn failed, slot retired")
}

// ObserveAssistant is called by the realtime subscriber when a pushed
// assistant message arrives for the active conversation. The log has
// already promoted the slot via Merge; this only retires the in-flight
// bookkeeping so the awaited HTTP completion becomes a no-op.
func (p *ProcessingStateMachine) ObserveAssistant(conversationID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open || p.conversationID != conversationID {
		return
	}

	p.closeOpenStepLocked(p.clock.Now())
	p.resetLocked()

	p.logger.Debug("open slot closed by realtime assistant event",
		slog.String("conversation_id", conversationID.String()))
}

// InFlight reports whether a turn is currently open.
func (p *ProcessingStateMachine) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.open
}

// Current returns the current phase, PhaseIdle between turns.
func (p *ProcessingStateMachine) Current() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current
}

func (p *ProcessingStateMachine) openStepLocked() *ProcessStep {
	if len(p.steps) == 0 {
		return nil
	}
	step := &p.steps[len(p.steps)-1]
	if step.Completed {
		return nil
	}
	return step
}

func (p *ProcessingStateMachine) closeOpenStepLocked(now time.Time) {
	if step := p.openStepLocked(); step != nil {
		step.Completed = true
		step.Duration = now.Sub(step.StartTime)
	}
}

func (p *ProcessingStateMachine) pushStepsLocked() {
	p.log.updateThinkingSteps(p.seq, p.snapshotStepsLocked())
}

func (p *ProcessingStateMachine) snapshotStepsLocked() []ProcessStep {
	out := make([]ProcessStep, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *ProcessingStateMachine) resetLocked() {
	p.open = false
	p.current = PhaseIdle
	p.steps = nil
	p.seq = 0
	p.conversationID = uuid.Nil
}

func defaultPhaseLabel(phase Phase, tool *ToolInfo) string {
	switch phase {
	case PhaseThinking:
		return "Thinking"
	case PhaseAnalyzingTools:
		return "Deciding which tools to use"
	case PhaseExecutingTool:
		if tool != nil && tool.ToolName != "" {
			return "Running " + tool.ToolName
		}
		return "Running a tool"
	case PhaseProcessingResults:
		return "Processing results"
	case PhaseGeneratingResponse:
		return "Writing a response"
	case PhaseCompleted:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return string(phase)
	}
}
