package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eternisai/agent-console/internal/agent"
	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/metrics"
	"github.com/eternisai/agent-console/internal/toolcat"
)

// AgentCaller is the outbound request contract to the agent backend.
type AgentCaller interface {
	Send(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
}

// RealtimeChannel is the subscribe/event contract to the push transport.
// The channel feeds MessageLog.Merge internally; the orchestrator only
// manages its lifecycle across conversation switches.
type RealtimeChannel interface {
	Subscribe(ctx context.Context, conversationID uuid.UUID) error
	Unsubscribe()
}

// ConversationRecorder writes the persisted conversation record. All
// calls are opportunistic: failures are logged, never surfaced.
type ConversationRecorder interface {
	// RecordFirstMessage creates the conversation row on the first
	// successful write, deriving the title from the message text.
	RecordFirstMessage(ctx context.Context, conversationID, agentID, userID, firstMessage string) error

	// Touch refreshes last_active on a subsequent write.
	Touch(ctx context.Context, conversationID string) error

	// Archive flips the record out of active status.
	Archive(ctx context.Context, conversationID string) error
}

// OrchestratorOptions wires a TurnOrchestrator. Realtime and Recorder may
// be nil (offline or test use); everything else is required.
type OrchestratorOptions struct {
	Identity    *ConversationIdentity
	Log         *MessageLog
	Processing  *ProcessingStateMachine
	Client      AgentCaller
	Realtime    RealtimeChannel
	Recorder    ConversationRecorder
	Categorizer *toolcat.Categorizer
	Preferences AgentPreferences
	Clock       Clock

	// MinPhaseDuration is the minimum visible duration of each display
	// phase, so the UI never flashes a phase imperceptibly.
	MinPhaseDuration time.Duration

	AgentID string
	UserID  string
	Logger  *logger.Logger
}

// TurnOrchestrator is the composition root for one user turn: it reserves
// the conversation id, appends the optimistic user message, drives the
// processing state machine against a minimum-duration phase timeline,
// issues the outbound request, and finalizes the turn.
type TurnOrchestrator struct {
	identity    *ConversationIdentity
	log         *MessageLog
	processing  *ProcessingStateMachine
	client      AgentCaller
	realtime    RealtimeChannel
	recorder    ConversationRecorder
	categorizer *toolcat.Categorizer
	prefs       AgentPreferences
	clock       Clock
	minPhase    time.Duration
	agentID     string
	userID      string
	logger      *logger.Logger

	mu           sync.Mutex
	cancelActive context.CancelFunc
	turnDone     chan struct{}
	subscribedTo uuid.UUID
}

// NewTurnOrchestrator creates an orchestrator from opts.
func NewTurnOrchestrator(opts OrchestratorOptions) *TurnOrchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}

	return &TurnOrchestrator{
		identity:    opts.Identity,
		log:         opts.Log,
		processing:  opts.Processing,
		client:      opts.Client,
		realtime:    opts.Realtime,
		recorder:    opts.Recorder,
		categorizer: opts.Categorizer,
		prefs:       opts.Preferences,
		clock:       clock,
		minPhase:    opts.MinPhaseDuration,
		agentID:     opts.AgentID,
		userID:      opts.UserID,
		logger:      opts.Logger.WithComponent("turn-orchestrator"),
	}
}

// Submit runs one user turn to completion. A second Submit while a turn is
// in flight aborts the running turn first, then proceeds.
//
// Returns nil on success and on an oversized-context rejection (which is
// user-facing guidance, not a failure). Returns ctx errors for aborts and
// wrapped transport errors otherwise; in both failure cases the open
// thinking slot has been retired and the engine is idle again.
func (o *TurnOrchestrator) Submit(ctx context.Context, text string, attachments []Attachment) error {
	if err := o.interruptInFlight(ctx); err != nil {
		return err
	}

	active := o.identity.EnsureActive()

	ctx = logger.WithConversationID(ctx, active.ConversationID.String())
	ctx = logger.WithAgentID(ctx, o.agentID)
	ctx = logger.WithUserID(ctx, o.userID)
	ctx = logger.WithTurnID(ctx, logger.GenerateTurnID())
	turnLog := o.logger.WithContext(ctx)

	if err := o.ensureSubscribed(ctx, active.ConversationID); err != nil {
		// Realtime is a recovery channel, not a prerequisite; the HTTP
		// response alone still completes the turn.
		turnLog.Warn("realtime subscription failed, continuing without it",
			slog.String("error", err.Error()))
	}

	userSeq := o.log.Append(Message{
		Role:           RoleUser,
		Content:        text,
		Timestamp:      o.clock.Now(),
		ConversationID: active.ConversationID,
		SenderUserID:   o.userID,
		Attachments:    attachments,
	})

	if _, err := o.processing.Start(active.ConversationID); err != nil {
		o.log.Discard(userSeq)
		return err
	}

	metrics.TurnsStarted.Inc()
	started := o.clock.Now()

	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.mu.Lock()
	o.cancelActive = cancel
	o.turnDone = done
	o.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		o.mu.Lock()
		o.cancelActive = nil
		o.turnDone = nil
		o.mu.Unlock()
	}()

	tool := o.inferTool(text)

	var result *agent.TurnResult
	g, gctx := errgroup.WithContext(turnCtx)

	g.Go(func() error {
		res, err := o.client.Send(gctx, o.buildRequest(active, text, attachments))
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	// The display timeline runs concurrently with the request so the UI
	// shows each phase for at least minPhase even when the backend
	// answers instantly. Wait covers both: a finished request does not
	// cut the timeline short, and a finished timeline never delays the
	// answer.
	g.Go(func() error {
		o.runPhaseTimeline(gctx, tool)
		return nil
	})

	err := g.Wait()

	switch {
	case err == nil:
		o.processing.Advance(PhaseGeneratingResponse, nil)
		if o.processing.CompleteWithResponse(result.Text) {
			turnLog.Info("turn completed",
				slog.Duration("duration", o.clock.Now().Sub(started)))
		} else {
			turnLog.Info("turn already finalized by realtime event")
		}
		metrics.TurnsCompleted.Inc()
		metrics.TurnDuration.Observe(o.clock.Now().Sub(started).Seconds())
		o.recordWrite(ctx, active, text)
		return nil

	case errors.Is(err, agent.ErrContextTooLarge):
		// Soft outcome: substitute an explanatory assistant message.
		o.processing.CompleteWithResponse(oversizedContextMessage(err))
		metrics.TurnsOversized.Inc()
		turnLog.Info("turn rejected as oversized, substitute response shown")
		return nil

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.processing.Fail()
		metrics.TurnsFailed.Inc()
		turnLog.Info("turn aborted", slog.String("reason", err.Error()))
		return err

	default:
		o.processing.Fail()
		metrics.TurnsFailed.Inc()
		// Roll back the optimistic user message only when the write
		// never reached the backend; otherwise keep it so user input
		// is not lost.
		if errors.Is(err, agent.ErrBackendUnreachable) {
			o.log.Discard(userSeq)
		}
		o.logger.LogError(ctx, err, "turn failed")
		return fmt.Errorf("turn failed: %w", err)
	}
}

// Cancel aborts the in-flight turn, if any. The turn finishes as failed,
// retiring the open thinking slot.
func (o *TurnOrchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancelActive
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// SwitchConversation tears down the current conversation's producers and
// adopts conversationID as active. Any turn left open is implicitly
// failed; the new conversation starts from an empty log.
func (o *TurnOrchestrator) SwitchConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := o.interruptInFlight(ctx); err != nil {
		return err
	}

	if o.realtime != nil {
		o.realtime.Unsubscribe()
	}
	o.mu.Lock()
	o.subscribedTo = uuid.Nil
	o.mu.Unlock()

	o.log.Reset()
	o.identity.SwitchTo(conversationID)

	if err := o.ensureSubscribed(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to subscribe to conversation: %w", err)
	}

	return nil
}

// ArchiveConversation archives the active conversation and releases its
// producers.
func (o *TurnOrchestrator) ArchiveConversation(ctx context.Context) error {
	if err := o.interruptInFlight(ctx); err != nil {
		return err
	}

	id, lifecycle := o.identity.Current()
	if lifecycle == LifecycleNone {
		return nil
	}

	if o.realtime != nil {
		o.realtime.Unsubscribe()
	}
	o.mu.Lock()
	o.subscribedTo = uuid.Nil
	o.mu.Unlock()

	o.log.Reset()
	o.identity.Archive()

	if o.recorder != nil && lifecycle != LifecycleEphemeral {
		if err := o.recorder.Archive(context.WithoutCancel(ctx), id.String()); err != nil {
			o.logger.Warn("failed to archive conversation record",
				slog.String("conversation_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// interruptInFlight cancels a running turn and waits for it to settle.
func (o *TurnOrchestrator) interruptInFlight(ctx context.Context) error {
	o.mu.Lock()
	cancel := o.cancelActive
	done := o.turnDone
	o.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *TurnOrchestrator) ensureSubscribed(ctx context.Context, conversationID uuid.UUID) error {
	if o.realtime == nil {
		return nil
	}

	o.mu.Lock()
	already := o.subscribedTo == conversationID
	o.mu.Unlock()
	if already {
		return nil
	}

	if err := o.realtime.Subscribe(ctx, conversationID); err != nil {
		return err
	}

	o.mu.Lock()
	o.subscribedTo = conversationID
	o.mu.Unlock()
	return nil
}

func (o *TurnOrchestrator) buildRequest(active ActiveConversation, text string, attachments []Attachment) agent.TurnRequest {
	var metadata *agent.RequestMetadata
	if len(attachments) > 0 {
		metadata = &agent.RequestMetadata{}
		for _, a := range attachments {
			metadata.AttachedDocuments = append(metadata.AttachedDocuments, a.DocumentID)
			metadata.DocumentNames = append(metadata.DocumentNames, a.Name)
		}
	}

	return agent.TurnRequest{
		Context: agent.TurnContext{
			AgentID:        o.agentID,
			UserID:         o.userID,
			ConversationID: active.ConversationID.String(),
			SessionID:      active.SessionID.String(),
		},
		Message: agent.RequestMessage{
			Role: "user",
			Content: agent.TextContent{
				Type: "text",
				Text: text,
			},
			Metadata: metadata,
		},
		Options: agent.Options{
			Context: agent.ContextOptions{
				MaxMessages: o.prefs.MaxContextMessages,
			},
			Reasoning: agent.ReasoningOptions{
				Enabled:   o.prefs.ReasoningEnabled,
				Threshold: o.prefs.ReasoningThreshold,
			},
			Tools: agent.ToolOptions{
				WebSearch: o.prefs.WebSearchEnabled,
			},
		},
	}
}

// inferTool guesses from the message text whether the turn will use a
// tool, purely to drive the display timeline's optional tool phases.
func (o *TurnOrchestrator) inferTool(text string) *ToolInfo {
	if o.categorizer == nil {
		return nil
	}

	cats := o.categorizer.Categorize(text)
	if len(cats) == 0 {
		return nil
	}

	return &ToolInfo{
		ToolName: o.categorizer.Label(cats[0]),
		Provider: string(cats[0]),
		Status:   "running",
	}
}

// runPhaseTimeline paces the visible phases. Exits early, leaving the
// current phase in place, when the turn context is cancelled.
func (o *TurnOrchestrator) runPhaseTimeline(ctx context.Context, tool *ToolInfo) {
	type timelinePhase struct {
		phase Phase
		tool  *ToolInfo
	}

	phases := []timelinePhase{{PhaseAnalyzingTools, nil}}
	if tool != nil {
		phases = append(phases,
			timelinePhase{PhaseExecutingTool, tool},
			timelinePhase{PhaseProcessingResults, nil})
	}
	phases = append(phases, timelinePhase{PhaseGeneratingResponse, nil})

	for _, p := range phases {
		if err := o.clock.Sleep(ctx, o.minPhase); err != nil {
			return
		}
		o.processing.Advance(p.phase, p.tool)
	}
}

// recordWrite persists the conversation record after a successful turn.
// Opportunistic: errors are logged, never returned.
func (o *TurnOrchestrator) recordWrite(ctx context.Context, active ActiveConversation, text string) {
	// Finish the record write even if the submit context is torn down.
	ctx = context.WithoutCancel(ctx)

	if active.Ephemeral {
		o.identity.Promote(active.ConversationID)
		if o.recorder != nil {
			if err := o.recorder.RecordFirstMessage(ctx, active.ConversationID.String(), o.agentID, o.userID, text); err != nil {
				o.logger.Warn("failed to record conversation",
					slog.String("conversation_id", active.ConversationID.String()),
					slog.String("error", err.Error()))
			}
		}
		return
	}

	if o.recorder != nil {
		if err := o.recorder.Touch(ctx, active.ConversationID.String()); err != nil {
			o.logger.Warn("failed to touch conversation record",
				slog.String("conversation_id", active.ConversationID.String()),
				slog.String("error", err.Error()))
		}
	}
}

// oversizedContextMessage is the substitute assistant response for an
// HTTP 413 rejection.
func oversizedContextMessage(err error) string {
	var ctle *agent.ContextTooLargeError
	if errors.As(err, &ctle) && ctle.ServerMessage != "" {
		return fmt.Sprintf("This conversation has grown too large for me to process in one request (%s). "+
			"Try narrowing your question, removing attachments, or starting a new conversation.", ctle.ServerMessage)
	}
	return "This conversation has grown too large for me to process in one request. " +
		"Try narrowing your question, removing attachments, or starting a new conversation."
}
