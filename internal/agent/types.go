package agent

import "encoding/json"

// TurnContext identifies who is asking on whose behalf in which conversation.
type TurnContext struct {
	AgentID        string `json:"agentId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	SessionID      string `json:"sessionId"`
}

// TextContent is the typed content envelope for a user message.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// RequestMetadata carries optional attachment references.
type RequestMetadata struct {
	AttachedDocuments []string `json:"attachedDocuments,omitempty"`
	DocumentNames     []string `json:"documentNames,omitempty"`
}

// RequestMessage is the user message as sent to the backend.
type RequestMessage struct {
	Role     string           `json:"role"`
	Content  TextContent      `json:"content"`
	Metadata *RequestMetadata `json:"metadata,omitempty"`
}

// ContextOptions bounds how much history the backend loads for the turn.
type ContextOptions struct {
	MaxMessages int `json:"maxMessages"`
}

// ReasoningOptions toggles extended reasoning on the backend.
type ReasoningOptions struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold"`
}

// ToolOptions toggles backend tool use for the turn.
type ToolOptions struct {
	WebSearch bool `json:"webSearch"`
}

// Options is the per-turn options block.
type Options struct {
	Context   ContextOptions   `json:"context"`
	Reasoning ReasoningOptions `json:"reasoning"`
	Tools     ToolOptions      `json:"tools"`
}

// TurnRequest is the outbound request body for one user turn.
type TurnRequest struct {
	Context TurnContext    `json:"context"`
	Message RequestMessage `json:"message"`
	Options Options        `json:"options"`
}

// ResponseKind tags which wire shape the backend answered with.
type ResponseKind int

const (
	// ResponseStructured is the canonical shape:
	// { "data": { "message": { "content": { "text": ... } } } }
	ResponseStructured ResponseKind = iota

	// ResponseLegacy is the flat shape: { "message": "..." }
	ResponseLegacy
)

// TurnResult is the decoded backend answer. The duck-typed wire shapes are
// resolved once at the HTTP boundary; everything downstream sees one Text.
type TurnResult struct {
	Kind ResponseKind
	Text string

	// ProcessingDetails is the backend's own account of what it did,
	// kept raw for the process inspector.
	ProcessingDetails json.RawMessage
}

// structuredResponse mirrors the canonical success body.
type structuredResponse struct {
	Data struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	} `json:"data"`
	ProcessingDetails json.RawMessage `json:"processing_details,omitempty"`
}

// legacyResponse mirrors the flat success body still emitted by older
// backend deployments.
type legacyResponse struct {
	Message string `json:"message"`
}
