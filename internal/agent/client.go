package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/agent-console/internal/logger"
)

// ErrContextTooLarge marks an oversized-context rejection (HTTP 413).
// This is a soft error: the orchestrator turns it into an explanatory
// assistant message rather than a failed turn.
var ErrContextTooLarge = errors.New("conversation context too large")

// ErrBackendUnreachable marks a transport-level failure where the request
// never reached the backend. The orchestrator uses this to decide whether
// the optimistic user message can be rolled back safely.
var ErrBackendUnreachable = errors.New("agent backend unreachable")

// ContextTooLargeError carries the backend's own explanation alongside the
// ErrContextTooLarge sentinel.
type ContextTooLargeError struct {
	ServerMessage string
}

func (e *ContextTooLargeError) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("context too large: %s", e.ServerMessage)
	}
	return ErrContextTooLarge.Error()
}

func (e *ContextTooLargeError) Unwrap() error {
	return ErrContextTooLarge
}

// Client sends user turns to the agent backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new agent backend client.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("agent-client"),
	}
}

// Send posts one user turn and decodes the answer.
//
// Error classes:
//   - *ContextTooLargeError (unwraps to ErrContextTooLarge) on HTTP 413
//   - ErrBackendUnreachable (wrapped) when the request never got out
//   - context.Canceled / context.DeadlineExceeded passed through for aborts
//   - plain errors for any other non-2xx status
func (c *Client) Send(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/agent/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Preserve cancellation so the orchestrator can tell an abort
		// apart from a network failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		var payload struct {
			Message string `json:"message"`
		}
		// Best effort: a 413 without a parseable body still classifies.
		_ = json.Unmarshal(respBody, &payload)

		c.logger.Warn("backend rejected turn as oversized",
			slog.String("conversation_id", req.Context.ConversationID))

		return nil, &ContextTooLargeError{ServerMessage: payload.Message}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("backend returned error status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("conversation_id", req.Context.ConversationID))
		return nil, fmt.Errorf("agent backend returned status %d", resp.StatusCode)
	}

	result, err := decodeResponse(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("turn response decoded",
		slog.String("conversation_id", req.Context.ConversationID),
		slog.Int("text_length", len(result.Text)),
		slog.Bool("legacy_shape", result.Kind == ResponseLegacy))

	return result, nil
}

// decodeResponse resolves the two accepted wire shapes into one TurnResult.
func decodeResponse(body []byte) (*TurnResult, error) {
	var structured structuredResponse
	if err := json.Unmarshal(body, &structured); err == nil && structured.Data.Message.Content.Text != "" {
		return &TurnResult{
			Kind:              ResponseStructured,
			Text:              structured.Data.Message.Content.Text,
			ProcessingDetails: structured.ProcessingDetails,
		}, nil
	}

	var legacy legacyResponse
	if err := json.Unmarshal(body, &legacy); err == nil && legacy.Message != "" {
		return &TurnResult{
			Kind: ResponseLegacy,
			Text: legacy.Message,
		}, nil
	}

	return nil, fmt.Errorf("unrecognized response shape: %s", truncateForLog(body))
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
