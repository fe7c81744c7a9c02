package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eternisai/agent-console/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}

func testRequest() TurnRequest {
	return TurnRequest{
		Context: TurnContext{
			AgentID:        "agent-1",
			UserID:         "user-1",
			ConversationID: "conv-1",
			SessionID:      "sess-1",
		},
		Message: RequestMessage{
			Role:    "user",
			Content: TextContent{Type: "text", Text: "hello"},
		},
	}
}

func TestSendStructuredResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Message.Content.Text != "hello" {
			t.Errorf("unexpected message text %q", req.Message.Content.Text)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"message":{"content":{"text":"hi there"}}},"processing_details":{"steps":3}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second, testLogger())
	result, err := client.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if result.Kind != ResponseStructured {
		t.Errorf("expected structured response, got %v", result.Kind)
	}
	if result.Text != "hi there" {
		t.Errorf("unexpected text %q", result.Text)
	}
	if len(result.ProcessingDetails) == 0 {
		t.Error("processing details should be carried through")
	}
}

func TestSendLegacyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"flat answer"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second, testLogger())
	result, err := client.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if result.Kind != ResponseLegacy {
		t.Errorf("expected legacy response, got %v", result.Kind)
	}
	if result.Text != "flat answer" {
		t.Errorf("unexpected text %q", result.Text)
	}
}

func TestSendOversizedContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"message":"context exceeds 128k tokens"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second, testLogger())
	_, err := client.Send(context.Background(), testRequest())

	if !errors.Is(err, ErrContextTooLarge) {
		t.Fatalf("expected ErrContextTooLarge, got %v", err)
	}

	var ctle *ContextTooLargeError
	if !errors.As(err, &ctle) {
		t.Fatal("expected a *ContextTooLargeError")
	}
	if ctle.ServerMessage != "context exceeds 128k tokens" {
		t.Errorf("server message lost: %q", ctle.ServerMessage)
	}
}

func TestSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second, testLogger())
	_, err := client.Send(context.Background(), testRequest())

	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if errors.Is(err, ErrBackendUnreachable) || errors.Is(err, ErrContextTooLarge) {
		t.Errorf("a served error status is neither unreachable nor oversized: %v", err)
	}
}

func TestSendUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "", time.Second, testLogger())
	_, err := client.Send(context.Background(), testRequest())

	if !errors.Is(err, ErrBackendUnreachable) {
		t.Fatalf("expected ErrBackendUnreachable, got %v", err)
	}
}

func TestSendCancellationPassesThrough(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, "", 30*time.Second, testLogger())

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Send(ctx, testRequest())
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send did not return after cancellation")
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind ResponseKind
		wantText string
		wantErr  bool
	}{
		{
			name:     "structured",
			body:     `{"data":{"message":{"content":{"text":"a"}}}}`,
			wantKind: ResponseStructured,
			wantText: "a",
		},
		{
			name:     "legacy",
			body:     `{"message":"b"}`,
			wantKind: ResponseLegacy,
			wantText: "b",
		},
		{
			name:    "empty structured falls through to error",
			body:    `{"data":{"message":{"content":{"text":""}}}}`,
			wantErr: true,
		},
		{
			name:    "unrecognized shape",
			body:    `{"status":"ok"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>boom</html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := decodeResponse([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if result.Kind != tt.wantKind || result.Text != tt.wantText {
				t.Errorf("got kind=%v text=%q", result.Kind, result.Text)
			}
		})
	}
}
