package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/metrics"
)

const (
	// wsReadTimeout is reset on every pong; a silent connection past this
	// deadline is treated as dropped and redialed.
	wsReadTimeout = 60 * time.Second

	// wsPingInterval keeps intermediaries from idling the connection out.
	wsPingInterval = 30 * time.Second

	// wsWriteTimeout bounds control-frame writes.
	wsWriteTimeout = 10 * time.Second

	// Reconnect backoff bounds. Drops are transient by assumption and
	// recovery is silent.
	wsReconnectMin = time.Second
	wsReconnectMax = 30 * time.Second
)

// WebSocketTransport delivers realtime events over a WebSocket endpoint,
// for deployments without NATS. Each subscription owns one connection and
// redials it with exponential backoff until unsubscribed.
type WebSocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *logger.Logger
}

// NewWebSocketTransport creates a transport dialing baseURL
// (e.g. "wss://realtime.example.com/conversations").
func NewWebSocketTransport(baseURL string, log *logger.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		logger:  log.WithComponent("realtime-ws"),
	}
}

// Subscribe opens a channel for one conversation's message events. ctx
// bounds the initial dial only; the subscription itself lives until
// Unsubscribe, so a caller tearing down its request context after a turn
// does not kill the channel.
func (t *WebSocketTransport) Subscribe(ctx context.Context, conversationID string, handler Handler) (Subscription, error) {
	endpoint, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("conversation_id", conversationID)
	endpoint.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &wsSubscription{cancel: cancel, done: make(chan struct{})}

	go t.run(subCtx, conn, endpoint.String(), conversationID, handler, sub.done)

	return sub, nil
}

// run reads from conn and redials on any error until the subscription is
// released.
func (t *WebSocketTransport) run(ctx context.Context, conn *websocket.Conn, endpoint, conversationID string, handler Handler, done chan<- struct{}) {
	defer close(done)

	backoff := wsReconnectMin

	for {
		if conn != nil {
			t.readLoop(ctx, conn, handler)
			conn.Close()
			conn = nil
		}

		if ctx.Err() != nil {
			return
		}

		redialed, _, err := t.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("realtime dial failed, retrying",
				slog.String("conversation_id", conversationID),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, wsReconnectMax)
			continue
		}

		metrics.RealtimeReconnects.Inc()
		t.logger.Debug("realtime channel resubscribed",
			slog.String("conversation_id", conversationID))
		backoff = wsReconnectMin
		conn = redialed
	}
}

// readLoop reads events until the connection errors or ctx is cancelled.
func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, handler Handler) {
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Ping loop keeps the connection alive and stops with the reader.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Debug("realtime channel dropped",
					slog.String("error", err.Error()))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.logger.Warn("dropping malformed realtime event",
				slog.String("error", err.Error()))
			continue
		}

		handler(ev)
	}
}

type wsSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *wsSubscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return nil
}
