package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/metrics"
)

// conversationSubject is the NATS subject carrying message-row changes for
// one conversation.
func conversationSubject(conversationID string) string {
	return fmt.Sprintf("conversations.%s.messages", conversationID)
}

// ConnectNATS dials the NATS server with reconnection tuned for a
// long-lived client: unlimited retries, silent recovery. Channel drops
// never surface to the user.
func ConnectNATS(url string, log *logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.RealtimeReconnects.Inc()
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

// NATSTransport delivers realtime events over NATS pub/sub. Subscriptions
// survive reconnects; the client library restores them automatically.
type NATSTransport struct {
	nc     *nats.Conn
	logger *logger.Logger
}

// NewNATSTransport creates a transport over an existing connection.
func NewNATSTransport(nc *nats.Conn, log *logger.Logger) *NATSTransport {
	return &NATSTransport{
		nc:     nc,
		logger: log.WithComponent("realtime-nats"),
	}
}

// Subscribe opens a channel for one conversation's message events.
func (t *NATSTransport) Subscribe(ctx context.Context, conversationID string, handler Handler) (Subscription, error) {
	subject := conversationSubject(conversationID)

	sub, err := t.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.logger.Warn("dropping malformed realtime event",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	t.logger.Debug("subscribed", slog.String("subject", subject))

	return &natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
