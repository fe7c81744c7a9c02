// Package agentconsole assembles the conversation engine for embedding:
// configuration, logging, the agent backend client, the realtime channel,
// the conversation record store, and the turn orchestrator, wired
// together so a host chat screen only calls Submit and Render.
package agentconsole

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eternisai/agent-console/internal/agent"
	"github.com/eternisai/agent-console/internal/chat"
	"github.com/eternisai/agent-console/internal/config"
	"github.com/eternisai/agent-console/internal/logger"
	"github.com/eternisai/agent-console/internal/realtime"
	"github.com/eternisai/agent-console/internal/store"
	"github.com/eternisai/agent-console/internal/toolcat"
)

// Options identifies who the engine acts for and how it reports state
// back to the host application.
type Options struct {
	AgentID string
	UserID  string

	// LocationSink receives the active conversation id so the host can
	// reflect it in its navigable location. May be nil.
	LocationSink chat.LocationSink

	// KeyValue backs preference persistence. Nil selects an in-memory
	// store.
	KeyValue chat.KeyValue
}

// Engine is the assembled conversation engine. Hosts drive it through
// Orchestrator and read the transcript through Log.
type Engine struct {
	Orchestrator *chat.TurnOrchestrator
	Log          *chat.MessageLog
	Identity     *chat.ConversationIdentity
	Processing   *chat.ProcessingStateMachine
	Preferences  *chat.PreferencesStore

	// Store is nil when no database is configured; conversation records
	// are then simply not kept.
	Store *store.Store

	logger  *logger.Logger
	janitor *store.Janitor
	sync    *realtime.Sync
	nats    *nats.Conn
}

// NewFromEnv loads configuration from the environment (and a .env file,
// if present) and assembles the engine.
func NewFromEnv(opts Options) (*Engine, error) {
	config.LoadConfig()
	return New(config.AppConfig, opts)
}

// New assembles the engine from cfg. An empty NatsURL and RealtimeWSURL
// runs without a realtime channel (HTTP responses alone complete turns);
// an empty DatabaseURL runs without the record store.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.AgentID == "" || opts.UserID == "" {
		return nil, fmt.Errorf("agent id and user id are required")
	}

	lg := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	rules := toolcat.DefaultRules()
	if cfg.ToolRulesPath != "" {
		loaded, err := toolcat.LoadRules(cfg.ToolRulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tool rules: %w", err)
		}
		rules = loaded
	}

	kv := opts.KeyValue
	if kv == nil {
		kv = chat.NewMemoryKeyValue()
	}
	prefsStore := chat.NewPreferencesStore(kv)
	prefs, err := prefsStore.Load(opts.AgentID)
	if err != nil {
		return nil, err
	}

	log := chat.NewMessageLog(cfg.MaxLogMessages, lg)
	processing := chat.NewProcessingStateMachine(log, chat.RealClock(), nil, lg)
	identity := chat.NewConversationIdentity(opts.LocationSink, lg)
	client := agent.NewClient(cfg.AgentBackendURL, cfg.AgentBackendAPIKey, cfg.RequestTimeout, lg)

	e := &Engine{
		Log:         log,
		Identity:    identity,
		Processing:  processing,
		Preferences: prefsStore,
		logger:      lg,
	}

	var transport realtime.Transport
	switch {
	case cfg.NatsURL != "":
		nc, err := realtime.ConnectNATS(cfg.NatsURL, lg)
		if err != nil {
			return nil, err
		}
		e.nats = nc
		transport = realtime.NewNATSTransport(nc, lg)
	case cfg.RealtimeWSURL != "":
		transport = realtime.NewWebSocketTransport(cfg.RealtimeWSURL, lg)
	}
	if transport != nil {
		e.sync = realtime.NewSync(transport, log, processing, lg)
	}

	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL, store.Options{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
		}, lg)
		if err != nil {
			e.release()
			return nil, err
		}
		e.Store = st

		e.janitor = store.NewJanitor(st, cfg.AbandonAfter, cfg.JanitorSchedule, lg)
		if err := e.janitor.Start(); err != nil {
			e.release()
			return nil, err
		}
	}

	orchestratorOpts := chat.OrchestratorOptions{
		Identity:         identity,
		Log:              log,
		Processing:       processing,
		Client:           client,
		Categorizer:      toolcat.NewCategorizer(rules),
		Preferences:      prefs,
		Clock:            chat.RealClock(),
		MinPhaseDuration: cfg.MinPhaseDuration,
		AgentID:          opts.AgentID,
		UserID:           opts.UserID,
		Logger:           lg,
	}
	// Assign only concrete values so the orchestrator's nil checks on its
	// optional collaborators stay meaningful.
	if e.sync != nil {
		orchestratorOpts.Realtime = e.sync
	}
	if e.Store != nil {
		orchestratorOpts.Recorder = e.Store
	}
	e.Orchestrator = chat.NewTurnOrchestrator(orchestratorOpts)

	lg.Info("conversation engine assembled",
		slog.String("agent_id", opts.AgentID),
		slog.Bool("realtime", e.sync != nil),
		slog.Bool("store", e.Store != nil))

	return e, nil
}

// Close releases the engine's external resources: the janitor, the
// realtime channel, and the database pool.
func (e *Engine) Close() error {
	e.Orchestrator.Cancel()
	err := e.release()
	e.logger.Info("conversation engine closed")
	return err
}

func (e *Engine) release() error {
	if e.janitor != nil {
		e.janitor.Stop()
		e.janitor = nil
	}
	if e.sync != nil {
		e.sync.Unsubscribe()
		e.sync = nil
	}
	if e.nats != nil {
		e.nats.Close()
		e.nats = nil
	}
	if e.Store != nil {
		err := e.Store.Close()
		e.Store = nil
		return err
	}
	return nil
}
