package chat

import (
	"encoding/json"
	"fmt"
	"sync"
)

// AgentPreferences are the per-agent toggles the chat screen exposes.
// Passed into the orchestrator explicitly rather than read from ambient
// global state.
type AgentPreferences struct {
	ReasoningEnabled   bool `json:"reasoning_enabled"`
	ReasoningThreshold int  `json:"reasoning_threshold"`
	WebSearchEnabled   bool `json:"web_search_enabled"`
	MaxContextMessages int  `json:"max_context_messages"`
}

// DefaultPreferences returns the preferences used before a user changes
// anything.
func DefaultPreferences() AgentPreferences {
	return AgentPreferences{
		ReasoningEnabled:   true,
		ReasoningThreshold: 50,
		WebSearchEnabled:   false,
		MaxContextMessages: 50,
	}
}

// KeyValue is the minimal persistence surface for preferences. Host
// applications back it with whatever storage they have.
type KeyValue interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// MemoryKeyValue is an in-memory KeyValue, used in tests and as a default.
type MemoryKeyValue struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKeyValue creates an empty in-memory store.
func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{values: make(map[string]string)}
}

func (m *MemoryKeyValue) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKeyValue) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// PreferencesStore loads and saves AgentPreferences through a KeyValue.
type PreferencesStore struct {
	kv KeyValue
}

// NewPreferencesStore creates a store backed by kv.
func NewPreferencesStore(kv KeyValue) *PreferencesStore {
	return &PreferencesStore{kv: kv}
}

func preferencesKey(agentID string) string {
	return "agent_preferences:" + agentID
}

// Load returns the stored preferences for an agent, or defaults when none
// are stored yet.
func (s *PreferencesStore) Load(agentID string) (AgentPreferences, error) {
	raw, ok, err := s.kv.Get(preferencesKey(agentID))
	if err != nil {
		return AgentPreferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if !ok {
		return DefaultPreferences(), nil
	}

	var prefs AgentPreferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return AgentPreferences{}, fmt.Errorf("failed to decode preferences: %w", err)
	}

	return prefs, nil
}

// Save persists the preferences for an agent.
func (s *PreferencesStore) Save(agentID string, prefs AgentPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	if err := s.kv.Set(preferencesKey(agentID), string(raw)); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}

	return nil
}
