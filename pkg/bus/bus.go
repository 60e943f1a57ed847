// Package bus provides a synchronous typed event bus connecting the engine
// components to each other and to external collaborators (game world, UI).
//
// Dispatch is synchronous and ordered: all handlers for an event run to
// completion before Publish returns. There is no reordering guarantee across
// different signal types.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Signal identifies a category of event published on the bus.
type Signal string

// Signals exposed to external collaborators (excluded UI / world layers).
const (
	SignalQuestAvailable          Signal = "quest_available"
	SignalQuestDiscovered         Signal = "quest_discovered"
	SignalQuestObjectiveCompleted Signal = "quest_objective_completed"
	SignalQuestCompleted          Signal = "quest_completed"
	SignalQuestFailed             Signal = "quest_failed"
	SignalWorldFlagChanged        Signal = "world_flag_changed"
	SignalRelationshipChanged     Signal = "npc_relationship_changed"
	SignalMemoryStored            Signal = "npc_memory_stored"
	SignalResponseGenerated       Signal = "npc_response_generated"
	SignalPlayerEnteredArea       Signal = "player_entered_area"
)

// Event is a single published occurrence of a Signal.
type Event struct {
	// Signal is the event category.
	Signal Signal

	// AgentID identifies the agent the event concerns, if any.
	AgentID string

	// Fields carries signal-specific data (quest id, flag name, etc.).
	Fields map[string]interface{}
}

// Handler processes one published event. Handlers must not publish
// recursively on the same signal they handle.
type Handler func(Event)

// Bus is a synchronous publish/subscribe dispatcher.
//
// The zero value is not usable; construct with New. Bus is safe for
// concurrent use: subscription order per signal is dispatch order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Signal][]Handler
	logger   *zap.Logger
}

// New creates an event bus. A nil logger disables logging.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[Signal][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a signal. Handlers registered for the
// same signal run in registration order.
func (b *Bus) Subscribe(sig Signal, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[sig] = append(b.handlers[sig], h)
}

// Publish dispatches an event to every handler registered for its signal.
// Publish returns after the last handler returns.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Signal]
	b.mu.RUnlock()

	b.logger.Debug("publish",
		zap.String("signal", string(ev.Signal)),
		zap.String("agent_id", ev.AgentID),
		zap.Int("handlers", len(handlers)),
	)

	for _, h := range handlers {
		h(ev)
	}
}
