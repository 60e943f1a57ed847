// Package worldstate owns the verified world record: the append-only event
// log, boolean world flags with change notification, and the small set of
// verified player facts.
//
// Everything here is ground truth. Memories and generated text may be
// rejected for contradicting it, but nothing in this package is ever
// rewritten by generation output directly.
package worldstate

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// CanonicalEvent is an immutable record of something that verifiably
// happened. Events are appended, never mutated.
type CanonicalEvent struct {
	// ID is the collection-unique event identifier.
	ID int64 `json:"id"`

	// Timestamp is when the event happened.
	Timestamp time.Time `json:"timestamp"`

	// Category tags the event kind (crime, trade, conversation, ...).
	Category string `json:"category"`

	// Description is the human-readable record.
	Description string `json:"description"`

	// Participants lists agent IDs involved.
	Participants []string `json:"participants,omitempty"`

	// Location is the location ID where the event happened.
	Location string `json:"location,omitempty"`
}

// FlagListener observes world flag changes.
type FlagListener func(name string, value bool)

// PlayerFacts is the set of verified singleton facts about the player.
// Name, Occupation and Origin are write-once (first writer wins);
// NotableFacts is an open append-only list.
type PlayerFacts struct {
	Name         string   `json:"name,omitempty"`
	Occupation   string   `json:"occupation,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	NotableFacts []string `json:"notable_facts,omitempty"`
}

// Log is the world state store: canonical events, world flags and player
// facts. It is safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	node      *snowflake.Node
	events    []CanonicalEvent
	flags     map[string]bool
	facts     PlayerFacts
	factOwner map[string]string // field -> agent that wrote it
	listeners []FlagListener
	logger    *zap.Logger
}

// NewLog creates an empty world state log. A nil logger disables logging.
func NewLog(node *snowflake.Node, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		node:      node,
		flags:     make(map[string]bool),
		factOwner: make(map[string]string),
		logger:    logger,
	}
}

// Append records a canonical event and returns it with its assigned ID and
// timestamp.
func (l *Log) Append(category, description string, participants []string, location string) CanonicalEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := CanonicalEvent{
		ID:           l.node.Generate().Int64(),
		Timestamp:    time.Now(),
		Category:     category,
		Description:  description,
		Participants: append([]string(nil), participants...),
		Location:     location,
	}
	l.events = append(l.events, ev)
	return ev
}

// Events returns a copy of the full event log in append order.
func (l *Log) Events() []CanonicalEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]CanonicalEvent(nil), l.events...)
}

// EventsByCategory returns events matching a category, in append order.
func (l *Log) EventsByCategory(category string) []CanonicalEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []CanonicalEvent
	for _, ev := range l.events {
		if ev.Category == category {
			out = append(out, ev)
		}
	}
	return out
}

// SetFlag sets a world flag and notifies listeners when the value changed.
// Listener dispatch happens outside the lock, in registration order.
func (l *Log) SetFlag(name string, value bool) {
	l.mu.Lock()
	prev, existed := l.flags[name]
	l.flags[name] = value
	listeners := append([]FlagListener(nil), l.listeners...)
	l.mu.Unlock()

	// Unset flags read as false, so a first set to false is not an
	// observable change either.
	if existed && prev == value || !existed && !value {
		return
	}
	l.logger.Debug("world flag changed", zap.String("flag", name), zap.Bool("value", value))
	for _, fn := range listeners {
		fn(name, value)
	}
}

// Flag reads a world flag. Unset flags read as false.
func (l *Log) Flag(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flags[name]
}

// Flags returns a copy of the flag map.
func (l *Log) Flags() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]bool, len(l.flags))
	for k, v := range l.flags {
		out[k] = v
	}
	return out
}

// OnFlagChanged registers a listener for flag changes.
func (l *Log) OnFlagChanged(fn FlagListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// LearnPlayerFact records a singleton player fact learned from sourceAgent.
// The first writer wins: a later write to an already-set field is ignored
// and reported false. The open notable_facts field appends unless the exact
// fact is already present.
func (l *Log) LearnPlayerFact(field, value, sourceAgent string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch field {
	case "name":
		if l.facts.Name != "" {
			return false
		}
		l.facts.Name = value
	case "occupation":
		if l.facts.Occupation != "" {
			return false
		}
		l.facts.Occupation = value
	case "origin":
		if l.facts.Origin != "" {
			return false
		}
		l.facts.Origin = value
	default:
		for _, f := range l.facts.NotableFacts {
			if f == value {
				return false
			}
		}
		l.facts.NotableFacts = append(l.facts.NotableFacts, value)
		return true
	}

	l.factOwner[field] = sourceAgent
	l.logger.Info("player fact learned",
		zap.String("field", field),
		zap.String("source_agent", sourceAgent),
	)
	return true
}

// InvalidateAgentFacts clears singleton facts whose producing agent has been
// invalidated, reopening the fields for the next writer.
func (l *Log) InvalidateAgentFacts(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for field, owner := range l.factOwner {
		if owner != agentID {
			continue
		}
		switch field {
		case "name":
			l.facts.Name = ""
		case "occupation":
			l.facts.Occupation = ""
		case "origin":
			l.facts.Origin = ""
		}
		delete(l.factOwner, field)
	}
}

// PlayerFactsSnapshot returns a copy of the current player facts.
func (l *Log) PlayerFactsSnapshot() PlayerFacts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	facts := l.facts
	facts.NotableFacts = append([]string(nil), l.facts.NotableFacts...)
	return facts
}
