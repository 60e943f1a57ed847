// Package memory implements the per-agent memory store: tiered, budgeted
// retrieval of past experiences, with supersession and slot-replacement
// semantics keeping each agent's recollection internally consistent.
package memory

import (
	"time"

	"github.com/lorekeep/lorekeep-go/pkg/storage"
)

// Tier is the coarse priority bucket for a memory, used as a multiplicative
// weight in scoring. Tier is derived, never stored authoritatively.
type Tier string

const (
	// TierPinned memories carry single-value facts or top importance.
	TierPinned Tier = "PINNED"

	// TierImportant memories are high-importance experiences.
	TierImportant Tier = "IMPORTANT"

	// TierRegular memories are everything else.
	TierRegular Tier = "REGULAR"
)

// Event types with supersession or high-signal semantics. The set is open:
// any string is a valid event type, these are the ones the store treats
// specially.
const (
	EventConversation   = "conversation"
	EventWitnessedCrime = "witnessed_crime"
	EventBetrayal       = "betrayal"
	EventPromiseMade    = "promise_made"
	EventPromiseBroken  = "promise_broken"
	EventDeathWitnessed = "death_witnessed"
	EventGiftReceived   = "gift_received"
)

// ShortFormMaxLen caps the compact representation length in characters.
const ShortFormMaxLen = 200

// Memory is one recorded experience belonging to exactly one agent's
// collection.
type Memory struct {
	// ID is the collection-unique identifier.
	ID int64 `json:"id"`

	// AgentID identifies the owning agent.
	AgentID string `json:"agent_id"`

	// ShortForm is the compact text, capped at ShortFormMaxLen.
	ShortForm string `json:"short_form"`

	// FullForm is the verbose text.
	FullForm string `json:"full_form"`

	// EventType tags the experience (conversation, witnessed_crime, ...).
	EventType string `json:"event_type"`

	// Importance rates the memory 1-10.
	Importance int `json:"importance"`

	// Emotion is a free emotion tag.
	Emotion string `json:"emotion,omitempty"`

	// Tags is the set of tags attached to the memory.
	Tags []string `json:"tags,omitempty"`

	// Timestamp is when the memory was recorded.
	Timestamp time.Time `json:"timestamp"`

	// SlotType marks the memory as the single current value of a fact
	// (e.g. "player_name"). At most one non-superseded memory per slot
	// type exists per agent.
	SlotType string `json:"slot_type,omitempty"`

	// Superseded is set when a later memory superseded this one. Once set
	// it is never cleared except by a full collection reset.
	Superseded bool `json:"superseded"`
}

// TierOf derives the memory's tier: slot memories and importance >= 9 pin,
// importance >= 7 ranks important, everything else is regular.
func (m *Memory) TierOf() Tier {
	if m.SlotType != "" || m.Importance >= 9 {
		return TierPinned
	}
	if m.Importance >= 7 {
		return TierImportant
	}
	return TierRegular
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Candidate is a memory waiting to be validated and stored.
type Candidate struct {
	// ShortForm is the compact text. When empty, a truncation of FullForm
	// is used.
	ShortForm string

	// FullForm is the verbose text (required).
	FullForm string

	// EventType tags the experience. Empty defaults to conversation.
	EventType string

	// Importance rates the memory 1-10; out-of-range values are clamped.
	Importance int

	// Emotion is a free emotion tag.
	Emotion string

	// Tags is the set of tags to attach.
	Tags []string

	// SlotType marks the candidate as a single-value fact.
	SlotType string
}

// StoreResult is the outcome of a store call. Rejection is a normal,
// expected outcome, not an error.
type StoreResult struct {
	// Memory is the stored memory (nil when rejected).
	Memory *Memory

	// Rejected reports whether validation refused the candidate.
	Rejected bool

	// Issues explains rejections and records applied corrections.
	Issues []string
}

// Selection is one memory chosen by Select, with the representation that
// was packed into the budget.
type Selection struct {
	// Memory is the selected memory.
	Memory *Memory

	// Text is the packed representation (short or full form).
	Text string

	// Score is the selection score (0 for protected items).
	Score float64

	// Protected marks items included outside the greedy ranking.
	Protected bool
}

// Stats summarizes one agent's collection for the debug surface.
type Stats struct {
	Total      int            `json:"total"`
	Superseded int            `json:"superseded"`
	ByTier     map[Tier]int   `json:"by_tier"`
	ByType     map[string]int `json:"by_type"`
}

// toRecord converts a memory to its storage representation.
func toRecord(m *Memory) *storage.Record {
	return &storage.Record{
		ID:         m.ID,
		AgentID:    m.AgentID,
		ShortForm:  m.ShortForm,
		FullForm:   m.FullForm,
		EventType:  m.EventType,
		Importance: m.Importance,
		Emotion:    m.Emotion,
		Tags:       append([]string(nil), m.Tags...),
		Timestamp:  m.Timestamp,
		SlotType:   m.SlotType,
		Superseded: m.Superseded,
	}
}

// fromRecord converts a storage record back to a memory.
func fromRecord(rec *storage.Record) *Memory {
	return &Memory{
		ID:         rec.ID,
		AgentID:    rec.AgentID,
		ShortForm:  rec.ShortForm,
		FullForm:   rec.FullForm,
		EventType:  rec.EventType,
		Importance: rec.Importance,
		Emotion:    rec.Emotion,
		Tags:       append([]string(nil), rec.Tags...),
		Timestamp:  rec.Timestamp,
		SlotType:   rec.SlotType,
		Superseded: rec.Superseded,
	}
}
