// Package relationship tracks the five-dimensional relationship state
// between an agent and one counterpart (the player or another agent).
//
// Dimensions are bounded to [0, 100] and mutated only by clamped deltas
// derived from intent detection.
package relationship

import "sync"

// Dimension bounds.
const (
	MinValue = 0
	MaxValue = 100
)

// Defaults for a counterpart an agent has never met.
const (
	DefaultTrust       = 50
	DefaultRespect     = 50
	DefaultAffection   = 50
	DefaultFear        = 0
	DefaultFamiliarity = 0
)

// State is the relationship between one agent and one counterpart.
type State struct {
	Trust       int `json:"trust"`
	Respect     int `json:"respect"`
	Affection   int `json:"affection"`
	Fear        int `json:"fear"`
	Familiarity int `json:"familiarity"`
}

// Delta is a signed change applied to a relationship. Values outside the
// generation clamp are truncated before application.
type Delta struct {
	Trust       int `json:"trust_change"`
	Respect     int `json:"respect_change"`
	Affection   int `json:"affection_change"`
	Fear        int `json:"fear_change"`
	Familiarity int `json:"familiarity_change"`
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Trust == 0 && d.Respect == 0 && d.Affection == 0 && d.Fear == 0 && d.Familiarity == 0
}

// key addresses one agent/counterpart pair.
type key struct {
	agentID     string
	counterpart string
}

// Tracker holds relationship state for every agent/counterpart pair.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[key]State
}

// NewTracker creates an empty relationship tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[key]State)}
}

// Get returns the relationship between an agent and a counterpart,
// initialized to defaults when the pair has never interacted.
func (t *Tracker) Get(agentID, counterpart string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[key{agentID, counterpart}]; ok {
		return s
	}
	return State{
		Trust:       DefaultTrust,
		Respect:     DefaultRespect,
		Affection:   DefaultAffection,
		Fear:        DefaultFear,
		Familiarity: DefaultFamiliarity,
	}
}

// Apply applies a delta to a relationship, clamping every dimension to
// [MinValue, MaxValue], and returns the new state.
func (t *Tracker) Apply(agentID, counterpart string, d Delta) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{agentID, counterpart}
	s, ok := t.states[k]
	if !ok {
		s = State{
			Trust:       DefaultTrust,
			Respect:     DefaultRespect,
			Affection:   DefaultAffection,
			Fear:        DefaultFear,
			Familiarity: DefaultFamiliarity,
		}
	}

	s.Trust = clamp(s.Trust + d.Trust)
	s.Respect = clamp(s.Respect + d.Respect)
	s.Affection = clamp(s.Affection + d.Affection)
	s.Fear = clamp(s.Fear + d.Fear)
	s.Familiarity = clamp(s.Familiarity + d.Familiarity)

	t.states[k] = s
	return s
}

// Set overwrites one named dimension, clamped. Unknown dimension names are a
// no-op and return false. Used by the debug surface only.
func (t *Tracker) Set(agentID, counterpart, dimension string, value int) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{agentID, counterpart}
	s, ok := t.states[k]
	if !ok {
		s = State{
			Trust:       DefaultTrust,
			Respect:     DefaultRespect,
			Affection:   DefaultAffection,
			Fear:        DefaultFear,
			Familiarity: DefaultFamiliarity,
		}
	}

	v := clamp(value)
	switch dimension {
	case "trust":
		s.Trust = v
	case "respect":
		s.Respect = v
	case "affection":
		s.Affection = v
	case "fear":
		s.Fear = v
	case "familiarity":
		s.Familiarity = v
	default:
		return s, false
	}

	t.states[k] = s
	return s, true
}

// Snapshot returns a copy of every tracked relationship for an agent,
// keyed by counterpart.
func (t *Tracker) Snapshot(agentID string) map[string]State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]State)
	for k, s := range t.states {
		if k.agentID == agentID {
			out[k.counterpart] = s
		}
	}
	return out
}

func clamp(v int) int {
	if v < MinValue {
		return MinValue
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}
