// Package quest implements the quest state machine: availability scanning,
// signal-driven discovery, objective evaluation and completion fan-out.
package quest

// State is a quest's lifecycle position. Transitions are monotonic forward
// (UNAVAILABLE, AVAILABLE, ACTIVE, then COMPLETED or FAILED) except the
// explicit debug reset.
type State string

const (
	StateUnavailable State = "UNAVAILABLE"
	StateAvailable   State = "AVAILABLE"
	StateActive      State = "ACTIVE"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
)

// Objective is one completion step of a quest. The CompleteOn* fields are
// alternative triggers: any single one matching completes the objective
// (logical OR across condition kinds), and completion is one-way until a
// full quest reset.
type Objective struct {
	ID          string `yaml:"id" json:"objective_id"`
	Description string `yaml:"description" json:"description"`
	Optional    bool   `yaml:"optional" json:"optional"`
	Order       int    `yaml:"order" json:"order"`

	// RequiresAgent scopes intent and memory-tag conditions to signals
	// originating from one agent. Empty means any agent qualifies.
	RequiresAgent string `yaml:"requires_agent" json:"requires_agent,omitempty"`

	CompleteOnFlag         string         `yaml:"complete_on_flag" json:"complete_on_flag,omitempty"`
	CompleteOnIntent       string         `yaml:"complete_on_intent" json:"complete_on_intent,omitempty"`
	CompleteOnRelationship map[string]int `yaml:"complete_on_relationship" json:"complete_on_relationship,omitempty"`
	CompleteOnMemoryTag    string         `yaml:"complete_on_memory_tag" json:"complete_on_memory_tag,omitempty"`
	CompleteOnTopics       []string       `yaml:"complete_on_topics" json:"complete_on_topics,omitempty"`
	CompleteOnLocation     string         `yaml:"complete_on_location" json:"complete_on_location,omitempty"`

	Completed   bool   `yaml:"-" json:"is_completed"`
	CompletedBy string `yaml:"-" json:"completed_by,omitempty"`
}

// hasCondition reports whether at least one completion trigger is declared.
func (o *Objective) hasCondition() bool {
	return o.CompleteOnFlag != "" ||
		o.CompleteOnIntent != "" ||
		len(o.CompleteOnRelationship) > 0 ||
		o.CompleteOnMemoryTag != "" ||
		len(o.CompleteOnTopics) > 0 ||
		o.CompleteOnLocation != ""
}

// Quest is one quest definition plus its live state. Quests are created
// from static definitions at startup, mutated only by the Engine, and
// never destroyed (terminal states are kept for the journal and saves).
type Quest struct {
	ID       string `yaml:"id" json:"quest_id"`
	Title    string `yaml:"title" json:"title"`
	StoryArc string `yaml:"story_arc" json:"story_arc,omitempty"`
	IsMain   bool   `yaml:"is_main" json:"is_main"`
	Priority int    `yaml:"priority" json:"priority"`

	State      State        `yaml:"-" json:"state"`
	Objectives []*Objective `yaml:"objectives" json:"objectives"`

	// Availability predicate: every RequiredFlags entry true, every
	// ForbiddenFlags entry false.
	RequiredFlags  []string `yaml:"required_flags" json:"required_flags,omitempty"`
	ForbiddenFlags []string `yaml:"forbidden_flags" json:"forbidden_flags,omitempty"`

	// Discovery: signal intents/topics intersect these sets, and the
	// signal source matches DiscoveryAgent when set.
	DiscoveryIntents []string `yaml:"discovery_intents" json:"discovery_intents,omitempty"`
	DiscoveryTopics  []string `yaml:"discovery_topics" json:"discovery_topics,omitempty"`
	DiscoveryAgent   string   `yaml:"discovery_npc" json:"discovery_npc,omitempty"`

	// FailureFlag fails the quest while ACTIVE when the flag turns true.
	FailureFlag string `yaml:"failure_flag" json:"failure_flag,omitempty"`

	CompletionFlags []string `yaml:"completion_flags" json:"completion_flags,omitempty"`
	Unlocks         []string `yaml:"unlocks" json:"unlocks,omitempty"`

	// Hints are per-agent narrative steering strings injected into that
	// agent's generation context while the quest is ACTIVE.
	Hints map[string]string `yaml:"hints" json:"hints,omitempty"`

	// FailReason records why a FAILED quest failed.
	FailReason string `yaml:"-" json:"fail_reason,omitempty"`
}

// requiredComplete reports whether every non-optional objective is done.
func (q *Quest) requiredComplete() bool {
	for _, o := range q.Objectives {
		if !o.Optional && !o.Completed {
			return false
		}
	}
	return true
}

// objective finds an objective by id.
func (q *Quest) objective(id string) *Objective {
	for _, o := range q.Objectives {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// SaveState is the persisted quest snapshot produced for the save system.
type SaveState struct {
	Available []string                     `json:"available"`
	Active    map[string]map[string]string `json:"active"`    // quest -> objective -> provenance
	Completed map[string]string            `json:"completed"` // quest -> outcome
	Failed    map[string]string            `json:"failed"`    // quest -> reason
}
