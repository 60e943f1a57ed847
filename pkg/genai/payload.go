// Package genai provides the interface to the external text-generation
// collaborator and the structured payload it returns.
//
// Every payload field is untrusted: the generator is free to hallucinate
// enum values and oversized deltas, so payloads are normalized before any
// other component sees them.
package genai

import (
	"github.com/lorekeep/lorekeep-go/pkg/relationship"
)

// InteractionType classifies one generated exchange.
type InteractionType string

// Interaction types the generator may declare. Anything else is coerced to
// InteractionCasual.
const (
	InteractionCasual         InteractionType = "casual_conversation"
	InteractionFriendlyChat   InteractionType = "friendly_chat"
	InteractionFlirtation     InteractionType = "flirtation"
	InteractionCompliment     InteractionType = "compliment"
	InteractionGiftGiven      InteractionType = "gift_given"
	InteractionSecretRevealed InteractionType = "secret_revealed"
	InteractionConfession     InteractionType = "confession"
	InteractionRumorShared    InteractionType = "rumor_shared"
	InteractionQuestHint      InteractionType = "quest_hint"
	InteractionTaskOffered    InteractionType = "task_offered"
	InteractionRequestMade    InteractionType = "request_made"
	InteractionPleaForHelp    InteractionType = "plea_for_help"
	InteractionThreat         InteractionType = "threat"
	InteractionInsult         InteractionType = "insult"
	InteractionArgument       InteractionType = "argument"
	InteractionBetrayal       InteractionType = "betrayal"
	InteractionAccusation     InteractionType = "accusation"
	InteractionPromiseMade    InteractionType = "promise_made"
	InteractionPromiseBroken  InteractionType = "promise_broken"
)

// validInteractions is the closed set accepted from the generator.
var validInteractions = map[InteractionType]bool{
	InteractionCasual:         true,
	InteractionFriendlyChat:   true,
	InteractionFlirtation:     true,
	InteractionCompliment:     true,
	InteractionGiftGiven:      true,
	InteractionSecretRevealed: true,
	InteractionConfession:     true,
	InteractionRumorShared:    true,
	InteractionQuestHint:      true,
	InteractionTaskOffered:    true,
	InteractionRequestMade:    true,
	InteractionPleaForHelp:    true,
	InteractionThreat:         true,
	InteractionInsult:         true,
	InteractionArgument:       true,
	InteractionBetrayal:       true,
	InteractionAccusation:     true,
	InteractionPromiseMade:    true,
	InteractionPromiseBroken:  true,
}

// MaxDelta bounds each relationship delta accepted from the generator.
const MaxDelta = 20

// Payload is the structured output of one generation call.
type Payload struct {
	// Response is the free-form text shown to the player after sanitizing.
	Response string `json:"response"`

	// InteractionType is the generator's classification of the exchange.
	InteractionType InteractionType `json:"interaction_type"`

	// TopicsDiscussed is the generator's declared topic list.
	TopicsDiscussed []string `json:"topics_discussed,omitempty"`

	// TrustChange .. FamiliarityChange are relationship deltas.
	TrustChange       int `json:"trust_change"`
	AffectionChange   int `json:"affection_change"`
	FearChange        int `json:"fear_change"`
	RespectChange     int `json:"respect_change"`
	FamiliarityChange int `json:"familiarity_change"`

	// PlayerTone is the generator's read of the player's tone.
	PlayerTone string `json:"player_tone,omitempty"`

	// EmotionalImpact is a free emotion tag for the resulting memory.
	EmotionalImpact string `json:"emotional_impact,omitempty"`
}

// Normalize coerces untrusted payload fields into their safe ranges and
// reports which fields were touched.
//
// Rules:
//   - unknown interaction types become casual_conversation
//   - every delta is clamped to [-MaxDelta, MaxDelta]
//
// The returned issue list is for logging only; a coerced payload is valid.
func (p *Payload) Normalize() []string {
	var issues []string

	if !validInteractions[p.InteractionType] {
		if p.InteractionType != "" {
			issues = append(issues, "unknown interaction_type "+string(p.InteractionType))
		}
		p.InteractionType = InteractionCasual
	}

	clampField := func(v *int, name string) {
		if *v > MaxDelta {
			*v = MaxDelta
			issues = append(issues, name+" clamped")
		} else if *v < -MaxDelta {
			*v = -MaxDelta
			issues = append(issues, name+" clamped")
		}
	}
	clampField(&p.TrustChange, "trust_change")
	clampField(&p.AffectionChange, "affection_change")
	clampField(&p.FearChange, "fear_change")
	clampField(&p.RespectChange, "respect_change")
	clampField(&p.FamiliarityChange, "familiarity_change")

	return issues
}

// Delta returns the relationship delta the payload implies.
func (p *Payload) Delta() relationship.Delta {
	return relationship.Delta{
		Trust:       p.TrustChange,
		Respect:     p.RespectChange,
		Affection:   p.AffectionChange,
		Fear:        p.FearChange,
		Familiarity: p.FamiliarityChange,
	}
}
