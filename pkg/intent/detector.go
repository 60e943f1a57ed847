// Package intent converts a generation payload into a structured signal
// bundle: intents, topics, revelations, emotional shift and relationship
// implication.
//
// Detection is a keyword/pattern heuristic by design, not an NLP goal. The
// detector is a pure function over its inputs: no state, no side effects.
package intent

import (
	"strings"

	"github.com/lorekeep/lorekeep-go/pkg/genai"
)

// Coarse intent buckets derived from the declared interaction type.
const (
	BucketRevelation   = "revelation"
	BucketQuest        = "quest"
	BucketRelationship = "relationship"
	BucketConflict     = "conflict"
)

// Emotional shift classifications.
const (
	ShiftTrustGained = "trust_gained"
	ShiftTrustLost   = "trust_lost"
	ShiftFearInduced = "fear_induced"
	ShiftNeutral     = "neutral"
)

// Relationship implications.
const (
	ImplicationAlly     = "ally"
	ImplicationEnemy    = "enemy"
	ImplicationRomantic = "romantic"
	ImplicationNeutral  = "neutral"
)

// Bundle is the structured output of intent detection for one payload.
type Bundle struct {
	// AgentID is the agent whose payload produced the bundle.
	AgentID string

	// Intents holds the coarse bucket(s) plus the specific interaction
	// type, so quest conditions can match at either granularity.
	Intents []string

	// Topics is the union of declared and keyword-scanned topics.
	Topics []string

	// Revelations lists the topics surfaced by a revelation-like exchange.
	Revelations []string

	// EmotionalShift classifies the exchange's emotional effect.
	EmotionalShift string

	// RelationshipImplication is ally, enemy, romantic or neutral.
	RelationshipImplication string

	// QuestRelevant is advisory: true when a revelation/quest intent or any
	// topic was found. Used for logging, never gating.
	QuestRelevant bool
}

// HasIntent reports whether the bundle carries the named intent (bucket or
// specific interaction type).
func (b *Bundle) HasIntent(name string) bool {
	for _, it := range b.Intents {
		if it == name {
			return true
		}
	}
	return false
}

// HasTopic reports whether the bundle carries the named topic.
func (b *Bundle) HasTopic(topic string) bool {
	topic = strings.ToLower(topic)
	for _, t := range b.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// bucketMembership maps each interaction type to its coarse bucket.
var bucketMembership = map[genai.InteractionType]string{
	genai.InteractionSecretRevealed: BucketRevelation,
	genai.InteractionConfession:     BucketRevelation,
	genai.InteractionRumorShared:    BucketRevelation,

	genai.InteractionQuestHint:   BucketQuest,
	genai.InteractionTaskOffered: BucketQuest,
	genai.InteractionRequestMade: BucketQuest,
	genai.InteractionPleaForHelp: BucketQuest,

	genai.InteractionCasual:        BucketRelationship,
	genai.InteractionFriendlyChat:  BucketRelationship,
	genai.InteractionFlirtation:    BucketRelationship,
	genai.InteractionCompliment:    BucketRelationship,
	genai.InteractionGiftGiven:     BucketRelationship,
	genai.InteractionPromiseMade:   BucketRelationship,
	genai.InteractionPromiseBroken: BucketConflict,

	genai.InteractionThreat:     BucketConflict,
	genai.InteractionInsult:     BucketConflict,
	genai.InteractionArgument:   BucketConflict,
	genai.InteractionBetrayal:   BucketConflict,
	genai.InteractionAccusation: BucketConflict,
}

// topicKeywords is the fixed topic -> keyword dictionary scanned against the
// free-text response (case-insensitive substring match).
var topicKeywords = map[string][]string{
	"smuggling":     {"smuggl", "contraband", "hidden cargo"},
	"murder":        {"murder", "killed", "body was found", "corpse"},
	"theft":         {"stole", "stolen", "theft", "robbed", "burglar"},
	"romance":       {"love", "courting", "sweetheart", "marriage"},
	"money":         {"gold", "coin", "debt", "payment", "fortune"},
	"politics":      {"mayor", "council", "tax", "election", "guard captain"},
	"religion":      {"temple", "shrine", "priest", "gods", "ritual"},
	"travel":        {"caravan", "road", "journey", "traveler", "voyage"},
	"family":        {"brother", "sister", "mother", "father", "daughter", "son"},
	"ledger":        {"ledger", "accounts", "bookkeeping", "records"},
	"disappearance": {"missing", "vanished", "disappeared", "no one has seen"},
}

// Analyze converts one normalized payload into a signal bundle.
func Analyze(agentID string, p *genai.Payload) *Bundle {
	bundle := &Bundle{
		AgentID:                 agentID,
		EmotionalShift:          classifyShift(p),
		RelationshipImplication: classifyImplication(p),
	}

	if bucket, ok := bucketMembership[p.InteractionType]; ok {
		bundle.Intents = append(bundle.Intents, bucket)
	}
	bundle.Intents = append(bundle.Intents, string(p.InteractionType))

	// Topic union: declared list first, then keyword scan of the response.
	seen := make(map[string]bool)
	for _, t := range p.TopicsDiscussed {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			bundle.Topics = append(bundle.Topics, t)
		}
	}
	lower := strings.ToLower(p.Response)
	for topic, keywords := range topicKeywords {
		if seen[topic] {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				seen[topic] = true
				bundle.Topics = append(bundle.Topics, topic)
				break
			}
		}
	}

	if bundle.HasIntent(BucketRevelation) {
		bundle.Revelations = append([]string(nil), bundle.Topics...)
	}

	bundle.QuestRelevant = bundle.HasIntent(BucketRevelation) ||
		bundle.HasIntent(BucketQuest) ||
		len(bundle.Topics) > 0

	return bundle
}

// classifyShift applies the fixed emotional-shift thresholds to the
// payload's relationship deltas.
func classifyShift(p *genai.Payload) string {
	switch {
	case p.TrustChange+p.AffectionChange > 5:
		return ShiftTrustGained
	case p.FearChange-p.TrustChange-p.AffectionChange > 5:
		return ShiftTrustLost
	case p.FearChange > 5:
		return ShiftFearInduced
	default:
		return ShiftNeutral
	}
}

// classifyImplication is the fixed decision table keyed by interaction type
// and declared player tone.
func classifyImplication(p *genai.Payload) string {
	switch p.InteractionType {
	case genai.InteractionFlirtation:
		return ImplicationRomantic
	case genai.InteractionThreat, genai.InteractionBetrayal, genai.InteractionInsult, genai.InteractionAccusation:
		return ImplicationEnemy
	case genai.InteractionGiftGiven, genai.InteractionCompliment, genai.InteractionPleaForHelp, genai.InteractionPromiseMade:
		return ImplicationAlly
	}

	switch strings.ToLower(p.PlayerTone) {
	case "hostile", "threatening", "mocking":
		return ImplicationEnemy
	case "warm", "friendly", "supportive":
		return ImplicationAlly
	case "flirtatious", "romantic":
		return ImplicationRomantic
	}
	return ImplicationNeutral
}
