package memory

import (
	"math"
	"time"
)

// ScoringConfig holds the selection scoring parameters.
//
// The score of a candidate is
//
//	score = tierWeight[tier] * recencyFactor * relevanceFactor
//
// where recencyFactor = max(RecencyFloor, 2^(-age/HalfLife)) and
// relevanceFactor = max(RelevanceFloor, similarity). Superseded memories are
// multiplied by SupersededMultiplier on top.
type ScoringConfig struct {
	// HalfLife is the age at which recency halves.
	HalfLife time.Duration `json:"half_life"`

	// RecencyFloor is the minimum recency factor; old memories never decay
	// to zero.
	RecencyFloor float64 `json:"recency_floor"`

	// RelevanceFloor is the minimum relevance factor; memories the vector
	// collaborator did not return still score.
	RelevanceFloor float64 `json:"relevance_floor"`

	// SupersededMultiplier is the penalty applied to superseded memories.
	SupersededMultiplier float64 `json:"superseded_multiplier"`

	// HighRelevanceThreshold selects the full form instead of the short
	// form when a memory's similarity reaches it.
	HighRelevanceThreshold float64 `json:"high_relevance_threshold"`

	// RecencyWindow bounds the direct high-signal fetch.
	RecencyWindow time.Duration `json:"recency_window"`

	// TopK is the semantic candidate count requested per selection.
	TopK int `json:"top_k"`

	// TierWeights maps each tier to its multiplicative weight.
	TierWeights map[Tier]float64 `json:"tier_weights"`
}

// DefaultScoringConfig returns the standard scoring parameters.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		HalfLife:               24 * time.Hour,
		RecencyFloor:           0.1,
		RelevanceFloor:         0.2,
		SupersededMultiplier:   0.1,
		HighRelevanceThreshold: 0.75,
		RecencyWindow:          72 * time.Hour,
		TopK:                   10,
		TierWeights: map[Tier]float64{
			TierPinned:    2.0,
			TierImportant: 1.5,
			TierRegular:   1.0,
		},
	}
}

// highSignalTypes is the fixed allow-list of event types fetched directly
// within the recency window, with no relevance filtering.
var highSignalTypes = map[string]bool{
	EventWitnessedCrime: true,
	EventBetrayal:       true,
	EventPromiseMade:    true,
	EventPromiseBroken:  true,
	EventDeathWitnessed: true,
}

// score computes the selection score of a memory given its similarity from
// the vector collaborator (0 when absent).
func (c ScoringConfig) score(m *Memory, similarity float64, now time.Time) float64 {
	weight, ok := c.TierWeights[m.TierOf()]
	if !ok {
		weight = 1.0
	}

	age := now.Sub(m.Timestamp)
	recency := math.Exp2(-age.Hours() / c.HalfLife.Hours())
	if recency < c.RecencyFloor {
		recency = c.RecencyFloor
	}

	relevance := similarity
	if relevance < c.RelevanceFloor {
		relevance = c.RelevanceFloor
	}

	s := weight * recency * relevance
	if m.Superseded {
		s *= c.SupersededMultiplier
	}
	return s
}
