package genai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lorekeep/lorekeep-go/pkg/genai"
)

func TestNormalizeCoercesUnknownInteractionType(t *testing.T) {
	p := &genai.Payload{InteractionType: "existential_dread"}

	issues := p.Normalize()
	assert.Equal(t, genai.InteractionCasual, p.InteractionType)
	assert.Len(t, issues, 1)
}

func TestNormalizeEmptyInteractionTypeIsSilent(t *testing.T) {
	p := &genai.Payload{}

	issues := p.Normalize()
	assert.Equal(t, genai.InteractionCasual, p.InteractionType)
	assert.Empty(t, issues)
}

func TestNormalizeClampsDeltas(t *testing.T) {
	p := &genai.Payload{
		InteractionType: genai.InteractionThreat,
		TrustChange:     -100,
		FearChange:      100,
		RespectChange:   -21,
		AffectionChange: 20,
	}

	issues := p.Normalize()
	assert.Equal(t, -genai.MaxDelta, p.TrustChange)
	assert.Equal(t, genai.MaxDelta, p.FearChange)
	assert.Equal(t, -genai.MaxDelta, p.RespectChange)
	assert.Equal(t, 20, p.AffectionChange) // at the bound, untouched
	assert.Len(t, issues, 3)
}

func TestNormalizeValidPayloadUntouched(t *testing.T) {
	p := &genai.Payload{
		InteractionType: genai.InteractionPromiseMade,
		TrustChange:     5,
	}

	assert.Empty(t, p.Normalize())
	assert.Equal(t, genai.InteractionPromiseMade, p.InteractionType)
}

func TestDelta(t *testing.T) {
	p := &genai.Payload{
		TrustChange:       3,
		RespectChange:     -2,
		AffectionChange:   1,
		FearChange:        4,
		FamiliarityChange: 5,
	}

	d := p.Delta()
	assert.Equal(t, 3, d.Trust)
	assert.Equal(t, -2, d.Respect)
	assert.Equal(t, 1, d.Affection)
	assert.Equal(t, 4, d.Fear)
	assert.Equal(t, 5, d.Familiarity)
	assert.False(t, d.IsZero())
	assert.True(t, (&genai.Payload{}).Delta().IsZero())
}
