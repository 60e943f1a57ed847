package worldstate_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep-go/pkg/worldstate"
)

func newLog(t *testing.T) *worldstate.Log {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return worldstate.NewLog(node, nil)
}

func TestAppendAssignsIDsAndKeepsOrder(t *testing.T) {
	l := newLog(t)

	first := l.Append("crime", "The ledger was stolen", []string{"mara"}, "riverside_market")
	second := l.Append("social", "Festival in the square", nil, "riverside")
	assert.NotZero(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "crime", events[0].Category)
	assert.Equal(t, "social", events[1].Category)

	crimes := l.EventsByCategory("crime")
	require.Len(t, crimes, 1)
	assert.Equal(t, first.ID, crimes[0].ID)
}

func TestSetFlagNotifiesOnlyOnChange(t *testing.T) {
	l := newLog(t)

	var changes []bool
	l.OnFlagChanged(func(name string, value bool) {
		assert.Equal(t, "ledger_found", name)
		changes = append(changes, value)
	})

	l.SetFlag("ledger_found", true)
	l.SetFlag("ledger_found", true) // no change, no notification
	l.SetFlag("ledger_found", false)

	assert.Equal(t, []bool{true, false}, changes)
	assert.False(t, l.Flag("ledger_found"))
	assert.False(t, l.Flag("never_set"))
}

func TestSetFlagFirstFalseIsSilent(t *testing.T) {
	l := newLog(t)

	var notified int
	l.OnFlagChanged(func(name string, value bool) { notified++ })

	// Unset flags already read as false, so this is not a change.
	l.SetFlag("gate_open", false)
	assert.Zero(t, notified)
	assert.False(t, l.Flag("gate_open"))

	// The flag still transitions normally afterwards.
	l.SetFlag("gate_open", true)
	assert.Equal(t, 1, notified)
}

func TestLearnPlayerFactFirstWriterWins(t *testing.T) {
	l := newLog(t)

	assert.True(t, l.LearnPlayerFact("name", "Ash", "mara"))
	assert.False(t, l.LearnPlayerFact("name", "Bram", "gregor"))

	facts := l.PlayerFactsSnapshot()
	assert.Equal(t, "Ash", facts.Name)
}

func TestLearnPlayerFactNotableDeduplicates(t *testing.T) {
	l := newLog(t)

	assert.True(t, l.LearnPlayerFact("notable", "carries a silver dagger", "mara"))
	assert.False(t, l.LearnPlayerFact("notable", "carries a silver dagger", "gregor"))
	assert.True(t, l.LearnPlayerFact("notable", "afraid of dogs", "gregor"))

	facts := l.PlayerFactsSnapshot()
	assert.Len(t, facts.NotableFacts, 2)
}

func TestInvalidateAgentFactsReopensFields(t *testing.T) {
	l := newLog(t)

	l.LearnPlayerFact("name", "Ash", "mara")
	l.LearnPlayerFact("occupation", "courier", "gregor")

	l.InvalidateAgentFacts("mara")

	facts := l.PlayerFactsSnapshot()
	assert.Empty(t, facts.Name)
	assert.Equal(t, "courier", facts.Occupation)

	// The field is writable again.
	assert.True(t, l.LearnPlayerFact("name", "Bram", "gregor"))
}
