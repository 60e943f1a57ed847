package relationship_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lorekeep/lorekeep-go/pkg/relationship"
)

func TestGetDefaults(t *testing.T) {
	tr := relationship.NewTracker()

	st := tr.Get("mara", "player")
	assert.Equal(t, relationship.DefaultTrust, st.Trust)
	assert.Equal(t, relationship.DefaultRespect, st.Respect)
	assert.Equal(t, relationship.DefaultAffection, st.Affection)
	assert.Equal(t, relationship.DefaultFear, st.Fear)
	assert.Equal(t, relationship.DefaultFamiliarity, st.Familiarity)
}

func TestApplyClampsToBounds(t *testing.T) {
	tr := relationship.NewTracker()

	st := tr.Apply("mara", "player", relationship.Delta{Trust: 200, Fear: -50})
	assert.Equal(t, relationship.MaxValue, st.Trust)
	assert.Equal(t, relationship.MinValue, st.Fear)

	st = tr.Apply("mara", "player", relationship.Delta{Trust: -200})
	assert.Equal(t, relationship.MinValue, st.Trust)
}

func TestApplyAccumulates(t *testing.T) {
	tr := relationship.NewTracker()

	tr.Apply("mara", "player", relationship.Delta{Trust: 10, Familiarity: 5})
	st := tr.Apply("mara", "player", relationship.Delta{Trust: -3})
	assert.Equal(t, 57, st.Trust)
	assert.Equal(t, 5, st.Familiarity)

	// Pairs are independent.
	assert.Equal(t, relationship.DefaultTrust, tr.Get("gregor", "player").Trust)
	assert.Equal(t, relationship.DefaultTrust, tr.Get("mara", "gregor").Trust)
}

func TestSetDimension(t *testing.T) {
	tr := relationship.NewTracker()

	st, ok := tr.Set("mara", "player", "trust", 80)
	assert.True(t, ok)
	assert.Equal(t, 80, st.Trust)

	st, ok = tr.Set("mara", "player", "fear", 150)
	assert.True(t, ok)
	assert.Equal(t, relationship.MaxValue, st.Fear)

	_, ok = tr.Set("mara", "player", "charisma", 10)
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	tr := relationship.NewTracker()
	tr.Apply("mara", "player", relationship.Delta{Trust: 5})
	tr.Apply("mara", "gregor", relationship.Delta{Fear: 2})

	snap := tr.Snapshot("mara")
	assert.Len(t, snap, 2)
	assert.Equal(t, 55, snap["player"].Trust)
	assert.Equal(t, 2, snap["gregor"].Fear)
}
