package quest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep-go/pkg/genai"
	"github.com/lorekeep/lorekeep-go/pkg/intent"
	"github.com/lorekeep/lorekeep-go/pkg/quest"
)

// fakeFlags is an in-test flag source with change fan-out back into the
// engine, mirroring how the world state is wired in production.
type fakeFlags struct {
	values   map[string]bool
	listener func(name string, value bool)
}

func newFakeFlags() *fakeFlags { return &fakeFlags{values: make(map[string]bool)} }

func (f *fakeFlags) Flag(name string) bool { return f.values[name] }

func (f *fakeFlags) SetFlag(name string, value bool) {
	prev, existed := f.values[name]
	f.values[name] = value
	if (!existed || prev != value) && f.listener != nil {
		f.listener(name, value)
	}
}

// fakeTrust returns scripted trust values.
type fakeTrust struct{ values map[string]int }

func (f fakeTrust) Trust(agentID string) int { return f.values[agentID] }

func bundleFor(agentID string, it genai.InteractionType, topics ...string) *intent.Bundle {
	return intent.Analyze(agentID, &genai.Payload{
		InteractionType: it,
		TopicsDiscussed: topics,
	})
}

func ledgerQuest() *quest.Quest {
	return &quest.Quest{
		ID:              "missing_ledger",
		Title:           "The Missing Ledger",
		Priority:        10,
		DiscoveryTopics: []string{"ledger"},
		DiscoveryAgent:  "mara",
		CompletionFlags: []string{"ledger_found"},
		Hints:           map[string]string{"mara": "Steer the player toward the market."},
		Objectives: []*quest.Objective{
			{ID: "learn", CompleteOnTopics: []string{"smuggling"}},
			{ID: "recover", CompleteOnFlag: "ledger_recovered"},
		},
	}
}

func trustQuest() *quest.Quest {
	return &quest.Quest{
		ID:               "gregors_trust",
		Title:            "Gregor's Trust",
		RequiredFlags:    []string{"ledger_found"},
		DiscoveryIntents: []string{"plea_for_help"},
		Objectives: []*quest.Objective{
			{ID: "earn_trust", CompleteOnRelationship: map[string]int{"gregor": 60}},
		},
	}
}

func TestQuestsWithEmptyPredicateStartAvailable(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest(), trustQuest()}, newFakeFlags(), nil, nil, nil)

	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateAvailable, q.State)

	// Gated quest stays down until its flag turns true.
	q, _ = e.Get("gregors_trust")
	assert.Equal(t, quest.StateUnavailable, q.State)
}

func TestDiscoveryRequiresMatchingAgent(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	// Right topic, wrong agent.
	e.EvaluateSignals(bundleFor("gregor", genai.InteractionRumorShared, "ledger"))
	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateAvailable, q.State)

	e.EvaluateSignals(bundleFor("mara", genai.InteractionRumorShared, "ledger"))
	q, _ = e.Get("missing_ledger")
	assert.Equal(t, quest.StateActive, q.State)
}

func TestTopicObjectiveCompletesWithProvenance(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	// One bundle both discovers the quest and completes the topic
	// objective: evaluation is atomic per bundle.
	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))

	q, _ := e.Get("missing_ledger")
	require.Equal(t, quest.StateActive, q.State)
	assert.True(t, q.Objectives[0].Completed)
	assert.Equal(t, "topic:smuggling", q.Objectives[0].CompletedBy)
	assert.False(t, q.Objectives[1].Completed)
}

func TestFlagObjectiveAndCompletionFlags(t *testing.T) {
	flags := newFakeFlags()
	e := quest.NewEngine([]*quest.Quest{ledgerQuest(), trustQuest()}, flags, nil, nil, nil)
	flags.listener = e.HandleFlagChanged

	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))
	flags.SetFlag("ledger_recovered", true)

	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateCompleted, q.State)
	assert.Equal(t, "flag:ledger_recovered", q.Objectives[1].CompletedBy)

	// Completion flag is written back and promotes the gated quest.
	assert.True(t, flags.Flag("ledger_found"))
	q, _ = e.Get("gregors_trust")
	assert.Equal(t, quest.StateAvailable, q.State)
}

func TestFlagObjectiveSatisfiedByPreexistingFlag(t *testing.T) {
	flags := newFakeFlags()
	flags.SetFlag("ledger_recovered", true)
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, flags, nil, nil, nil)

	// Flag conditions are state, not edge: the flag being true while the
	// quest is ACTIVE completes the objective regardless of set order.
	require.NoError(t, e.ForceStart("missing_ledger"))
	q, _ := e.Get("missing_ledger")
	assert.True(t, q.Objectives[1].Completed)
	assert.Equal(t, "flag:ledger_recovered", q.Objectives[1].CompletedBy)
}

func TestDiscoveryCatchesUpPreexistingFlag(t *testing.T) {
	flags := newFakeFlags()
	flags.SetFlag("ledger_recovered", true)
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, flags, nil, nil, nil)
	flags.listener = e.HandleFlagChanged

	// One bundle discovers the quest, completes the topic objective, and
	// the catch-up scan picks up the already-true flag: the quest finishes
	// in the same evaluation pass.
	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))
	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateCompleted, q.State)
	assert.True(t, flags.Flag("ledger_found"))
}

func TestForceCompleteObjectiveIgnoredOnTerminalQuest(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	require.NoError(t, e.ForceStart("missing_ledger"))
	require.NoError(t, e.Fail("missing_ledger", "debug"))
	require.NoError(t, e.ForceCompleteObjective("missing_ledger", "learn"))

	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateFailed, q.State)
	assert.False(t, q.Objectives[0].Completed)
}

func TestRelationshipThresholdObjective(t *testing.T) {
	trust := fakeTrust{values: map[string]int{"gregor": 45}}
	e := quest.NewEngine([]*quest.Quest{trustQuest()}, newFakeFlags(), trust, nil, nil)

	require.NoError(t, e.ForceStart("gregors_trust"))

	// trust=45: below threshold, nothing completes.
	e.HandleRelationshipChanged("gregor")
	q, _ := e.Get("gregors_trust")
	assert.Equal(t, quest.StateActive, q.State)
	assert.False(t, q.Objectives[0].Completed)

	// trust=61: the objective completes and, being the last required one,
	// the quest finishes in the same evaluation pass.
	trust.values["gregor"] = 61
	e.HandleRelationshipChanged("gregor")
	q, _ = e.Get("gregors_trust")
	assert.Equal(t, quest.StateCompleted, q.State)
	assert.Equal(t, "relationship:gregor", q.Objectives[0].CompletedBy)
}

func TestMemoryTagObjectiveIsAgentScoped(t *testing.T) {
	q := &quest.Quest{
		ID: "evidence",
		Objectives: []*quest.Objective{
			{ID: "hear_it", CompleteOnMemoryTag: "ledger", RequiresAgent: "mara"},
		},
	}
	e := quest.NewEngine([]*quest.Quest{q}, newFakeFlags(), nil, nil, nil)
	require.NoError(t, e.ForceStart("evidence"))

	e.HandleMemoryStored("gregor", []string{"ledger"})
	got, _ := e.Get("evidence")
	assert.False(t, got.Objectives[0].Completed)

	e.HandleMemoryStored("mara", []string{"ledger"})
	got, _ = e.Get("evidence")
	assert.True(t, got.Objectives[0].Completed)
	assert.Equal(t, "memory:ledger", got.Objectives[0].CompletedBy)
}

func TestLocationObjective(t *testing.T) {
	q := &quest.Quest{
		ID: "pilgrimage",
		Objectives: []*quest.Objective{
			{ID: "arrive", CompleteOnLocation: "greyhollow"},
		},
	}
	e := quest.NewEngine([]*quest.Quest{q}, newFakeFlags(), nil, nil, nil)
	require.NoError(t, e.ForceStart("pilgrimage"))

	e.HandlePlayerEnteredArea("riverside")
	got, _ := e.Get("pilgrimage")
	assert.False(t, got.Objectives[0].Completed)

	e.HandlePlayerEnteredArea("greyhollow")
	got, _ = e.Get("pilgrimage")
	assert.Equal(t, quest.StateCompleted, got.State)
	assert.Equal(t, "location:greyhollow", got.Objectives[0].CompletedBy)
}

func TestOptionalObjectiveDoesNotBlockCompletion(t *testing.T) {
	q := &quest.Quest{
		ID: "errand",
		Objectives: []*quest.Objective{
			{ID: "must", CompleteOnFlag: "done"},
			{ID: "bonus", CompleteOnFlag: "flourish", Optional: true},
		},
	}
	e := quest.NewEngine([]*quest.Quest{q}, newFakeFlags(), nil, nil, nil)
	require.NoError(t, e.ForceStart("errand"))

	e.HandleFlagChanged("done", true)
	got, _ := e.Get("errand")
	assert.Equal(t, quest.StateCompleted, got.State)
	assert.False(t, got.Objectives[1].Completed)
}

func TestObjectiveCompletionIsOneWay(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))

	// The triggering signal going quiet never uncompletes the objective.
	e.EvaluateSignals(bundleFor("mara", genai.InteractionCasual))
	q, _ := e.Get("missing_ledger")
	assert.True(t, q.Objectives[0].Completed)
}

func TestFailureFlagFailsActiveQuest(t *testing.T) {
	q := ledgerQuest()
	q.FailureFlag = "ledger_burned"
	e := quest.NewEngine([]*quest.Quest{q}, newFakeFlags(), nil, nil, nil)
	require.NoError(t, e.ForceStart("missing_ledger"))

	e.HandleFlagChanged("ledger_burned", true)
	got, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateFailed, got.State)
	assert.Equal(t, "flag:ledger_burned", got.FailReason)
}

func TestResetClearsObjectivesAndRescansAvailability(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))
	require.NoError(t, e.Reset("missing_ledger"))

	q, _ := e.Get("missing_ledger")
	// Empty availability predicate: straight back to AVAILABLE.
	assert.Equal(t, quest.StateAvailable, q.State)
	for _, o := range q.Objectives {
		assert.False(t, o.Completed)
		assert.Empty(t, o.CompletedBy)
	}
}

func TestForceCompleteIsIdempotent(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	require.NoError(t, e.ForceComplete("missing_ledger"))
	q, _ := e.Get("missing_ledger")
	assert.Equal(t, quest.StateCompleted, q.State)
	for _, o := range q.Objectives {
		assert.Equal(t, "debug:forced", o.CompletedBy)
	}

	require.NoError(t, e.ForceComplete("missing_ledger"))
	q, _ = e.Get("missing_ledger")
	assert.Equal(t, quest.StateCompleted, q.State)
}

func TestDebugOpsRejectUnknownIDs(t *testing.T) {
	e := quest.NewEngine(nil, newFakeFlags(), nil, nil, nil)

	assert.ErrorIs(t, e.ForceStart("nope"), quest.ErrUnknownQuest)
	assert.ErrorIs(t, e.ForceComplete("nope"), quest.ErrUnknownQuest)
	assert.ErrorIs(t, e.Reset("nope"), quest.ErrUnknownQuest)
	assert.ErrorIs(t, e.Fail("nope", "because"), quest.ErrUnknownQuest)
}

func TestForceCompleteObjectiveUnknownObjective(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	assert.ErrorIs(t, e.ForceCompleteObjective("missing_ledger", "nope"), quest.ErrUnknownObjective)
	assert.NoError(t, e.ForceCompleteObjective("missing_ledger", "learn"))
}

func TestHintsComeFromActiveQuestsOnly(t *testing.T) {
	e := quest.NewEngine([]*quest.Quest{ledgerQuest()}, newFakeFlags(), nil, nil, nil)

	assert.Empty(t, e.Hints("mara"))

	require.NoError(t, e.ForceStart("missing_ledger"))
	hints := e.Hints("mara")
	require.Len(t, hints, 1)
	assert.Equal(t, "Steer the player toward the market.", hints[0])
	assert.Empty(t, e.Hints("gregor"))
}

func TestSaveStateShape(t *testing.T) {
	flags := newFakeFlags()
	e := quest.NewEngine([]*quest.Quest{ledgerQuest(), trustQuest()}, flags, nil, nil, nil)
	flags.listener = e.HandleFlagChanged

	e.EvaluateSignals(bundleFor("mara", genai.InteractionSecretRevealed, "ledger", "smuggling"))

	save := e.Save()
	require.Contains(t, save.Active, "missing_ledger")
	assert.Equal(t, "topic:smuggling", save.Active["missing_ledger"]["learn"])
	assert.Empty(t, save.Completed)

	flags.SetFlag("ledger_recovered", true)
	save = e.Save()
	assert.Contains(t, save.Completed, "missing_ledger")
	assert.Contains(t, save.Available, "gregors_trust")
}
