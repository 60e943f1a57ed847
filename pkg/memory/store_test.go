package memory_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep-go/pkg/memory"
	"github.com/lorekeep/lorekeep-go/pkg/validate"
	"github.com/lorekeep/lorekeep-go/pkg/vector"
)

// okValidator accepts everything unchanged.
type okValidator struct{}

func (okValidator) ValidateMemory(text, agentID string) validate.Verdict {
	return validate.Verdict{Valid: true, Sanitized: text}
}

// denyValidator rejects texts containing a marker substring.
type denyValidator struct{ marker string }

func (v denyValidator) ValidateMemory(text, agentID string) validate.Verdict {
	if strings.Contains(text, v.marker) {
		return validate.Verdict{Issues: []string{"forbidden name " + v.marker}}
	}
	return validate.Verdict{Valid: true, Sanitized: text}
}

// fakeVector is an in-test vector.Store with scriptable failures.
type fakeVector struct {
	failUpsert bool
	failQuery  bool
	upserts    map[string]string
	results    []vector.Result
	queries    int
	lastFilter map[string]interface{}
}

func newFakeVector() *fakeVector {
	return &fakeVector{upserts: make(map[string]string)}
}

func (f *fakeVector) CreateCollection(ctx context.Context, name string) error { return nil }

func (f *fakeVector) Upsert(ctx context.Context, collection, id, document string, metadata map[string]interface{}) error {
	if f.failUpsert {
		return errors.New("bridge down")
	}
	f.upserts[id] = document
	return nil
}

func (f *fakeVector) Query(ctx context.Context, collection, queryText string, limit int, filter map[string]interface{}) ([]vector.Result, error) {
	f.queries++
	f.lastFilter = filter
	if f.failQuery {
		return nil, errors.New("bridge down")
	}
	return f.results, nil
}

func (f *fakeVector) Count(ctx context.Context, collection string) (int, error) { return len(f.upserts), nil }
func (f *fakeVector) DeleteCollection(ctx context.Context, name string) error   { return nil }
func (f *fakeVector) Close() error                                              { return nil }

func newStore(t *testing.T, v vector.Store) *memory.Store {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return memory.NewStore(memory.DefaultScoringConfig(), okValidator{}, v, nil, node, nil)
}

func TestStoreRejectedCandidateIsDiscarded(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := memory.NewStore(memory.DefaultScoringConfig(), denyValidator{marker: "Crimson"}, nil, nil, node, nil)

	res, err := s.Store(context.Background(), "mara", memory.Candidate{FullForm: "She serves the Crimson Court."})
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Nil(t, res.Memory)
	assert.NotEmpty(t, res.Issues)
	assert.Empty(t, s.Memories("mara"))
}

func TestStoreEmptyAgentIDIsMisuse(t *testing.T) {
	s := newStore(t, nil)

	_, err := s.Store(context.Background(), "", memory.Candidate{FullForm: "x"})
	assert.ErrorIs(t, err, memory.ErrEmptyAgentID)

	_, err = s.Select(context.Background(), "", "query", 100)
	assert.ErrorIs(t, err, memory.ErrEmptyAgentID)
}

func TestSlotReplacementKeepsSingleLiveHolder(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	first, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm: "The player said their name is Ash.",
		SlotType: "player_name",
	})
	require.NoError(t, err)

	second, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm: "The player now claims to be called Bram.",
		SlotType: "player_name",
	})
	require.NoError(t, err)

	current, ok := s.CurrentSlot("mara", "player_name")
	require.True(t, ok)
	assert.Equal(t, second.Memory.ID, current.ID)

	// The old value is superseded but retained.
	all := s.Memories("mara")
	require.Len(t, all, 2)
	assert.True(t, all[0].Superseded)
	assert.Equal(t, first.Memory.ID, all[0].ID)
	assert.False(t, all[1].Superseded)
}

func TestSupersessionTriggerRetiresTarget(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	promise, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The player promised to return the ledger by sundown.",
		EventType: memory.EventPromiseMade,
	})
	require.NoError(t, err)
	assert.False(t, promise.Memory.Superseded)

	_, err = s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "Sundown came and went with no ledger.",
		EventType: memory.EventPromiseBroken,
	})
	require.NoError(t, err)

	all := s.Memories("mara")
	require.Len(t, all, 2)
	assert.True(t, all[0].Superseded, "promise_made must be superseded by promise_broken")
	assert.False(t, all[1].Superseded)
}

func TestSupersessionIsMonotonic(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The player promised to help.",
		EventType: memory.EventPromiseMade,
	})
	require.NoError(t, err)
	_, err = s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The promise was broken.",
		EventType: memory.EventPromiseBroken,
	})
	require.NoError(t, err)

	// A later unrelated store never resurrects a superseded memory.
	_, err = s.Store(ctx, "mara", memory.Candidate{FullForm: "Small talk about the weather."})
	require.NoError(t, err)

	assert.True(t, s.Memories("mara")[0].Superseded)
}

func TestStoreNormalizesCandidate(t *testing.T) {
	s := newStore(t, nil)

	long := strings.Repeat("a", memory.ShortFormMaxLen+50)
	res, err := s.Store(context.Background(), "mara", memory.Candidate{
		FullForm:   long,
		Importance: 99,
	})
	require.NoError(t, err)

	assert.Len(t, res.Memory.ShortForm, memory.ShortFormMaxLen)
	assert.Equal(t, long, res.Memory.FullForm)
	assert.Equal(t, 10, res.Memory.Importance)
	assert.Equal(t, memory.EventConversation, res.Memory.EventType)
}

func TestStoreTruncatesShortFormOnRuneBoundary(t *testing.T) {
	s := newStore(t, nil)

	// Multibyte text must not be cut mid-rune.
	long := strings.Repeat("étagère ", memory.ShortFormMaxLen/4)
	res, err := s.Store(context.Background(), "mara", memory.Candidate{FullForm: long})
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(res.Memory.ShortForm))
	assert.Equal(t, memory.ShortFormMaxLen, utf8.RuneCountInString(res.Memory.ShortForm))
}

func TestSelectBudgetZeroReturnsNothingPacked(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "Saw the theft.",
		EventType: memory.EventWitnessedCrime,
	})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "theft", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectTinyBudgetSkipsOversizedItems(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "A long account of the crime at the market that runs well past one character.",
		EventType: memory.EventWitnessedCrime,
	})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "crime", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectHugeBudgetIncludesEverything(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "Saw the theft at the market.",
		EventType: memory.EventWitnessedCrime,
	})
	require.NoError(t, err)
	_, err = s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The player promised to help.",
		EventType: memory.EventPromiseMade,
	})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "anything", 1_000_000)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	total := 0
	for _, sel := range got {
		total += len(sel.Text)
	}
	assert.LessOrEqual(t, total, 1_000_000)
}

func TestSelectProtectedSlotItemsComeFirst(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "Saw the theft at the market.",
		EventType: memory.EventWitnessedCrime,
	})
	require.NoError(t, err)
	slot, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm: "The player's name is Ash.",
		SlotType: "player_name",
	})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "theft", 10_000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Protected)
	assert.Equal(t, slot.Memory.ID, got[0].Memory.ID)
	assert.False(t, got[1].Protected)
}

func TestSelectExcludesIrrelevantConversation(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	// Plain conversation, no semantic hit, not high-signal: not a candidate.
	_, err := s.Store(ctx, "mara", memory.Candidate{FullForm: "Small talk about the weather."})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "ledger", 10_000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectDualRepresentation(t *testing.T) {
	fv := newFakeVector()
	s := newStore(t, fv)
	ctx := context.Background()

	stored, err := s.Store(ctx, "mara", memory.Candidate{
		ShortForm: "Ledger gossip.",
		FullForm:  "Long and winding account of everything said about the ledger that evening.",
	})
	require.NoError(t, err)

	// High similarity switches the packed text to the full form.
	fv.results = []vector.Result{{
		ID:         strconv.FormatInt(stored.Memory.ID, 10),
		Similarity: 0.9,
	}}
	got, err := s.Select(ctx, "mara", "ledger", 10_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored.Memory.FullForm, got[0].Text)

	// Low similarity keeps the compact short form.
	fv.results[0].Similarity = 0.3
	got, err = s.Select(ctx, "mara", "ledger", 10_000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ledger gossip.", got[0].Text)
}

func TestSelectDegradesWhenVectorUnavailable(t *testing.T) {
	fv := newFakeVector()
	fv.failQuery = true
	s := newStore(t, fv)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "Saw the theft at the market.",
		EventType: memory.EventWitnessedCrime,
	})
	require.NoError(t, err)
	_, err = s.Store(ctx, "mara", memory.Candidate{
		FullForm: "The player's name is Ash.",
		SlotType: "player_name",
	})
	require.NoError(t, err)

	// Protected and high-signal items survive; no error surfaces.
	got, err := s.Select(ctx, "mara", "theft", 10_000)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSelectRanksSupersededBelowReplacement(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The player promised to return the ledger.",
		EventType: memory.EventPromiseMade,
	})
	require.NoError(t, err)
	broken, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:  "The promise was broken.",
		EventType: memory.EventPromiseBroken,
	})
	require.NoError(t, err)

	got, err := s.Select(ctx, "mara", "promise", 10_000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, broken.Memory.ID, got[0].Memory.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestVectorUpsertFailureIsBufferedAndRetriedOnce(t *testing.T) {
	fv := newFakeVector()
	fv.failUpsert = true
	s := newStore(t, fv)
	ctx := context.Background()

	res, err := s.Store(ctx, "mara", memory.Candidate{FullForm: "Quiet evening at the stall."})
	require.NoError(t, err)
	assert.Empty(t, fv.upserts, "failed upsert must not reach the store")

	// Next successful vector contact flushes the buffer.
	fv.failUpsert = false
	_, err = s.Select(ctx, "mara", "evening", 10_000)
	require.NoError(t, err)

	id := strconv.FormatInt(res.Memory.ID, 10)
	assert.Contains(t, fv.upserts, id)
}

func TestStatsCountsTiersAndTypes(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{FullForm: "a", Importance: 3})
	require.NoError(t, err)
	_, err = s.Store(ctx, "mara", memory.Candidate{FullForm: "b", Importance: 7, EventType: memory.EventBetrayal})
	require.NoError(t, err)
	_, err = s.Store(ctx, "mara", memory.Candidate{FullForm: "c", SlotType: "player_name"})
	require.NoError(t, err)

	stats := s.Stats("mara")
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 0, stats.Superseded)
	assert.Equal(t, 1, stats.ByTier[memory.TierPinned])
	assert.Equal(t, 1, stats.ByTier[memory.TierImportant])
	assert.Equal(t, 1, stats.ByTier[memory.TierRegular])
	assert.Equal(t, 2, stats.ByType[memory.EventConversation])
	assert.Equal(t, 1, stats.ByType[memory.EventBetrayal])
}

func TestPurgeClearsCollection(t *testing.T) {
	s := newStore(t, newFakeVector())
	ctx := context.Background()

	_, err := s.Store(ctx, "mara", memory.Candidate{FullForm: "gone soon"})
	require.NoError(t, err)
	require.NoError(t, s.Purge(ctx, "mara"))

	assert.Empty(t, s.Memories("mara"))
	assert.Zero(t, s.Stats("mara").Total)
}

func TestTierOf(t *testing.T) {
	now := time.Now()
	assert.Equal(t, memory.TierPinned, (&memory.Memory{SlotType: "player_name", Timestamp: now}).TierOf())
	assert.Equal(t, memory.TierPinned, (&memory.Memory{Importance: 9, Timestamp: now}).TierOf())
	assert.Equal(t, memory.TierImportant, (&memory.Memory{Importance: 7, Timestamp: now}).TierOf())
	assert.Equal(t, memory.TierRegular, (&memory.Memory{Importance: 5, Timestamp: now}).TierOf())
}

func TestSearchBuildsMetadataFilter(t *testing.T) {
	fv := newFakeVector()
	s := newStore(t, fv)
	ctx := context.Background()

	stored, err := s.Store(ctx, "mara", memory.Candidate{
		FullForm:   "The player confessed to the theft.",
		EventType:  "conversation",
		Importance: 8,
	})
	require.NoError(t, err)
	fv.results = []vector.Result{
		{ID: strconv.FormatInt(stored.Memory.ID, 10), Similarity: 0.82},
	}

	hits, err := s.Search(ctx, "mara", "theft", 5, memory.SearchFilter{
		MinImportance: 7,
		Tier:          memory.TierImportant,
	})
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, stored.Memory.ID, hits[0].Memory.ID)
	assert.InDelta(t, 0.82, hits[0].Similarity, 1e-9)

	// Both clauses combine under $and.
	and, ok := fv.lastFilter["$and"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, and, 2)
	imp := and[0]["importance"].(map[string]interface{})
	assert.Equal(t, 7, imp["$gte"])
	assert.Equal(t, "IMPORTANT", and[1]["tier"])
}

func TestSearchSingleClauseSkipsAnd(t *testing.T) {
	fv := newFakeVector()
	s := newStore(t, fv)

	_, err := s.Search(context.Background(), "mara", "theft", 5, memory.SearchFilter{MinImportance: 6})
	require.NoError(t, err)

	_, hasAnd := fv.lastFilter["$and"]
	assert.False(t, hasAnd)
	imp := fv.lastFilter["importance"].(map[string]interface{})
	assert.Equal(t, 6, imp["$gte"])
}

func TestSearchRequiresVectorCollaborator(t *testing.T) {
	s := newStore(t, nil)
	_, err := s.Search(context.Background(), "mara", "theft", 5, memory.SearchFilter{})
	assert.Error(t, err)
}
