package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-go/pkg/storage"
	"github.com/lorekeep/lorekeep-go/pkg/validate"
	"github.com/lorekeep/lorekeep-go/pkg/vector"
)

// ErrEmptyAgentID reports programmer misuse of the store API.
var ErrEmptyAgentID = errors.New("memory: agent id is empty")

// Validator is the consistency check applied to every candidate before it
// is persisted.
type Validator interface {
	ValidateMemory(text, agentID string) validate.Verdict
}

// StoredListener observes successfully stored memories (quest engine tag
// events, bus notifications). Listeners run after the per-agent lock is
// released.
type StoredListener func(agentID string, m *Memory)

// Store owns every agent's memory collection.
//
// Two turns for different agents may run concurrently; operations on one
// agent's collection are serialized by a per-agent mutex, because slot
// replacement and supersession are read-then-write sequences.
type Store struct {
	cfg       ScoringConfig
	validator Validator
	vectors   vector.Store        // nil disables semantic retrieval
	records   storage.RecordStore // nil disables persistence
	node      *snowflake.Node
	logger    *zap.Logger

	mu          sync.Mutex
	collections map[string]*collection
	supersedes  map[string]string // trigger event type -> superseded target type
	pending     map[int64]pendingDoc
	created     map[string]bool // collections known to exist on the vector side
	listeners   []StoredListener
}

// collection is one agent's memories plus the per-agent write lock.
type collection struct {
	mu       sync.Mutex
	loaded   bool
	memories []*Memory
}

// pendingDoc is a vector upsert that failed and awaits one best-effort
// retry.
type pendingDoc struct {
	collection string
	id         string
	document   string
	metadata   map[string]interface{}
}

// NewStore creates a memory store.
//
// vectors and records may each be nil: without vectors, Select degrades to
// protected plus high-signal items; without records, collections are
// memory-only. A nil logger disables logging.
func NewStore(cfg ScoringConfig, validator Validator, vectors vector.Store, records storage.RecordStore, node *snowflake.Node, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:         cfg,
		validator:   validator,
		vectors:     vectors,
		records:     records,
		node:        node,
		logger:      logger,
		collections: make(map[string]*collection),
		supersedes: map[string]string{
			EventPromiseBroken: EventPromiseMade,
		},
		pending: make(map[int64]pendingDoc),
		created: make(map[string]bool),
	}
}

// AddSupersession registers trigger as a supersession trigger for target:
// storing a trigger memory marks live target memories superseded.
func (s *Store) AddSupersession(trigger, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedes[trigger] = target
}

// OnStored registers a listener for successfully stored memories.
func (s *Store) OnStored(fn StoredListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Store validates and persists a candidate memory for an agent.
//
// Rejection is a normal outcome: the result carries Rejected=true and the
// validator's issue list, and the candidate is discarded. An error is
// returned only for programmer misuse.
func (s *Store) Store(ctx context.Context, agentID string, cand Candidate) (*StoreResult, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}

	verdict := s.validator.ValidateMemory(cand.FullForm, agentID)
	if !verdict.Valid {
		return &StoreResult{Rejected: true, Issues: verdict.Issues}, nil
	}

	mem := s.buildMemory(agentID, cand, verdict.Sanitized)

	col := s.agentCollection(agentID)
	col.mu.Lock()
	s.loadLocked(ctx, agentID, col)

	// Slot replacement: a new slot value supersedes the previous holder.
	var superseded []*Memory
	if mem.SlotType != "" {
		for _, m := range col.memories {
			if !m.Superseded && m.SlotType == mem.SlotType {
				m.Superseded = true
				superseded = append(superseded, m)
			}
		}
	}

	// Supersession trigger: e.g. promise_broken retires promise_made.
	s.mu.Lock()
	target := s.supersedes[mem.EventType]
	s.mu.Unlock()
	if target != "" {
		for _, m := range col.memories {
			if !m.Superseded && m.EventType == target {
				m.Superseded = true
				superseded = append(superseded, m)
			}
		}
	}

	col.memories = append(col.memories, mem)
	col.mu.Unlock()

	// Persistence and vector writes are best-effort: a dead backend
	// degrades the turn, it never fails it.
	if s.records != nil {
		if err := s.records.Insert(ctx, toRecord(mem)); err != nil {
			s.logger.Warn("record insert failed", zap.Int64("memory_id", mem.ID), zap.Error(err))
		}
		for _, m := range superseded {
			if err := s.records.MarkSuperseded(ctx, agentID, m.ID); err != nil {
				s.logger.Warn("record supersede failed", zap.Int64("memory_id", m.ID), zap.Error(err))
			}
		}
	}
	s.upsertVector(ctx, mem)

	s.mu.Lock()
	listeners := append([]StoredListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(agentID, mem)
	}

	return &StoreResult{Memory: mem, Issues: verdict.Issues}, nil
}

// Select retrieves a budget-bounded, ordered memory context for an agent.
//
// The candidate set is the union of protected slot memories (always first,
// unscored), high-signal recent memories (direct fetch), and the top-K
// semantically similar memories from the vector collaborator. Candidates
// are scored, sorted and greedily packed until the character budget is
// exhausted. If the vector collaborator is unavailable, selection degrades
// to protected plus high-signal items.
func (s *Store) Select(ctx context.Context, agentID, query string, budget int) ([]Selection, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}

	col := s.agentCollection(agentID)
	col.mu.Lock()
	defer col.mu.Unlock()
	s.loadLocked(ctx, agentID, col)

	similarity := s.querySimilarity(ctx, agentID, query)

	now := time.Now()
	remaining := budget
	var out []Selection
	taken := make(map[int64]bool)

	// Protected slot items first: unscored, but they consume budget.
	for _, m := range col.memories {
		if m.Superseded || m.SlotType == "" {
			continue
		}
		if len(m.ShortForm) > remaining {
			continue
		}
		out = append(out, Selection{Memory: m, Text: m.ShortForm, Protected: true})
		remaining -= len(m.ShortForm)
		taken[m.ID] = true
	}

	// Candidate union: high-signal recents plus semantic hits.
	var candidates []Selection
	for _, m := range col.memories {
		if taken[m.ID] {
			continue
		}
		sim, semantic := similarity[m.ID]
		highSignal := highSignalTypes[m.EventType] && now.Sub(m.Timestamp) <= s.cfg.RecencyWindow
		if !semantic && !highSignal {
			continue
		}

		text := m.ShortForm
		if sim >= s.cfg.HighRelevanceThreshold {
			text = m.FullForm
		}
		candidates = append(candidates, Selection{
			Memory: m,
			Text:   text,
			Score:  s.cfg.score(m, sim, now),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	for _, c := range candidates {
		if len(c.Text) > remaining {
			continue
		}
		out = append(out, c)
		remaining -= len(c.Text)
	}

	return out, nil
}

// SearchFilter narrows a semantic search by stored metadata.
type SearchFilter struct {
	// MinImportance drops results below this importance (0 disables).
	MinImportance int

	// Tier restricts results to one tier ("" disables).
	Tier Tier
}

// Hit is one semantic search result.
type Hit struct {
	Memory     *Memory
	Similarity float64
}

// Search runs a semantic query against an agent's collection with optional
// metadata filtering, for the debug surface. Unlike Select there is no
// scoring or budget: results come back in the collaborator's similarity
// order. Requires a vector collaborator.
func (s *Store) Search(ctx context.Context, agentID, query string, limit int, filter SearchFilter) ([]Hit, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	if s.vectors == nil {
		return nil, errors.New("memory: no vector collaborator configured")
	}
	if limit <= 0 {
		limit = s.cfg.TopK
	}

	var clauses []map[string]interface{}
	if filter.MinImportance > 0 {
		clauses = append(clauses, map[string]interface{}{
			"importance": map[string]interface{}{"$gte": filter.MinImportance},
		})
	}
	if filter.Tier != "" {
		clauses = append(clauses, map[string]interface{}{"tier": string(filter.Tier)})
	}
	var where map[string]interface{}
	switch len(clauses) {
	case 0:
	case 1:
		where = clauses[0]
	default:
		where = map[string]interface{}{"$and": clauses}
	}

	if err := s.ensureCollection(ctx, agentID); err != nil {
		return nil, err
	}
	results, err := s.vectors.Query(ctx, collectionName(agentID), query, limit, where)
	if err != nil {
		return nil, err
	}

	col := s.agentCollection(agentID)
	col.mu.Lock()
	defer col.mu.Unlock()
	s.loadLocked(ctx, agentID, col)
	byID := make(map[int64]*Memory, len(col.memories))
	for _, m := range col.memories {
		byID[m.ID] = m
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		if m, ok := byID[id]; ok {
			hits = append(hits, Hit{Memory: m, Similarity: r.Similarity})
		}
	}
	return hits, nil
}

// CurrentSlot returns the live memory holding a slot value, if any.
func (s *Store) CurrentSlot(agentID, slotType string) (*Memory, bool) {
	col := s.agentCollection(agentID)
	col.mu.Lock()
	defer col.mu.Unlock()
	s.loadLocked(context.Background(), agentID, col)
	for _, m := range col.memories {
		if !m.Superseded && m.SlotType == slotType {
			return m, true
		}
	}
	return nil, false
}

// Memories returns a copy of an agent's full collection in store order,
// superseded memories included (history is retained for audit).
func (s *Store) Memories(agentID string) []*Memory {
	col := s.agentCollection(agentID)
	col.mu.Lock()
	defer col.mu.Unlock()
	s.loadLocked(context.Background(), agentID, col)
	out := make([]*Memory, len(col.memories))
	copy(out, col.memories)
	return out
}

// AgentIDs lists every agent with a collection, sorted.
func (s *Store) AgentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.collections))
	for id := range s.collections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes an agent's collection for the debug surface.
func (s *Store) Stats(agentID string) Stats {
	col := s.agentCollection(agentID)
	col.mu.Lock()
	defer col.mu.Unlock()
	s.loadLocked(context.Background(), agentID, col)

	stats := Stats{
		ByTier: make(map[Tier]int),
		ByType: make(map[string]int),
	}
	for _, m := range col.memories {
		stats.Total++
		if m.Superseded {
			stats.Superseded++
		}
		stats.ByTier[m.TierOf()]++
		stats.ByType[m.EventType]++
	}
	return stats
}

// Purge removes an agent's collection everywhere: memory, record store and
// vector collaborator. This is the only hard-delete path.
func (s *Store) Purge(ctx context.Context, agentID string) error {
	col := s.agentCollection(agentID)
	col.mu.Lock()
	col.memories = nil
	col.loaded = true
	col.mu.Unlock()

	if s.records != nil {
		if err := s.records.DeleteAgent(ctx, agentID); err != nil {
			return fmt.Errorf("memory: purge %s: %w", agentID, err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteCollection(ctx, collectionName(agentID)); err != nil {
			s.logger.Warn("vector purge failed", zap.String("agent_id", agentID), zap.Error(err))
		}
		s.mu.Lock()
		delete(s.created, agentID)
		s.mu.Unlock()
	}
	return nil
}

// buildMemory normalizes a validated candidate into a memory record.
func (s *Store) buildMemory(agentID string, cand Candidate, sanitized string) *Memory {
	eventType := cand.EventType
	if eventType == "" {
		eventType = EventConversation
	}
	importance := cand.Importance
	if importance < 1 {
		importance = 1
	} else if importance > 10 {
		importance = 10
	}

	short := cand.ShortForm
	if short == "" {
		short = sanitized
	}
	// Truncate on a rune boundary so multibyte text stays valid UTF-8.
	if r := []rune(short); len(r) > ShortFormMaxLen {
		short = string(r[:ShortFormMaxLen])
	}

	return &Memory{
		ID:         s.node.Generate().Int64(),
		AgentID:    agentID,
		ShortForm:  short,
		FullForm:   sanitized,
		EventType:  eventType,
		Importance: importance,
		Emotion:    cand.Emotion,
		Tags:       append([]string(nil), cand.Tags...),
		Timestamp:  time.Now(),
		SlotType:   cand.SlotType,
	}
}

// agentCollection returns (creating if needed) an agent's collection.
func (s *Store) agentCollection(agentID string) *collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[agentID]
	if !ok {
		col = &collection{}
		s.collections[agentID] = col
	}
	return col
}

// loadLocked lazily hydrates a collection from the record store. Callers
// hold col.mu. A failed load logs and leaves the collection empty; it will
// not be retried.
func (s *Store) loadLocked(ctx context.Context, agentID string, col *collection) {
	if col.loaded {
		return
	}
	col.loaded = true
	if s.records == nil {
		return
	}
	records, err := s.records.LoadAgent(ctx, agentID)
	if err != nil {
		s.logger.Warn("record load failed", zap.String("agent_id", agentID), zap.Error(err))
		return
	}
	for _, rec := range records {
		col.memories = append(col.memories, fromRecord(rec))
	}
}

// upsertVector writes a memory's full form to the vector collaborator. On
// failure the document is buffered for one best-effort retry on the next
// successful vector contact (at-most-once per id).
func (s *Store) upsertVector(ctx context.Context, m *Memory) {
	if s.vectors == nil {
		return
	}
	doc := pendingDoc{
		collection: collectionName(m.AgentID),
		id:         strconv.FormatInt(m.ID, 10),
		document:   m.FullForm,
		metadata: map[string]interface{}{
			"agent_id":   m.AgentID,
			"event_type": m.EventType,
			"importance": m.Importance,
			"tier":       string(m.TierOf()),
		},
	}

	if err := s.ensureCollection(ctx, m.AgentID); err != nil {
		s.bufferDoc(m.ID, doc, err)
		return
	}
	if err := s.vectors.Upsert(ctx, doc.collection, doc.id, doc.document, doc.metadata); err != nil {
		s.bufferDoc(m.ID, doc, err)
		return
	}
	s.flushPending(ctx)
}

// querySimilarity runs the semantic query and returns similarity per memory
// id. Any failure degrades to an empty map; the turn continues without
// semantic candidates.
func (s *Store) querySimilarity(ctx context.Context, agentID, query string) map[int64]float64 {
	out := make(map[int64]float64)
	if s.vectors == nil || query == "" {
		return out
	}
	if err := s.ensureCollection(ctx, agentID); err != nil {
		s.logger.Warn("vector degrade", zap.String("agent_id", agentID), zap.Error(err))
		return out
	}

	results, err := s.vectors.Query(ctx, collectionName(agentID), query, s.cfg.TopK, nil)
	if err != nil {
		s.logger.Warn("vector degrade", zap.String("agent_id", agentID), zap.Error(err))
		return out
	}
	s.flushPending(ctx)

	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		out[id] = r.Similarity
	}
	return out
}

// ensureCollection creates the agent's vector collection once.
func (s *Store) ensureCollection(ctx context.Context, agentID string) error {
	s.mu.Lock()
	done := s.created[agentID]
	s.mu.Unlock()
	if done {
		return nil
	}
	if err := s.vectors.CreateCollection(ctx, collectionName(agentID)); err != nil {
		return err
	}
	s.mu.Lock()
	s.created[agentID] = true
	s.mu.Unlock()
	return nil
}

// bufferDoc queues a failed upsert for one later retry.
func (s *Store) bufferDoc(id int64, doc pendingDoc, err error) {
	s.logger.Warn("vector upsert buffered", zap.Int64("memory_id", id), zap.Error(err))
	s.mu.Lock()
	s.pending[id] = doc
	s.mu.Unlock()
}

// flushPending retries buffered upserts after a successful vector contact.
// Each document is attempted at most once ever; failures are dropped, not
// re-buffered (the record store remains the durable copy).
func (s *Store) flushPending(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.pending
	s.pending = make(map[int64]pendingDoc)
	s.mu.Unlock()

	for id, doc := range pending {
		if err := s.vectors.Upsert(ctx, doc.collection, doc.id, doc.document, doc.metadata); err != nil {
			s.logger.Warn("vector retry dropped", zap.Int64("memory_id", id), zap.Error(err))
		}
	}
}

// collectionName maps an agent to its vector collection.
func collectionName(agentID string) string {
	return "agent_" + agentID
}
