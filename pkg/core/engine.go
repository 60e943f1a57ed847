package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-go/pkg/bus"
	"github.com/lorekeep/lorekeep-go/pkg/genai"
	"github.com/lorekeep/lorekeep-go/pkg/genai/openai"
	"github.com/lorekeep/lorekeep-go/pkg/intent"
	"github.com/lorekeep/lorekeep-go/pkg/knowledge"
	"github.com/lorekeep/lorekeep-go/pkg/memory"
	"github.com/lorekeep/lorekeep-go/pkg/quest"
	"github.com/lorekeep/lorekeep-go/pkg/relationship"
	"github.com/lorekeep/lorekeep-go/pkg/storage"
	postgresStore "github.com/lorekeep/lorekeep-go/pkg/storage/postgres"
	sqliteStore "github.com/lorekeep/lorekeep-go/pkg/storage/sqlite"
	"github.com/lorekeep/lorekeep-go/pkg/validate"
	"github.com/lorekeep/lorekeep-go/pkg/vector"
	"github.com/lorekeep/lorekeep-go/pkg/vector/chroma"
	"github.com/lorekeep/lorekeep-go/pkg/worldstate"
)

// PlayerID is the counterpart id used for every agent's relationship with
// the player.
const PlayerID = "player"

// TurnResult is everything one processed turn produced.
type TurnResult struct {
	// Response is the sanitized text to show the player.
	Response string

	// Payload is the normalized generation payload.
	Payload *genai.Payload

	// Signals is the intent bundle extracted from the payload.
	Signals *intent.Bundle

	// Relationship is the agent's relationship with the player after
	// deltas were applied.
	Relationship relationship.State

	// Memory is the outcome of persisting the turn's memory, including
	// rejection and validator issues.
	Memory *memory.StoreResult

	// MemoryContext is the budgeted memory text that fed generation.
	MemoryContext string

	// Hints are the active-quest hints that fed generation.
	Hints []string

	// Issues lists payload normalization coercions, for telemetry.
	Issues []string
}

// Engine wires every Lorekeep service together and drives the per-turn
// pipeline: select context, generate, sanitize, detect intents, evaluate
// quests, apply relationship deltas, store the memory, fan out events.
//
// Services are constructed once and passed down explicitly; there is no
// ambient global state. Two turns for different agents may run
// concurrently; turns for one agent are serialized.
type Engine struct {
	cfg    *Config
	logger *zap.Logger

	events    *bus.Bus
	kb        *knowledge.Base
	world     *worldstate.Log
	rels      *relationship.Tracker
	validator *validate.Validator
	memories  *memory.Store
	quests    *quest.Engine
	generator genai.Provider
	vectors   vector.Store
	records   storage.RecordStore
	node      *snowflake.Node

	mu       sync.Mutex
	turnMu   map[string]*sync.Mutex
	personas map[string]string
}

// trustSource adapts the relationship tracker to the quest engine's view:
// the trust dimension of each agent's relationship with the player.
type trustSource struct {
	rels *relationship.Tracker
}

func (t trustSource) Trust(agentID string) int {
	return t.rels.Get(agentID, PlayerID).Trust
}

// NewEngine creates a fully wired engine from configuration.
//
// The world and quest definition files are loaded and validated here;
// collaborator clients are constructed per the configured providers. A nil
// logger disables logging.
func NewEngine(cfg *Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, NewEngineError("NewEngine", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewEngineError("NewEngine", err)
	}

	kb := knowledge.NewBase()
	if cfg.WorldFile != "" {
		kb, err = knowledge.LoadWorldFile(cfg.WorldFile)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
	}

	var quests []*quest.Quest
	if cfg.QuestFile != "" {
		quests, err = quest.LoadFile(cfg.QuestFile)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
	}

	vectors, err := initVector(cfg.Vector)
	if err != nil {
		return nil, err
	}
	records, err := initRecordStore(cfg.Records)
	if err != nil {
		return nil, err
	}
	generator, err := initGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	scoring := memory.DefaultScoringConfig()
	if cfg.Scoring != nil {
		scoring = *cfg.Scoring
	}
	if cfg.SelectionBudget == 0 {
		cfg.SelectionBudget = DefaultSelectionBudget
	}

	events := bus.New(logger)
	world := worldstate.NewLog(node, logger)
	rels := relationship.NewTracker()
	validator := validate.New(kb, world, logger)
	memories := memory.NewStore(scoring, validator, vectors, records, node, logger)
	questEngine := quest.NewEngine(quests, world, trustSource{rels}, events, logger)

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		events:    events,
		kb:        kb,
		world:     world,
		rels:      rels,
		validator: validator,
		memories:  memories,
		quests:    questEngine,
		generator: generator,
		vectors:   vectors,
		records:   records,
		node:      node,
		turnMu:    make(map[string]*sync.Mutex),
		personas:  make(map[string]string),
	}

	world.OnFlagChanged(func(name string, value bool) {
		questEngine.HandleFlagChanged(name, value)
		events.Publish(bus.Event{
			Signal: bus.SignalWorldFlagChanged,
			Fields: map[string]interface{}{"name": name, "value": value},
		})
	})
	memories.OnStored(func(agentID string, m *memory.Memory) {
		questEngine.HandleMemoryStored(agentID, m.Tags)
		events.Publish(bus.Event{
			Signal:  bus.SignalMemoryStored,
			AgentID: agentID,
			Fields:  map[string]interface{}{"memory_id": m.ID, "event_type": m.EventType},
		})
	})

	return e, nil
}

// Bus exposes the event bus for external subscribers (UI, world shell).
func (e *Engine) Bus() *bus.Bus { return e.events }

// Knowledge exposes the canonical knowledge base.
func (e *Engine) Knowledge() *knowledge.Base { return e.kb }

// World exposes the event log and world state.
func (e *Engine) World() *worldstate.Log { return e.world }

// Memories exposes the memory store (debug surface, direct stores).
func (e *Engine) Memories() *memory.Store { return e.memories }

// Quests exposes the quest engine (debug surface).
func (e *Engine) Quests() *quest.Engine { return e.quests }

// Validator exposes the consistency validator (deny-list management).
func (e *Engine) Validator() *validate.Validator { return e.validator }

// SetPersona registers an agent's character sheet text used in generation.
func (e *Engine) SetPersona(agentID, persona string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.personas[agentID] = persona
}

// ProcessTurn runs the full pipeline for one player utterance to one
// agent: memory selection, generation, payload processing.
func (e *Engine) ProcessTurn(ctx context.Context, agentID, playerInput string) (*TurnResult, error) {
	if agentID == "" {
		return nil, NewEngineError("ProcessTurn", ErrInvalidInput)
	}
	if e.generator == nil {
		return nil, NewEngineError("ProcessTurn", ErrNoGenerator)
	}

	unlock := e.lockAgent(agentID)
	defer unlock()

	memoryContext, hints := e.assembleContext(ctx, agentID, playerInput)

	e.mu.Lock()
	persona := e.personas[agentID]
	e.mu.Unlock()

	payload, err := e.generator.GeneratePayload(ctx, &genai.Request{
		AgentID:       agentID,
		PlayerInput:   playerInput,
		MemoryContext: memoryContext,
		QuestHints:    hints,
		Persona:       persona,
	})
	if err != nil {
		return nil, NewEngineError("ProcessTurn", fmt.Errorf("%w: %v", ErrGenerationFailed, err))
	}

	result := e.processPayload(ctx, agentID, playerInput, payload)
	result.MemoryContext = memoryContext
	result.Hints = hints
	return result, nil
}

// ProcessPayload runs the post-generation pipeline on a pre-built payload.
// This is the entry point when generation happens outside the engine.
func (e *Engine) ProcessPayload(ctx context.Context, agentID, playerInput string, payload *genai.Payload) (*TurnResult, error) {
	if agentID == "" || payload == nil {
		return nil, NewEngineError("ProcessPayload", ErrInvalidInput)
	}
	unlock := e.lockAgent(agentID)
	defer unlock()
	return e.processPayload(ctx, agentID, playerInput, payload), nil
}

// processPayload is the shared tail of the pipeline: normalize, sanitize,
// detect, evaluate quests, apply relationship deltas, store the memory,
// publish. Caller holds the agent turn lock.
func (e *Engine) processPayload(ctx context.Context, agentID, playerInput string, payload *genai.Payload) *TurnResult {
	issues := payload.Normalize()
	for _, issue := range issues {
		e.logger.Debug("payload coerced", zap.String("agent_id", agentID), zap.String("issue", issue))
	}

	sanitized := e.validator.SanitizeOutgoing(payload.Response, agentID)
	bundle := intent.Analyze(agentID, payload)

	e.quests.EvaluateSignals(bundle)

	state := e.rels.Get(agentID, PlayerID)
	if delta := payload.Delta(); !delta.IsZero() {
		state = e.rels.Apply(agentID, PlayerID, delta)
		e.events.Publish(bus.Event{
			Signal:  bus.SignalRelationshipChanged,
			AgentID: agentID,
			Fields: map[string]interface{}{
				"counterpart": PlayerID,
				"trust":       state.Trust,
				"respect":     state.Respect,
				"affection":   state.Affection,
				"fear":        state.Fear,
				"familiarity": state.Familiarity,
			},
		})
		e.quests.HandleRelationshipChanged(agentID)
	}

	stored, err := e.memories.Store(ctx, agentID, turnCandidate(agentID, playerInput, payload, bundle))
	if err != nil {
		// Only programmer misuse reaches here; agentID was checked.
		e.logger.Error("memory store failed", zap.String("agent_id", agentID), zap.Error(err))
		stored = &memory.StoreResult{Rejected: true, Issues: []string{err.Error()}}
	}

	e.events.Publish(bus.Event{
		Signal:  bus.SignalResponseGenerated,
		AgentID: agentID,
		Fields:  map[string]interface{}{"response": sanitized},
	})

	return &TurnResult{
		Response:     sanitized,
		Payload:      payload,
		Signals:      bundle,
		Relationship: state,
		Memory:       stored,
		Issues:       issues,
	}
}

// assembleContext selects the budgeted memory context and quest hints for
// one turn.
func (e *Engine) assembleContext(ctx context.Context, agentID, query string) (string, []string) {
	selections, err := e.memories.Select(ctx, agentID, query, e.cfg.SelectionBudget)
	if err != nil {
		e.logger.Warn("memory select failed", zap.String("agent_id", agentID), zap.Error(err))
	}
	texts := make([]string, 0, len(selections))
	for _, s := range selections {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, "\n"), e.quests.Hints(agentID)
}

// EnterArea records the player entering a location and evaluates location
// objectives.
func (e *Engine) EnterArea(locationID string) {
	e.quests.HandlePlayerEnteredArea(locationID)
	e.events.Publish(bus.Event{
		Signal: bus.SignalPlayerEnteredArea,
		Fields: map[string]interface{}{"location_id": locationID},
	})
}

// SetRelationship sets one relationship dimension directly (debug
// surface). The change is side-effect-logged and re-evaluates quests, same
// as an organic change.
func (e *Engine) SetRelationship(agentID, dimension string, value int) (relationship.State, error) {
	state, ok := e.rels.Set(agentID, PlayerID, dimension, value)
	if !ok {
		return state, NewEngineError("SetRelationship", ErrInvalidInput)
	}
	e.logger.Info("relationship set",
		zap.String("agent_id", agentID),
		zap.String("dimension", dimension),
		zap.Int("value", value),
	)
	e.events.Publish(bus.Event{
		Signal:  bus.SignalRelationshipChanged,
		AgentID: agentID,
		Fields:  map[string]interface{}{"counterpart": PlayerID, "dimension": dimension, "value": value},
	})
	e.quests.HandleRelationshipChanged(agentID)
	return state, nil
}

// Relationship returns an agent's relationship with the player.
func (e *Engine) Relationship(agentID string) relationship.State {
	return e.rels.Get(agentID, PlayerID)
}

// SaveState is the persisted snapshot produced for the save system. Memory
// collections are referenced by opaque id, not embedded.
type SaveState struct {
	Agents      map[string]AgentSave   `json:"agents"`
	WorldFlags  map[string]bool        `json:"world_flags"`
	Quests      quest.SaveState        `json:"quests"`
	PlayerFacts worldstate.PlayerFacts `json:"player_facts"`
}

// AgentSave is one agent's saved slice: a reference to its memory
// collection and its relationship dimensions.
type AgentSave struct {
	MemoryCollection string                        `json:"memory_collection"`
	Relationships    map[string]relationship.State `json:"relationships"`
}

// Save produces the persisted state snapshot.
func (e *Engine) Save() SaveState {
	save := SaveState{
		Agents:      make(map[string]AgentSave),
		WorldFlags:  e.world.Flags(),
		Quests:      e.quests.Save(),
		PlayerFacts: e.world.PlayerFactsSnapshot(),
	}
	for _, agentID := range e.memories.AgentIDs() {
		save.Agents[agentID] = AgentSave{
			MemoryCollection: "agent_" + agentID,
			Relationships:    e.rels.Snapshot(agentID),
		}
	}
	return save
}

// Close releases every collaborator client.
func (e *Engine) Close() error {
	var errs []error
	if e.generator != nil {
		errs = append(errs, e.generator.Close())
	}
	if e.vectors != nil {
		errs = append(errs, e.vectors.Close())
	}
	if e.records != nil {
		errs = append(errs, e.records.Close())
	}
	return NewEngineError("Close", errors.Join(errs...))
}

// lockAgent serializes turns per agent.
func (e *Engine) lockAgent(agentID string) func() {
	e.mu.Lock()
	mu, ok := e.turnMu[agentID]
	if !ok {
		mu = &sync.Mutex{}
		e.turnMu[agentID] = mu
	}
	e.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// turnCandidate builds the memory candidate persisted for one exchange.
func turnCandidate(agentID, playerInput string, p *genai.Payload, b *intent.Bundle) memory.Candidate {
	full := p.Response
	if playerInput != "" {
		full = fmt.Sprintf("Player said: %s. %s replied: %s", playerInput, agentID, p.Response)
	}
	return memory.Candidate{
		FullForm:   full,
		EventType:  eventTypeFor(p.InteractionType),
		Importance: importanceFor(p.InteractionType),
		Emotion:    p.EmotionalImpact,
		Tags:       b.Topics,
	}
}

// eventTypeFor maps interaction types onto memory event types.
func eventTypeFor(it genai.InteractionType) string {
	switch it {
	case genai.InteractionBetrayal:
		return memory.EventBetrayal
	case genai.InteractionPromiseMade:
		return memory.EventPromiseMade
	case genai.InteractionPromiseBroken:
		return memory.EventPromiseBroken
	case genai.InteractionGiftGiven:
		return memory.EventGiftReceived
	default:
		return memory.EventConversation
	}
}

// importanceFor is the heuristic importance of an exchange by type.
func importanceFor(it genai.InteractionType) int {
	switch it {
	case genai.InteractionSecretRevealed, genai.InteractionConfession,
		genai.InteractionBetrayal, genai.InteractionThreat,
		genai.InteractionAccusation:
		return 8
	case genai.InteractionPromiseMade, genai.InteractionPromiseBroken,
		genai.InteractionQuestHint, genai.InteractionTaskOffered,
		genai.InteractionPleaForHelp:
		return 7
	case genai.InteractionGiftGiven, genai.InteractionFlirtation,
		genai.InteractionRumorShared:
		return 5
	default:
		return 3
	}
}

// initVector initializes the vector collaborator.
func initVector(cfg VectorConfig) (vector.Store, error) {
	switch cfg.Provider {
	case "chroma":
		return chroma.NewClient(&chroma.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.timeout(),
		})
	case "none", "":
		return nil, nil
	default:
		return nil, NewEngineError("initVector", ErrInvalidConfig)
	}
}

// initRecordStore initializes the durable record store.
func initRecordStore(cfg RecordStoreConfig) (storage.RecordStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    cfgString(cfg.Config, "db_path", "./lorekeep.db"),
			TableName: cfgString(cfg.Config, "table_name", "memories"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:      cfgString(cfg.Config, "host", "localhost"),
			Port:      cfgInt(cfg.Config, "port", 5432),
			User:      cfgString(cfg.Config, "user", "postgres"),
			Password:  cfgString(cfg.Config, "password", ""),
			DBName:    cfgString(cfg.Config, "db_name", "lorekeep"),
			SSLMode:   cfgString(cfg.Config, "ssl_mode", "disable"),
			TableName: cfgString(cfg.Config, "table_name", "memories"),
		})
	case "none", "":
		return nil, nil
	default:
		return nil, NewEngineError("initRecordStore", ErrInvalidConfig)
	}
}

// initGenerator initializes the text-generation provider.
func initGenerator(cfg GeneratorConfig) (genai.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(&openai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.timeout(),
		})
	case "none", "":
		return nil, nil
	default:
		return nil, NewEngineError("initGenerator", ErrInvalidConfig)
	}
}

// cfgString reads a string out of a provider config map.
func cfgString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// cfgInt reads an int out of a provider config map. JSON decoding yields
// float64, so both are accepted.
func cfgInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
