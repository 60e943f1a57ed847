package quest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-go/pkg/bus"
	"github.com/lorekeep/lorekeep-go/pkg/intent"
)

// ErrUnknownQuest reports an operation against a quest id that was never
// loaded.
var ErrUnknownQuest = errors.New("quest: unknown quest id")

// ErrUnknownObjective reports an operation against an objective id absent
// from its quest.
var ErrUnknownObjective = errors.New("quest: unknown objective id")

// FlagSource reads and writes world flags. Satisfied by worldstate.Log.
type FlagSource interface {
	Flag(name string) bool
	SetFlag(name string, value bool)
}

// TrustSource reads the trust dimension of an agent's relationship with
// the player, for relationship-threshold objectives.
type TrustSource interface {
	Trust(agentID string) int
}

// Engine owns every quest's lifecycle. All mutation goes through the
// engine; quests start UNAVAILABLE and move forward only.
//
// Evaluation is atomic per incoming event or signal bundle: every matching
// objective across all active quests is applied under one lock hold. Bus
// publishes and flag writes are deferred until the lock is released, so
// handlers may call back into the engine.
type Engine struct {
	mu     sync.Mutex
	quests map[string]*Quest
	order  []string
	flags  FlagSource
	trust  TrustSource
	bus    *bus.Bus
	logger *zap.Logger
}

// deferred collects side effects produced under the engine lock.
type deferred struct {
	flagSets map[string]bool
	events   []bus.Event
}

func (d *deferred) setFlag(name string) {
	if d.flagSets == nil {
		d.flagSets = make(map[string]bool)
	}
	d.flagSets[name] = true
}

func (d *deferred) publish(ev bus.Event) {
	d.events = append(d.events, ev)
}

// NewEngine creates a quest engine over static definitions. Every quest
// starts UNAVAILABLE; an initial availability scan runs immediately, so
// quests with an empty predicate come up AVAILABLE. A nil bus disables
// event fan-out; a nil logger disables logging.
func NewEngine(quests []*Quest, flags FlagSource, trust TrustSource, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		quests: make(map[string]*Quest, len(quests)),
		flags:  flags,
		trust:  trust,
		bus:    b,
		logger: logger,
	}
	for _, q := range quests {
		q.State = StateUnavailable
		e.quests[q.ID] = q
		e.order = append(e.order, q.ID)
	}

	var d deferred
	e.mu.Lock()
	e.scanAvailability(nil, &d)
	e.mu.Unlock()
	e.apply(&d)
	return e
}

// HandleFlagChanged re-evaluates failure triggers, flag objectives and
// availability after a world flag change.
func (e *Engine) HandleFlagChanged(name string, value bool) {
	var d deferred
	e.mu.Lock()
	if value {
		for _, id := range e.order {
			q := e.quests[id]
			if q.State == StateActive && q.FailureFlag == name {
				e.failQuest(q, "flag:"+name, &d)
			}
		}
		for _, id := range e.order {
			q := e.quests[id]
			if q.State != StateActive {
				continue
			}
			for _, o := range q.Objectives {
				if !o.Completed && o.CompleteOnFlag == name {
					e.completeObjective(q, o, "flag:"+name, &d)
				}
			}
		}
	}
	e.scanAvailability(nil, &d)
	e.mu.Unlock()
	e.apply(&d)
}

// HandleRelationshipChanged re-evaluates relationship-threshold objectives
// and availability after an agent's relationship with the player changed.
func (e *Engine) HandleRelationshipChanged(agentID string) {
	var d deferred
	e.mu.Lock()
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateActive {
			continue
		}
		for _, o := range q.Objectives {
			if o.Completed {
				continue
			}
			threshold, ok := o.CompleteOnRelationship[agentID]
			if ok && e.trust != nil && e.trust.Trust(agentID) >= threshold {
				e.completeObjective(q, o, "relationship:"+agentID, &d)
			}
		}
	}
	e.scanAvailability(nil, &d)
	e.mu.Unlock()
	e.apply(&d)
}

// EvaluateSignals runs discovery and intent/topic objective evaluation
// against one signal bundle. All matches from the bundle are applied
// atomically.
func (e *Engine) EvaluateSignals(b *intent.Bundle) {
	if b == nil {
		return
	}
	var d deferred
	e.mu.Lock()
	for _, id := range e.order {
		q := e.quests[id]
		if q.State == StateAvailable && e.discoveryMatches(q, b) {
			q.State = StateActive
			e.logger.Info("quest discovered",
				zap.String("quest_id", q.ID),
				zap.String("agent_id", b.AgentID),
			)
			d.publish(bus.Event{
				Signal:  bus.SignalQuestDiscovered,
				AgentID: b.AgentID,
				Fields:  map[string]interface{}{"quest_id": q.ID},
			})
			e.catchUpFlagObjectives(q, &d)
		}
	}
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateActive {
			continue
		}
		for _, o := range q.Objectives {
			if o.Completed {
				continue
			}
			if o.RequiresAgent != "" && o.RequiresAgent != b.AgentID {
				continue
			}
			if o.CompleteOnIntent != "" && b.HasIntent(o.CompleteOnIntent) {
				e.completeObjective(q, o, "intent:"+o.CompleteOnIntent, &d)
				continue
			}
			if topic, ok := firstTopicMatch(o.CompleteOnTopics, b); ok {
				e.completeObjective(q, o, "topic:"+topic, &d)
			}
		}
	}
	e.mu.Unlock()
	e.apply(&d)
}

// HandleMemoryStored evaluates memory-tag objectives after a memory was
// stored for an agent.
func (e *Engine) HandleMemoryStored(agentID string, tags []string) {
	if len(tags) == 0 {
		return
	}
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}

	var d deferred
	e.mu.Lock()
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateActive {
			continue
		}
		for _, o := range q.Objectives {
			if o.Completed || o.CompleteOnMemoryTag == "" {
				continue
			}
			if o.RequiresAgent != "" && o.RequiresAgent != agentID {
				continue
			}
			if tagSet[o.CompleteOnMemoryTag] {
				e.completeObjective(q, o, "memory:"+o.CompleteOnMemoryTag, &d)
			}
		}
	}
	e.mu.Unlock()
	e.apply(&d)
}

// HandlePlayerEnteredArea evaluates location objectives.
func (e *Engine) HandlePlayerEnteredArea(locationID string) {
	var d deferred
	e.mu.Lock()
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateActive {
			continue
		}
		for _, o := range q.Objectives {
			if !o.Completed && o.CompleteOnLocation == locationID {
				e.completeObjective(q, o, "location:"+locationID, &d)
			}
		}
	}
	e.mu.Unlock()
	e.apply(&d)
}

// Hints returns the narrative hints every ACTIVE quest contributes for one
// agent, highest priority first.
func (e *Engine) Hints(agentID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	type hinted struct {
		priority int
		text     string
	}
	var hs []hinted
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateActive {
			continue
		}
		if text, ok := q.Hints[agentID]; ok && text != "" {
			hs = append(hs, hinted{q.Priority, text})
		}
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].priority > hs[j].priority })

	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.text
	}
	return out
}

// Get returns a deep copy of one quest's current state.
func (e *Engine) Get(id string) (Quest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quests[id]
	if !ok {
		return Quest{}, false
	}
	return copyQuest(q), true
}

// Quests returns deep copies of every quest in definition order.
func (e *Engine) Quests() []Quest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Quest, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, copyQuest(e.quests[id]))
	}
	return out
}

// Save produces the persisted quest snapshot for the save system.
func (e *Engine) Save() SaveState {
	e.mu.Lock()
	defer e.mu.Unlock()

	save := SaveState{
		Available: []string{},
		Active:    make(map[string]map[string]string),
		Completed: make(map[string]string),
		Failed:    make(map[string]string),
	}
	for _, id := range e.order {
		q := e.quests[id]
		switch q.State {
		case StateAvailable:
			save.Available = append(save.Available, q.ID)
		case StateActive:
			done := make(map[string]string)
			for _, o := range q.Objectives {
				if o.Completed {
					done[o.ID] = o.CompletedBy
				}
			}
			save.Active[q.ID] = done
		case StateCompleted:
			save.Completed[q.ID] = "completed"
		case StateFailed:
			save.Failed[q.ID] = q.FailReason
		}
	}
	return save
}

// ForceStart moves a quest to ACTIVE regardless of availability or
// discovery conditions. Idempotent: an already ACTIVE quest is left alone.
func (e *Engine) ForceStart(id string) error {
	var d deferred
	e.mu.Lock()
	q, ok := e.quests[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuest, id)
	}
	if q.State != StateActive {
		e.logger.Info("quest force-started", zap.String("quest_id", id), zap.String("from", string(q.State)))
		q.State = StateActive
		d.publish(bus.Event{
			Signal: bus.SignalQuestDiscovered,
			Fields: map[string]interface{}{"quest_id": id, "forced": true},
		})
		e.catchUpFlagObjectives(q, &d)
	}
	e.mu.Unlock()
	e.apply(&d)
	return nil
}

// ForceComplete completes every outstanding required objective with debug
// provenance and finishes the quest. Idempotent for terminal quests.
func (e *Engine) ForceComplete(id string) error {
	var d deferred
	e.mu.Lock()
	q, ok := e.quests[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuest, id)
	}
	if q.State == StateCompleted || q.State == StateFailed {
		e.mu.Unlock()
		return nil
	}
	e.logger.Info("quest force-completed", zap.String("quest_id", id))
	q.State = StateActive
	for _, o := range q.Objectives {
		if !o.Optional && !o.Completed {
			e.completeObjective(q, o, "debug:forced", &d)
			if q.State != StateActive {
				break
			}
		}
	}
	if q.State == StateActive {
		e.completeQuest(q, &d)
	}
	e.mu.Unlock()
	e.apply(&d)
	return nil
}

// ForceCompleteObjective completes a single objective with debug
// provenance. Idempotent for already-completed objectives; ignored on
// COMPLETED and FAILED quests.
func (e *Engine) ForceCompleteObjective(questID, objectiveID string) error {
	var d deferred
	e.mu.Lock()
	q, ok := e.quests[questID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuest, questID)
	}
	o := q.objective(objectiveID)
	if o == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrUnknownObjective, questID, objectiveID)
	}
	if q.State == StateCompleted || q.State == StateFailed {
		// Terminal states only move through an explicit reset.
		e.mu.Unlock()
		e.logger.Warn("objective force-complete ignored on terminal quest",
			zap.String("quest_id", questID),
			zap.String("state", string(q.State)),
		)
		return nil
	}
	if !o.Completed {
		e.logger.Info("objective force-completed",
			zap.String("quest_id", questID),
			zap.String("objective_id", objectiveID),
		)
		if q.State != StateActive {
			q.State = StateActive
		}
		e.completeObjective(q, o, "debug:forced", &d)
	}
	e.mu.Unlock()
	e.apply(&d)
	return nil
}

// Fail explicitly fails an ACTIVE quest.
func (e *Engine) Fail(id, reason string) error {
	var d deferred
	e.mu.Lock()
	q, ok := e.quests[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuest, id)
	}
	if q.State == StateActive {
		e.failQuest(q, reason, &d)
	}
	e.mu.Unlock()
	e.apply(&d)
	return nil
}

// Reset returns a quest to UNAVAILABLE and clears all objective completion
// state, then re-runs the availability scan (the quest may come straight
// back up AVAILABLE).
func (e *Engine) Reset(id string) error {
	var d deferred
	e.mu.Lock()
	q, ok := e.quests[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQuest, id)
	}
	e.logger.Info("quest reset", zap.String("quest_id", id), zap.String("from", string(q.State)))
	q.State = StateUnavailable
	q.FailReason = ""
	for _, o := range q.Objectives {
		o.Completed = false
		o.CompletedBy = ""
	}
	e.scanAvailability(nil, &d)
	e.mu.Unlock()
	e.apply(&d)
	return nil
}

// scanAvailability promotes UNAVAILABLE quests whose predicate holds.
// justSet overlays flags written earlier in the same evaluation pass that
// have not reached the world state yet.
func (e *Engine) scanAvailability(justSet map[string]bool, d *deferred) {
	for _, id := range e.order {
		q := e.quests[id]
		if q.State != StateUnavailable {
			continue
		}
		if e.availabilityHolds(q, justSet) {
			q.State = StateAvailable
			e.logger.Info("quest available", zap.String("quest_id", q.ID))
			d.publish(bus.Event{
				Signal: bus.SignalQuestAvailable,
				Fields: map[string]interface{}{"quest_id": q.ID},
			})
		}
	}
}

func (e *Engine) availabilityHolds(q *Quest, justSet map[string]bool) bool {
	for _, f := range q.RequiredFlags {
		if !e.flagValue(f, justSet) {
			return false
		}
	}
	for _, f := range q.ForbiddenFlags {
		if e.flagValue(f, justSet) {
			return false
		}
	}
	return true
}

func (e *Engine) flagValue(name string, justSet map[string]bool) bool {
	if v, ok := justSet[name]; ok {
		return v
	}
	if e.flags == nil {
		return false
	}
	return e.flags.Flag(name)
}

// catchUpFlagObjectives completes flag objectives whose flag is already
// true when a quest enters ACTIVE. Flag conditions are state, not edge: a
// flag set before discovery still satisfies the objective. Caller holds
// e.mu.
func (e *Engine) catchUpFlagObjectives(q *Quest, d *deferred) {
	for _, o := range q.Objectives {
		if o.Completed || o.CompleteOnFlag == "" {
			continue
		}
		if e.flagValue(o.CompleteOnFlag, nil) {
			e.completeObjective(q, o, "flag:"+o.CompleteOnFlag, d)
		}
		if q.State != StateActive {
			return
		}
	}
}

func (e *Engine) discoveryMatches(q *Quest, b *intent.Bundle) bool {
	if q.DiscoveryAgent != "" && q.DiscoveryAgent != b.AgentID {
		return false
	}
	for _, it := range q.DiscoveryIntents {
		if b.HasIntent(it) {
			return true
		}
	}
	for _, t := range q.DiscoveryTopics {
		if b.HasTopic(t) {
			return true
		}
	}
	return false
}

// completeObjective marks one objective done and finishes the quest when
// it was the last required one. Caller holds e.mu.
func (e *Engine) completeObjective(q *Quest, o *Objective, provenance string, d *deferred) {
	o.Completed = true
	o.CompletedBy = provenance
	e.logger.Info("objective completed",
		zap.String("quest_id", q.ID),
		zap.String("objective_id", o.ID),
		zap.String("completed_by", provenance),
	)
	d.publish(bus.Event{
		Signal: bus.SignalQuestObjectiveCompleted,
		Fields: map[string]interface{}{
			"quest_id":     q.ID,
			"objective_id": o.ID,
			"completed_by": provenance,
		},
	})
	if q.requiredComplete() {
		e.completeQuest(q, d)
	}
}

// completeQuest finishes an ACTIVE quest: sets completion flags (deferred)
// and promotes unlocked quests whose predicate holds under the new flags.
// Caller holds e.mu.
func (e *Engine) completeQuest(q *Quest, d *deferred) {
	q.State = StateCompleted
	e.logger.Info("quest completed", zap.String("quest_id", q.ID))
	d.publish(bus.Event{
		Signal: bus.SignalQuestCompleted,
		Fields: map[string]interface{}{"quest_id": q.ID},
	})

	justSet := make(map[string]bool, len(q.CompletionFlags))
	for _, f := range q.CompletionFlags {
		justSet[f] = true
		d.setFlag(f)
	}
	for _, dep := range q.Unlocks {
		u, ok := e.quests[dep]
		if !ok || u.State != StateUnavailable {
			continue
		}
		if e.availabilityHolds(u, justSet) {
			u.State = StateAvailable
			e.logger.Info("quest unlocked", zap.String("quest_id", u.ID), zap.String("by", q.ID))
			d.publish(bus.Event{
				Signal: bus.SignalQuestAvailable,
				Fields: map[string]interface{}{"quest_id": u.ID, "unlocked_by": q.ID},
			})
		}
	}
}

// failQuest moves an ACTIVE quest to FAILED. Caller holds e.mu.
func (e *Engine) failQuest(q *Quest, reason string, d *deferred) {
	q.State = StateFailed
	q.FailReason = reason
	e.logger.Info("quest failed", zap.String("quest_id", q.ID), zap.String("reason", reason))
	d.publish(bus.Event{
		Signal: bus.SignalQuestFailed,
		Fields: map[string]interface{}{"quest_id": q.ID, "reason": reason},
	})
}

// apply runs side effects collected under the lock. Flag writes go first
// so any listeners observe them before the quest events arrive.
func (e *Engine) apply(d *deferred) {
	for name, value := range d.flagSets {
		if e.flags != nil {
			e.flags.SetFlag(name, value)
		}
	}
	if e.bus == nil {
		return
	}
	for _, ev := range d.events {
		e.bus.Publish(ev)
	}
}

func firstTopicMatch(topics []string, b *intent.Bundle) (string, bool) {
	for _, t := range topics {
		if b.HasTopic(t) {
			return t, true
		}
	}
	return "", false
}

func copyQuest(q *Quest) Quest {
	out := *q
	out.Objectives = make([]*Objective, len(q.Objectives))
	for i, o := range q.Objectives {
		oc := *o
		out.Objectives[i] = &oc
	}
	return out
}
