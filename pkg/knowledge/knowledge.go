// Package knowledge provides the canonical knowledge base: places,
// establishments and agents, plus the knowledge-scope computation between an
// agent and any location.
//
// The knowledge base is the ground truth that generated text and memories are
// validated against. It is read-mostly; mutation happens only through
// explicit Add calls.
package knowledge

import (
	"strings"
	"sync"
)

// Scope is the epistemic distance between an agent and a location. It gates
// both what is injected into generation requests and what the consistency
// validator accepts as a first-hand claim.
type Scope int

// Scopes, ordered from closest to farthest.
const (
	// ScopeIntimate covers an agent's own home and workplace.
	ScopeIntimate Scope = iota

	// ScopeLocal covers locations sharing a root ancestor (same settlement).
	ScopeLocal

	// ScopeRegional covers locations in the same region but a different
	// settlement.
	ScopeRegional

	// ScopeDistant covers locations known to exist in a different region.
	ScopeDistant

	// ScopeUnknown marks locations absent from the knowledge base.
	ScopeUnknown
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeIntimate:
		return "intimate"
	case ScopeLocal:
		return "local"
	case ScopeRegional:
		return "regional"
	case ScopeDistant:
		return "distant"
	default:
		return "unknown"
	}
}

// Location is a node in the location hierarchy.
type Location struct {
	// ID is the canonical location identifier.
	ID string `yaml:"id"`

	// Name is the display name, matched against generated text.
	Name string `yaml:"name"`

	// Parent is the ID of the enclosing location ("" for roots).
	Parent string `yaml:"parent,omitempty"`

	// Region groups settlements; scope between different regions is distant.
	Region string `yaml:"region,omitempty"`
}

// Establishment is a named business or landmark inside a location.
type Establishment struct {
	// Name is the canonical establishment name.
	Name string `yaml:"name"`

	// LocationID is the location containing the establishment.
	LocationID string `yaml:"location"`
}

// Agent is a conversational agent known to the world.
type Agent struct {
	// ID is the canonical agent identifier.
	ID string `yaml:"id"`

	// Name is the display name, matched against generated text.
	Name string `yaml:"name"`

	// HomeLocation is the agent's home location ID.
	HomeLocation string `yaml:"home"`

	// Workplace is the agent's workplace location ID (optional).
	Workplace string `yaml:"workplace,omitempty"`
}

// Base is the canonical knowledge base.
//
// Base is safe for concurrent use. Reads vastly outnumber writes; writes
// occur only through Add calls.
type Base struct {
	mu             sync.RWMutex
	locations      map[string]Location
	establishments map[string]Establishment // keyed by lowercased name
	agents         map[string]Agent
}

// NewBase creates an empty knowledge base.
func NewBase() *Base {
	return &Base{
		locations:      make(map[string]Location),
		establishments: make(map[string]Establishment),
		agents:         make(map[string]Agent),
	}
}

// AddLocation registers a location. Later calls with the same ID replace the
// earlier entry.
func (b *Base) AddLocation(loc Location) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations[loc.ID] = loc
}

// AddEstablishment registers an establishment under its canonical name.
func (b *Base) AddEstablishment(est Establishment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.establishments[strings.ToLower(est.Name)] = est
}

// AddAgent registers an agent.
func (b *Base) AddAgent(agent Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[agent.ID] = agent
}

// Location returns the location with the given ID.
func (b *Base) Location(id string) (Location, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	loc, ok := b.locations[id]
	return loc, ok
}

// Agent returns the agent with the given ID.
func (b *Base) Agent(id string) (Agent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.agents[id]
	return a, ok
}

// Establishment resolves a name (case-insensitive) to an establishment.
func (b *Base) Establishment(name string) (Establishment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	est, ok := b.establishments[strings.ToLower(name)]
	return est, ok
}

// EstablishmentNames returns every canonical establishment name.
func (b *Base) EstablishmentNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.establishments))
	for _, est := range b.establishments {
		names = append(names, est.Name)
	}
	return names
}

// AgentNames returns every canonical agent display name.
func (b *Base) AgentNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.agents))
	for _, a := range b.agents {
		names = append(names, a.Name)
	}
	return names
}

// LocationNames returns every canonical location display name.
func (b *Base) LocationNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.locations))
	for _, loc := range b.locations {
		names = append(names, loc.Name)
	}
	return names
}

// ResolveLocationName resolves a display name (case-insensitive) to a
// location.
func (b *Base) ResolveLocationName(name string) (Location, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lower := strings.ToLower(name)
	for _, loc := range b.locations {
		if strings.ToLower(loc.Name) == lower {
			return loc, true
		}
	}
	return Location{}, false
}

// ScopeFor computes the knowledge scope of a location relative to an agent.
//
// The scope is derived structurally from the location hierarchy:
//
//	intimate: the agent's own home or workplace
//	local:    shares a root ancestor with the agent's home
//	regional: same region, different settlement
//	distant:  known location in a different region
//	unknown:  agent or location absent from the knowledge base
func (b *Base) ScopeFor(agentID, locationID string) Scope {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agent, ok := b.agents[agentID]
	if !ok {
		return ScopeUnknown
	}
	loc, ok := b.locations[locationID]
	if !ok {
		return ScopeUnknown
	}

	if locationID == agent.HomeLocation || (agent.Workplace != "" && locationID == agent.Workplace) {
		return ScopeIntimate
	}

	home, ok := b.locations[agent.HomeLocation]
	if !ok {
		return ScopeUnknown
	}

	if b.rootOf(loc.ID) == b.rootOf(home.ID) {
		return ScopeLocal
	}

	if loc.Region != "" && loc.Region == region(b.locations, home) {
		return ScopeRegional
	}
	if region(b.locations, loc) != "" && region(b.locations, loc) == region(b.locations, home) {
		return ScopeRegional
	}

	return ScopeDistant
}

// rootOf walks the parent chain to the root location ID. Callers hold b.mu.
func (b *Base) rootOf(id string) string {
	seen := make(map[string]bool)
	for {
		loc, ok := b.locations[id]
		if !ok || loc.Parent == "" || seen[id] {
			return id
		}
		seen[id] = true
		id = loc.Parent
	}
}

// region resolves a location's region, inheriting from ancestors when unset.
func region(locations map[string]Location, loc Location) string {
	seen := make(map[string]bool)
	for {
		if loc.Region != "" {
			return loc.Region
		}
		if loc.Parent == "" || seen[loc.ID] {
			return ""
		}
		seen[loc.ID] = true
		parent, ok := locations[loc.Parent]
		if !ok {
			return ""
		}
		loc = parent
	}
}
