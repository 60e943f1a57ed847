// Package validate provides the consistency validator: a layered filter that
// repairs or rejects generated text and candidate memories referencing facts
// outside the canonical knowledge base.
//
// Outgoing text gets best-effort repair only. Memory writes are held to a
// stricter standard: unresolvable establishment names, deny-listed phrases
// and out-of-scope first-hand claims are rejected outright. Rejection is a
// normal outcome, not an error.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-go/pkg/knowledge"
)

// Verdict is the result of validating a candidate memory.
type Verdict struct {
	// Valid reports whether the memory may be persisted.
	Valid bool

	// Issues lists everything found, both repairs and rejection causes.
	Issues []string

	// Sanitized is the text after auto-corrections. Meaningful only when
	// Valid is true.
	Sanitized string
}

// firstHandPatterns match claims of first-hand experience about a place.
// The captured group is the claimed location name.
var firstHandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bI (?:visited|was (?:at|in)|went to|have been to|traveled to) (?:the )?((?:[A-Z][a-z]+\s?)+)`),
}

// WorldReader reads world flags the validator consults when judging claims
// about locations. *worldstate.Log satisfies it.
type WorldReader interface {
	Flag(name string) bool
}

// Validator checks text against the canonical knowledge base and the current
// world state.
//
// The validator has no side effects beyond returning a verdict; all mutation
// happens in the caller.
type Validator struct {
	kb       *knowledge.Base
	world    WorldReader
	denyList map[string]string // lowercased phrase -> canonical replacement ("" = no repair, reject memories)
	logger   *zap.Logger
}

// New creates a validator over the given knowledge base and world flags.
// A nil world disables the flag checks; a nil logger disables logging.
func New(kb *knowledge.Base, world WorldReader, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		kb:       kb,
		world:    world,
		denyList: make(map[string]string),
		logger:   logger,
	}
}

// Deny adds a known hallucination phrase. A non-empty replacement repairs
// outgoing text in place; an empty replacement leaves outgoing text alone.
// A candidate memory referencing any denied phrase is rejected either way.
func (v *Validator) Deny(phrase, replacement string) {
	v.denyList[strings.ToLower(phrase)] = replacement
}

// SanitizeOutgoing applies the deny-list repairs unconditionally to text
// shown to the player. This is best-effort repair, not a correctness
// guarantee.
func (v *Validator) SanitizeOutgoing(text, agentID string) string {
	for phrase, replacement := range v.denyList {
		if replacement == "" {
			continue
		}
		text = replaceFold(text, phrase, replacement)
	}
	return text
}

// ValidateMemory validates a candidate memory text for an agent.
//
// The checks, in order:
//  1. deny-list hits reject (repairable phrases are repaired instead)
//  2. proper-noun resolution: near-matches against canonical establishment
//     and agent names are auto-corrected (still valid, issue recorded);
//     unresolvable establishment-style names reject
//  3. scope violations: a first-hand claim about a location whose scope
//     relative to the agent is distant or unknown rejects, as does a claim
//     about a location the world flags as destroyed or closed
func (v *Validator) ValidateMemory(text, agentID string) Verdict {
	verdict := Verdict{Valid: true, Sanitized: text}

	// Deny-list pass. Outgoing text gets these phrases repaired; a memory
	// referencing one is rejected outright.
	lower := strings.ToLower(text)
	for phrase := range v.denyList {
		if strings.Contains(lower, phrase) {
			verdict.Valid = false
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("forbidden name %q", phrase))
		}
	}
	if !verdict.Valid {
		v.logRejection(agentID, verdict.Issues)
		return verdict
	}

	// Proper-noun resolution pass.
	estNames := v.kb.EstablishmentNames()
	agentNames := v.kb.AgentNames()
	locNames := v.kb.LocationNames()
	for _, candidate := range ExtractCandidates(verdict.Sanitized) {
		if resolved, exact := resolveName(candidate, estNames, agentNames, locNames); resolved != "" {
			if !exact {
				verdict.Sanitized = replaceFold(verdict.Sanitized, candidate, resolved)
				verdict.Issues = append(verdict.Issues, fmt.Sprintf("corrected %q to %q", candidate, resolved))
			}
			continue
		}
		// "The Something" reads as an establishment reference; an
		// establishment the knowledge base has never heard of is a
		// hallucination.
		if strings.HasPrefix(candidate, "The ") {
			verdict.Valid = false
			verdict.Issues = append(verdict.Issues, fmt.Sprintf("unknown establishment %q", candidate))
		}
	}
	if !verdict.Valid {
		v.logRejection(agentID, verdict.Issues)
		return verdict
	}

	// Scope pass: first-hand claims about places the agent cannot know.
	for _, pattern := range firstHandPatterns {
		for _, m := range pattern.FindAllStringSubmatch(verdict.Sanitized, -1) {
			claimed := strings.TrimSpace(m[1])
			if resolved, _ := resolveName(claimed, estNames, agentNames); resolved != "" {
				// Claims about establishments and people are checked by the
				// proper-noun pass, not the location scope.
				continue
			}
			loc, ok := v.kb.ResolveLocationName(claimed)
			scope := knowledge.ScopeUnknown
			if ok {
				scope = v.kb.ScopeFor(agentID, loc.ID)
			}
			if scope >= knowledge.ScopeDistant {
				verdict.Valid = false
				verdict.Issues = append(verdict.Issues,
					fmt.Sprintf("scope violation: first-hand claim about %s location %q", scope, claimed))
				continue
			}
			// Even an in-scope claim is stale against the live world: a
			// present-tense visit to a place flagged destroyed or closed
			// cannot have happened.
			if ok && v.world != nil {
				for _, state := range []string{"destroyed", "closed"} {
					if v.world.Flag(state + ":" + loc.ID) {
						verdict.Valid = false
						verdict.Issues = append(verdict.Issues,
							fmt.Sprintf("world violation: first-hand claim about %s location %q", state, claimed))
						break
					}
				}
			}
		}
	}
	if !verdict.Valid {
		v.logRejection(agentID, verdict.Issues)
	}

	return verdict
}

func (v *Validator) logRejection(agentID string, issues []string) {
	v.logger.Info("memory rejected",
		zap.String("agent_id", agentID),
		zap.Strings("issues", issues),
	)
}

// resolveName resolves a candidate against the canonical name lists,
// establishments first, then agents, then locations. Returns the canonical
// spelling and whether the match was exact.
func resolveName(candidate string, lists ...[]string) (string, bool) {
	for _, list := range lists {
		for _, name := range list {
			if strings.EqualFold(candidate, name) {
				return name, true
			}
		}
	}
	for _, list := range lists {
		for _, name := range list {
			if nameSimilar(candidate, name) {
				return name, false
			}
		}
	}
	return "", false
}

// replaceFold replaces every case-insensitive occurrence of old with new.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	var sb strings.Builder
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	for {
		i := strings.Index(lower, oldLower)
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		sb.WriteString(new)
		s = s[i+len(old):]
		lower = lower[i+len(oldLower):]
	}
}
