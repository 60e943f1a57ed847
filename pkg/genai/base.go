package genai

import "context"

// Request carries the context assembled for one generation call.
type Request struct {
	// AgentID is the speaking agent.
	AgentID string

	// PlayerInput is the raw player utterance.
	PlayerInput string

	// MemoryContext is the budgeted memory selection for this turn.
	MemoryContext string

	// QuestHints are active-quest narrative hints for this agent.
	QuestHints []string

	// Persona is the agent's character sheet text.
	Persona string
}

// Provider defines the interface for the text-generation collaborator.
//
// Implementations must honor context deadlines and return a structured
// Payload. Callers normalize the payload before use; providers are not
// required to validate fields.
type Provider interface {
	// GeneratePayload produces one structured exchange for the request.
	GeneratePayload(ctx context.Context, req *Request) (*Payload, error)

	// Close releases provider resources.
	Close() error
}
