// Package storage provides interfaces and types for memory record
// persistence backends.
//
// Records hold the durable, full-fidelity side of the dual representation:
// the text forms and attributes live here, while embeddings live in the
// vector collaborator, referenced by record ID only.
package storage

import (
	"context"
	"time"
)

// Record is a persisted memory record.
//
// This type is defined in the storage package to avoid circular dependencies
// with the memory package. It mirrors the memory.Memory structure.
type Record struct {
	// ID is the collection-unique record identifier.
	ID int64

	// AgentID identifies the agent owning this record.
	AgentID string

	// ShortForm is the compact text representation.
	ShortForm string

	// FullForm is the verbose text representation.
	FullForm string

	// EventType tags the recorded experience.
	EventType string

	// Importance is the 1-10 importance rating.
	Importance int

	// Emotion is a free emotion tag.
	Emotion string

	// Tags is the set of tags attached to the record.
	Tags []string

	// Timestamp is when the memory was recorded.
	Timestamp time.Time

	// SlotType marks the record as a single-value fact, if set.
	SlotType string

	// Superseded is set when a later record superseded this one.
	Superseded bool
}

// RecordStore defines the interface for record persistence backends.
//
// All backends (SQLite, PostgreSQL) must implement this interface. A nil
// RecordStore is a valid configuration: collections are then memory-only.
type RecordStore interface {
	// Insert persists a record.
	Insert(ctx context.Context, rec *Record) error

	// MarkSuperseded sets the superseded flag on a record. Marking an
	// already-superseded or missing record is a no-op.
	MarkSuperseded(ctx context.Context, agentID string, id int64) error

	// LoadAgent loads every record for an agent in timestamp order.
	LoadAgent(ctx context.Context, agentID string) ([]*Record, error)

	// DeleteAgent removes every record for an agent (explicit purge only).
	DeleteAgent(ctx context.Context, agentID string) error

	// Close closes the store and releases resources.
	Close() error
}
