// Package vector provides the interface for the external semantic-retrieval
// collaborator.
//
// The collaborator owns embeddings end to end: callers hand it raw documents
// and get back similarity-ranked results. Failures and timeouts are expected
// and must be treated as degrade-not-fail by callers.
package vector

import "context"

// Result is one semantic query hit.
type Result struct {
	// ID is the document identifier supplied at upsert time.
	ID string

	// Document is the stored document text.
	Document string

	// Metadata is the stored document metadata.
	Metadata map[string]interface{}

	// Similarity is the similarity score in [0, 1], higher is closer.
	Similarity float64
}

// Store defines the interface for the vector collaborator.
//
// Implementations must honor context deadlines: a hung collaborator must not
// block the calling turn past the configured timeout.
type Store interface {
	// CreateCollection creates (or reuses) a named collection.
	CreateCollection(ctx context.Context, name string) error

	// Upsert writes a document into a collection, replacing any document
	// with the same id.
	Upsert(ctx context.Context, collection, id, document string, metadata map[string]interface{}) error

	// Query performs a semantic search against a collection.
	//
	// filter is an optional metadata filter in the collaborator's filter
	// syntax (e.g. {"importance": {"$gte": 5}}); nil disables filtering.
	Query(ctx context.Context, collection, queryText string, limit int, filter map[string]interface{}) ([]Result, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases client resources.
	Close() error
}
