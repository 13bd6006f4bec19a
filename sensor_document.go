package vigil

import (
	"context"

	"github.com/rs/zerolog/log"
)

// DocumentQuery selects documents in a document database.
type DocumentQuery struct {
	// Database is the namespace holding the collection. Empty means the hook's default.
	Database string
	// Collection is the collection to search.
	Collection string
	// Filter is matched against the documents; every key must equal the document's value at
	// that key. Dotted keys address nested fields.
	Filter map[string]any
}

// DocumentHook is the query surface of a document database.
type DocumentHook interface {
	// Exists reports whether at least one document matches the query.
	Exists(ctx context.Context, q DocumentQuery) (bool, error)
}

// DocumentSensor waits for a document matching a query to exist.
type DocumentSensor struct {
	Hook  DocumentHook
	Query DocumentQuery
}

// Validate checks that the DocumentSensor is ready to poke.
func (s *DocumentSensor) Validate() error {
	if s.Hook == nil {
		return configError("DocumentSensor has no hook")
	}
	if s.Query.Collection == "" {
		return configError("DocumentSensor collection is empty")
	}
	if s.Query.Filter == nil {
		return configError("DocumentSensor filter is nil")
	}
	return nil
}

// Poke reports whether a matching document exists.
func (s *DocumentSensor) Poke(ctx context.Context) (bool, error) {
	log.Trace().
		Str("database", s.Query.Database).
		Str("collection", s.Query.Collection).
		Interface("filter", s.Query.Filter).
		Msg("poking for document")
	return s.Hook.Exists(ctx, s.Query)
}
