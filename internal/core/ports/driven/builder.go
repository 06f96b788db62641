package driven

import (
	"github.com/helicon-labs/vectra/internal/core/domain"
)

// DocumentBuilder transforms a record into a searchable document.
// Builders are pure: deterministic, no network or disk access.
type DocumentBuilder interface {
	// Kind returns the record kind this builder handles.
	Kind() string

	// Build produces the document for a record. The container carries
	// context metadata (label etc.) and may be nil.
	// Returns an error wrapping domain.ErrPermanentRecord for records
	// that cannot be transformed.
	Build(record domain.Record, container *domain.Container) (*domain.Document, error)
}

// BuilderRegistry selects the document builder for a record kind.
type BuilderRegistry interface {
	// Build transforms a record using the builder registered for its
	// kind. Returns domain.ErrUnsupportedKind if none is registered.
	Build(record domain.Record, container *domain.Container) (*domain.Document, error)

	// Register adds a builder for its kind.
	Register(builder DocumentBuilder)

	// Kinds returns all registered record kinds.
	Kinds() []string
}
