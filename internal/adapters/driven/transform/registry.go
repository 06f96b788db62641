// Package transform selects document builders by record kind.
package transform

import (
	"fmt"
	"sort"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.BuilderRegistry = (*Registry)(nil)

// Registry maps record kinds to their document builders.
type Registry struct {
	builders map[string]driven.DocumentBuilder
}

// NewRegistry creates a new builder registry.
func NewRegistry(builders ...driven.DocumentBuilder) *Registry {
	r := &Registry{
		builders: make(map[string]driven.DocumentBuilder),
	}
	for _, b := range builders {
		r.Register(b)
	}
	return r
}

// Register adds a builder for its kind. A later registration for the
// same kind replaces the earlier one.
func (r *Registry) Register(builder driven.DocumentBuilder) {
	r.builders[builder.Kind()] = builder
}

// Build transforms a record using the builder registered for its kind.
func (r *Registry) Build(record domain.Record, container *domain.Container) (*domain.Document, error) {
	builder, ok := r.builders[record.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, record.Kind)
	}
	return builder.Build(record, container)
}

// Kinds returns all registered record kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
