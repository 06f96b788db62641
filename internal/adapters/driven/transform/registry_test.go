package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

type stubBuilder struct {
	kind string
}

func (b *stubBuilder) Kind() string { return b.kind }

func (b *stubBuilder) Build(record domain.Record, _ *domain.Container) (*domain.Document, error) {
	return &domain.Document{ID: record.Ref.DocumentID(), Content: b.kind}, nil
}

func TestRegistry_BuildDispatchesByKind(t *testing.T) {
	registry := NewRegistry(&stubBuilder{kind: "calendar"}, &stubBuilder{kind: "contact"})

	doc, err := registry.Build(domain.Record{
		Ref:  domain.RecordRef{ContainerID: "c", RecordID: "r"},
		Kind: "contact",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "contact", doc.Content)
}

func TestRegistry_UnknownKind(t *testing.T) {
	registry := NewRegistry(&stubBuilder{kind: "calendar"})

	_, err := registry.Build(domain.Record{Kind: "mail"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedKind)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	first := &stubBuilder{kind: "calendar"}
	registry := NewRegistry(first)

	second := &stubBuilder{kind: "calendar"}
	registry.Register(second)

	assert.Equal(t, []string{"calendar"}, registry.Kinds())
}

func TestRegistry_KindsSorted(t *testing.T) {
	registry := NewRegistry(&stubBuilder{kind: "mail"}, &stubBuilder{kind: "calendar"})
	assert.Equal(t, []string{"calendar", "mail"}, registry.Kinds())
}
