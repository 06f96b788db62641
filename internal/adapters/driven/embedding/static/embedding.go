// Package static provides a deterministic embedding service that needs
// no external model. The same text always gets the same vector, which
// makes it suitable for tests and offline smoke runs.
package static

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 384

// EmbeddingService derives fixed-dimension unit vectors from a text
// hash.
type EmbeddingService struct {
	dimensions int
	calls      atomic.Int64
}

// NewEmbeddingService creates a deterministic embedder.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (s *EmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls.Add(1)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, s.dimensions)
	var sum float64
	for i := range vec {
		v := math.Sin(float64(seed%math.MaxInt32) * float64(i+1))
		vec[i] = float32(v)
		sum += v * v
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] *= float32(norm)
		}
	}
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model.
func (s *EmbeddingService) ModelName() string {
	return "static"
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// Calls returns how many embeddings have been computed. Test helper.
func (s *EmbeddingService) Calls() int {
	return int(s.calls.Load())
}
