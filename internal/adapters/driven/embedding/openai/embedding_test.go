package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service, err := NewEmbeddingService(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	return service
}

func TestNewEmbeddingService_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		// Items arrive out of order; Index restores input order.
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0.2]},
			{"index":0,"embedding":[0.1]}
		]}`)
	})

	vectors, err := service.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1}, vectors[0])
	assert.Equal(t, []float32{0.2}, vectors[1])
}

func TestEmbedBatch_ShortResponse(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[0.1]}]}`)
	})

	_, err := service.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embedding returned for input 1")
}

func TestEmbedBatch_IndexOutOfRange(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"index":5,"embedding":[0.1]}]}`)
	})

	_, err := service.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestEmbedBatch_RateLimitIsTransient(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limit"}}`, http.StatusTooManyRequests)
	})

	_, err := service.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestEmbedBatch_ClientErrorIsPermanent(t *testing.T) {
	service := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid input"}}`, http.StatusBadRequest)
	})

	_, err := service.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrPermanentRecord)
}

func TestPing_Unreachable(t *testing.T) {
	service, err := NewEmbeddingService(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	err = service.Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}
