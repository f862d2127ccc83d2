package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingFixture(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	svc, err := NewEmbeddingService(&EmbeddingServiceConfig{
		Model:      "test-embed",
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Dimensions: 3,
	})
	require.NoError(t, err)
	return svc
}

type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func decodeEmbeddingInput(t *testing.T, r *http.Request) []string {
	t.Helper()
	var req struct {
		Input []string `json:"input"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req.Input
}

func TestEmbedBatch_PreservesInputOrder(t *testing.T) {
	// Return the items in reverse order; the index field is authoritative.
	svc := newEmbeddingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		input := decodeEmbeddingInput(t, r)
		data := make([]embeddingDatum, 0, len(input))
		for i := len(input) - 1; i >= 0; i-- {
			data = append(data, embeddingDatum{
				Index:     i,
				Embedding: []float32{float32(i), 0, 0},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	})

	results, err := svc.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, vec := range results {
		require.NotNil(t, vec)
		assert.Equal(t, float32(i), vec[0])
	}
}

func TestEmbedBatch_FallsBackPerItemOnBatchFailure(t *testing.T) {
	// The batch call always fails; single-item calls succeed except for "bad".
	svc := newEmbeddingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		input := decodeEmbeddingInput(t, r)
		if len(input) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "batch too large", "type": "server_error"},
			})
			return
		}
		if input[0] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "invalid input", "type": "invalid_request_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []embeddingDatum{{Index: 0, Embedding: []float32{1, 2, 3}}},
		})
	})

	results, err := svc.EmbedBatch(context.Background(), []string{"good", "bad", "also good"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []float32{1, 2, 3}, results[0])
	assert.Nil(t, results[1])
	assert.Equal(t, []float32{1, 2, 3}, results[2])
}
