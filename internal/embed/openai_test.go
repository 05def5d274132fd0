package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbapi/internal/config"
	"kbapi/internal/logging"
)

func TestOpenAI_EmbedTexts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAI(config.EmbeddingConfig{
		Host:         srv.URL,
		Model:        "test-embed",
		Token:        "none",
		RequestsPerS: 100,
		BatchSize:    8,
	}, logging.Nop())
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1}, vectors[1])
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew_FallsBackToHash(t *testing.T) {
	e, err := New(config.EmbeddingConfig{}, logging.Nop())

	require.NoError(t, err)
	assert.IsType(t, &Hash{}, e)
}

func TestNewOpenAI_RequiresHost(t *testing.T) {
	_, err := NewOpenAI(config.EmbeddingConfig{}, logging.Nop())
	assert.ErrorContains(t, err, "embedding host is required")
}
