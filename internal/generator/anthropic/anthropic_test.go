package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
	"tuberag/internal/generator"
)

func TestGenerate_ReturnsTextBlocks(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Go has goroutines."}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "test-key", BaseURL: srv.URL}, arbor.NewLogger())
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "What does Go have?", []string{"Goroutines are cheap."}, "")
	require.NoError(t, err)
	assert.Equal(t, "Go has goroutines.", answer)

	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.Equal(t, DefaultModel, got["model"])
	system, _ := got["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, generator.DefaultSystemPrompt, system[0].(map[string]any)["text"])
}

func TestGenerate_APIErrorIsGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "k", BaseURL: srv.URL}, arbor.NewLogger())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", []string{"c"}, "be brief")
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	_, err := NewGenerator(Config{}, arbor.NewLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
