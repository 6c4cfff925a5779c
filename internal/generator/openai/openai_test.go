package openai

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

func TestGenerate_SendsPromptAndReturnsContent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris."}}]}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "sk-test", BaseURL: srv.URL, Temperature: DefaultTemperature}, arbor.NewLogger())
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "Capital of France?", []string{"Paris is the capital."}, "")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	assert.Equal(t, DefaultModel, got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, generator.DefaultSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "Context:\n[Document 1]\nParis is the capital.\n\nQuestion: Capital of France?", got.Messages[1].Content)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "sk-bad", BaseURL: srv.URL}, arbor.NewLogger())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", nil, "sys")
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Contains(t, err.Error(), "401")
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "k", BaseURL: srv.URL}, arbor.NewLogger())
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", []string{"c"}, "")
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	g, err := NewGenerator(Config{}, arbor.NewLogger())
	assert.Nil(t, g)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
