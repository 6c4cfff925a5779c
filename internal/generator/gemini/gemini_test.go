package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"tuberag/internal/domain"
)

func TestNewGenerator_RequiresKey(t *testing.T) {
	g, err := NewGenerator(context.Background(), Config{}, arbor.NewLogger())
	assert.Nil(t, g)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello, "}, {Text: "world."}}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "Hello, world.", responseText(resp))
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
}
