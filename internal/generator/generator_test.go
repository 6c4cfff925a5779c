package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

func TestBuildUserPrompt(t *testing.T) {
	got := BuildUserPrompt("Why?", []string{"first text", "second text"})
	assert.Equal(t, "Context:\n[Document 1]\nfirst text\n\n[Document 2]\nsecond text\n\nQuestion: Why?", got)
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, DefaultSystemPrompt, SystemPrompt(""))
	assert.Equal(t, DefaultSystemPrompt, SystemPrompt("  \n"))
	assert.Equal(t, "Answer in French.", SystemPrompt("Answer in French."))
}

type flakyGenerator struct {
	calls int
	err   error
}

func (f *flakyGenerator) Name() string { return "flaky" }
func (f *flakyGenerator) Generate(context.Context, string, []string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func TestBreaker_PassesThrough(t *testing.T) {
	inner := &flakyGenerator{}
	b := NewBreaker(inner, BreakerConfig{}, arbor.NewLogger())
	out, err := b.Generate(context.Background(), "q", []string{"c"}, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "flaky", b.Name())
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cause := errors.New("provider down")
	inner := &flakyGenerator{err: cause}
	b := NewBreaker(inner, BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Hour}, arbor.NewLogger())
	ctx := context.Background()

	for range 2 {
		_, err := b.Generate(ctx, "q", nil, "")
		assert.ErrorIs(t, err, cause)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Generate(ctx, "q", nil, "")
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, 2, inner.calls, "open breaker must not call the provider")
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &flakyGenerator{err: context.Canceled}
	b := NewBreaker(inner, BreakerConfig{ConsecutiveFailures: 1}, arbor.NewLogger())
	for range 3 {
		_, err := b.Generate(context.Background(), "q", nil, "")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 3, inner.calls)
}
