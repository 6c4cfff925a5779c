package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

// BreakerConfig tunes the circuit breaker around a remote generator.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 3
	}
	return c
}

// Breaker stops calling a failing generator for a while so a dead provider
// fails fast instead of timing out on every question.
type Breaker struct {
	inner domain.Generator
	cb    *gobreaker.CircuitBreaker
}

func NewBreaker(inner domain.Generator, cfg BreakerConfig, logger arbor.ILogger) *Breaker {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        "generator-" + inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Generator circuit breaker state changed")
		},
		// A cancelled question says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Generate(ctx context.Context, query string, contexts []string, systemPrompt string) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Generate(ctx, query, contexts, systemPrompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s unavailable: %w", domain.ErrGeneration, b.inner.Name(), err)
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }
