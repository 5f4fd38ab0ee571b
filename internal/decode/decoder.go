// Package decode drives autoregressive token generation on top of a
// SequenceModel, with a choice between recomputing the full sequence every
// step and reusing a key/value cache.
package decode

import (
	"context"
	"fmt"
	"time"

	"github.com/shunzh/llm.ipynb/internal/logits"
	"github.com/shunzh/llm.ipynb/internal/model"
)

// Strategy selects how each generation step computes its logits.
type Strategy string

const (
	// StrategyFull recomputes the whole sequence from position zero at every
	// step. Quadratic per token, but stateless.
	StrategyFull Strategy = "full"

	// StrategyCached feeds only the newest token each step and attends back
	// into the cache. Produces the same tokens as StrategyFull.
	StrategyCached Strategy = "cached"
)

// ParseStrategy validates a strategy name from a flag or request field.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFull, StrategyCached:
		return Strategy(s), nil
	case "":
		return StrategyCached, nil
	default:
		return "", fmt.Errorf("decode: unknown strategy %q (want %q or %q)", s, StrategyFull, StrategyCached)
	}
}

// Stats reports what a single Generate call did.
type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
}

// TokensPerSecond returns the generation throughput, excluding prompt tokens.
func (s Stats) TokensPerSecond() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TokensGenerated) / secs
}

// Decoder generates token continuations for a single sequence at a time.
// It owns no model state between calls; each Generate call builds whatever
// cache it needs and discards it.
type Decoder struct {
	Model    *model.SequenceModel
	Sampler  *logits.Sampler
	Strategy Strategy
}

// NewDecoder returns a decoder over m using the given sampler and strategy.
func NewDecoder(m *model.SequenceModel, s *logits.Sampler, strategy Strategy) *Decoder {
	return &Decoder{Model: m, Sampler: s, Strategy: strategy}
}

// Generate extends prompt by up to steps tokens and returns the full
// sequence, prompt included. Generation stops early only on context
// cancellation or error; there is no end-of-sequence token in this model.
//
// Any model error aborts the call with no partial result, so a caller never
// mistakes a truncated sequence for a completed one.
func (d *Decoder) Generate(ctx context.Context, prompt []int, steps int) ([]int, Stats, error) {
	if len(prompt) == 0 {
		return nil, Stats{}, fmt.Errorf("decode: empty prompt")
	}
	if steps < 0 {
		return nil, Stats{}, fmt.Errorf("decode: negative step count %d", steps)
	}

	seq := make([]int, len(prompt), len(prompt)+steps)
	copy(seq, prompt)

	stats := Stats{PromptTokens: len(prompt)}
	start := time.Now()

	switch d.Strategy {
	case StrategyFull:
		for i := 0; i < steps; i++ {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			out, err := d.Model.Forward([][]int{seq})
			if err != nil {
				return nil, stats, fmt.Errorf("decode: step %d: %w", i, err)
			}
			seq = append(seq, d.Sampler.Sample(out.Vec(0, out.T-1)))
			stats.TokensGenerated++
		}

	case StrategyCached:
		cache := d.Model.NewCache()
		next := seq
		for i := 0; i < steps; i++ {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			// First step primes the cache with the whole prompt, later
			// steps feed only the newest token.
			out, err := d.Model.ForwardCached([][]int{next}, cache)
			if err != nil {
				return nil, stats, fmt.Errorf("decode: step %d: %w", i, err)
			}
			tok := d.Sampler.Sample(out.Vec(0, out.T-1))
			seq = append(seq, tok)
			next = seq[len(seq)-1:]
			stats.TokensGenerated++
		}

	default:
		return nil, stats, fmt.Errorf("decode: unknown strategy %q", d.Strategy)
	}

	stats.Duration = time.Since(start)
	return seq, stats, nil
}
