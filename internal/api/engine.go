package api

import (
	"context"
	"fmt"

	"github.com/shunzh/llm.ipynb/internal/decode"
	"github.com/shunzh/llm.ipynb/internal/logits"
	"github.com/shunzh/llm.ipynb/internal/model"
	"github.com/shunzh/llm.ipynb/internal/tokenizer"
)

// ModelEngine is the Engine implementation backed by an in-process
// SequenceModel. Each Complete call builds its own sampler and decoder, so
// concurrent requests never share mutable state.
type ModelEngine struct {
	Model *model.SequenceModel
	Tok   tokenizer.Tokenizer
}

// NewModelEngine returns an engine over m and tok.
func NewModelEngine(m *model.SequenceModel, tok tokenizer.Tokenizer) *ModelEngine {
	return &ModelEngine{Model: m, Tok: tok}
}

// Complete encodes the prompt, generates params.MaxTokens continuation
// tokens and decodes only the continuation back to text.
func (e *ModelEngine) Complete(ctx context.Context, prompt string, params GenParams) (string, decode.Stats, error) {
	ids, err := e.Tok.Encode(prompt)
	if err != nil {
		return "", decode.Stats{}, fmt.Errorf("encode prompt: %w", err)
	}
	seq := append([]int{e.Tok.BOS()}, ids...)

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        params.Seed,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
	})
	dec := decode.NewDecoder(e.Model, sampler, params.Strategy)

	out, stats, err := dec.Generate(ctx, seq, params.MaxTokens)
	if err != nil {
		return "", stats, err
	}
	text, err := e.Tok.Decode(out[len(seq):])
	if err != nil {
		return "", stats, fmt.Errorf("decode completion: %w", err)
	}
	return text, stats, nil
}
