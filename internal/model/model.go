package model

import (
	"fmt"
	"math/rand"

	"github.com/shunzh/llm.ipynb/internal/tensor"
)

// SequenceModel is a decoder-only autoregressive model: token and position
// embeddings, a stack of DecoderLayers, a final LayerNorm and a linear
// projection to vocabulary logits.
//
// Parameters are plain exported fields constructed once and read-only during
// inference; there is no hidden registry. A model may serve any number of
// concurrent generation sessions as long as each session owns its Cache.
type SequenceModel struct {
	Config Config

	TokEmb tensor.Mat // (vocab_size, hidden_size)
	PosEmb tensor.Mat // (max_seq_len, hidden_size)
	Layers []*DecoderLayer
	Final  *LayerNorm
	LMHead tensor.Mat // (vocab_size, hidden_size)
	LMBias []float32
}

// NewSequenceModel builds a model with freshly initialised parameters drawn
// from rng. The same seed always produces identical parameters.
func NewSequenceModel(cfg Config, rng *rand.Rand) (*SequenceModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}

	m := &SequenceModel{
		Config: cfg,
		TokEmb: tensor.NewMat(cfg.VocabSize, cfg.HiddenSize),
		PosEmb: tensor.NewMat(cfg.MaxSeqLen, cfg.HiddenSize),
		Layers: make([]*DecoderLayer, cfg.NumHiddenLayers),
		Final:  NewLayerNorm(cfg.HiddenSize),
		LMHead: tensor.NewMat(cfg.VocabSize, cfg.HiddenSize),
		LMBias: make([]float32, cfg.VocabSize),
	}
	tensor.FillRand(&m.TokEmb, rng)
	tensor.FillRand(&m.PosEmb, rng)
	for i := range m.Layers {
		m.Layers[i] = NewDecoderLayer(cfg.HiddenSize, cfg.FFHiddenSize, rng)
	}
	tensor.FillRand(&m.LMHead, rng)
	return m, nil
}

// NewCache returns an empty cache sized for this model's layer stack.
func (m *SequenceModel) NewCache() *Cache {
	return NewCache(len(m.Layers))
}

// Forward computes logits of shape (B, T, vocab_size) for full token
// sequences, recomputing everything from position zero.
func (m *SequenceModel) Forward(tokens [][]int) (*tensor.Tensor, error) {
	return m.forward(tokens, nil)
}

// ForwardCached computes logits for only the newest tokens of each sequence,
// attending back into cache and extending it in place. Position ids continue
// from the cache length, so embeddings match what the stateless path would
// produce for the full sequence.
//
// The cache is updated only after every layer has succeeded; on error it is
// left exactly as it was.
func (m *SequenceModel) ForwardCached(tokens [][]int, cache *Cache) (*tensor.Tensor, error) {
	if cache == nil {
		return nil, fmt.Errorf("model: ForwardCached requires a cache, use Forward for stateless computation")
	}
	if cache.NumLayers() != len(m.Layers) {
		return nil, fmt.Errorf("model: cache has %d layer slots, model has %d layers", cache.NumLayers(), len(m.Layers))
	}
	return m.forward(tokens, cache)
}

func (m *SequenceModel) forward(tokens [][]int, cache *Cache) (*tensor.Tensor, error) {
	batch := len(tokens)
	if batch == 0 {
		return nil, fmt.Errorf("model: empty batch")
	}
	seqLen := len(tokens[0])
	if seqLen == 0 {
		return nil, fmt.Errorf("model: empty token sequence")
	}
	for b, seq := range tokens {
		if len(seq) != seqLen {
			return nil, fmt.Errorf("model: ragged batch, sequence 0 has %d tokens but sequence %d has %d", seqLen, b, len(seq))
		}
		for t, id := range seq {
			if id < 0 || id >= m.Config.VocabSize {
				return nil, fmt.Errorf("model: token id %d at (%d,%d) out of range [0,%d)", id, b, t, m.Config.VocabSize)
			}
		}
	}

	offset := 0
	if cache != nil {
		var err error
		offset, err = cache.Length()
		if err != nil {
			return nil, err
		}
	}
	// Position embedding lookups beyond the table are unrepresentable, so
	// overflow is a hard error rather than a clamp.
	if offset+seqLen > m.Config.MaxSeqLen {
		return nil, fmt.Errorf("model: sequence length %d exceeds max_seq_len %d (cache holds %d positions, %d new)",
			offset+seqLen, m.Config.MaxSeqLen, offset, seqLen)
	}

	x := tensor.NewTensor(batch, seqLen, m.Config.HiddenSize)
	for b := 0; b < batch; b++ {
		for t := 0; t < seqLen; t++ {
			vec := x.Vec(b, t)
			copy(vec, m.TokEmb.Row(tokens[b][t]))
			tensor.Add(vec, m.PosEmb.Row(offset+t))
		}
	}

	newEntries := make([]*KV, len(m.Layers))
	for i, layer := range m.Layers {
		var mode Mode = Stateless{}
		if cache != nil {
			mode = Incremental{Past: cache.Entry(i)}
		}
		out, kv, err := layer.Forward(x, mode)
		if err != nil {
			return nil, fmt.Errorf("model: layer %d: %w", i, err)
		}
		x = out
		newEntries[i] = kv
	}
	if cache != nil {
		cache.commit(newEntries)
	}

	x = m.Final.Forward(x)

	logits := tensor.NewTensor(batch, seqLen, m.Config.VocabSize)
	for b := 0; b < batch; b++ {
		for t := 0; t < seqLen; t++ {
			o := logits.Vec(b, t)
			tensor.MatVec(o, &m.LMHead, x.Vec(b, t))
			tensor.Add(o, m.LMBias)
		}
	}
	return logits, nil
}
