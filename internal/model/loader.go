package model

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"

	json "github.com/goccy/go-json"

	"github.com/shunzh/llm.ipynb/internal/logger"
	"github.com/shunzh/llm.ipynb/internal/tensor"
)

// Param is one named weight array in a checkpoint: flattened row-major data
// plus its shape.
type Param struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Checkpoint is the on-disk model format: the config the parameters were
// produced against and a flat name -> array mapping.
//
// Parameter names are a fixed contract:
//
//	tok_emb.weight                (vocab_size, hidden_size)
//	pos_emb.weight                (max_seq_len, hidden_size)
//	layers.<i>.ln1.weight/.bias   (hidden_size)
//	layers.<i>.attn.qkv.weight    (3*hidden_size, hidden_size), rows q|k|v
//	layers.<i>.attn.qkv.bias      (3*hidden_size)
//	layers.<i>.attn.proj.weight   (hidden_size, hidden_size)
//	layers.<i>.attn.proj.bias     (hidden_size)
//	layers.<i>.ln2.weight/.bias   (hidden_size)
//	layers.<i>.ffn.fc1.weight     (ff_hidden_size, hidden_size)
//	layers.<i>.ffn.fc1.bias       (ff_hidden_size)
//	layers.<i>.ffn.fc2.weight     (hidden_size, ff_hidden_size)
//	layers.<i>.ffn.fc2.bias       (hidden_size)
//	ln_f.weight/.bias             (hidden_size)
//	lm_head.weight                (vocab_size, hidden_size)
//	lm_head.bias                  (vocab_size)
type Checkpoint struct {
	Config Config           `json:"config"`
	Params map[string]Param `json:"params"`
}

// LoadCheckpoint reads and decodes a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ck Checkpoint
	if err := json.Unmarshal(raw, &ck); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if err := ck.Config.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return &ck, nil
}

// SaveCheckpoint writes the model's parameters to path.
func SaveCheckpoint(path string, m *SequenceModel) error {
	ck := &Checkpoint{
		Config: m.Config,
		Params: make(map[string]Param),
	}
	putMat := func(name string, w *tensor.Mat) {
		ck.Params[name] = Param{Shape: []int{w.R, w.C}, Data: w.Data}
	}
	putVec := func(name string, v []float32) {
		ck.Params[name] = Param{Shape: []int{len(v)}, Data: v}
	}

	putMat("tok_emb.weight", &m.TokEmb)
	putMat("pos_emb.weight", &m.PosEmb)
	for i, l := range m.Layers {
		prefix := fmt.Sprintf("layers.%d.", i)
		putVec(prefix+"ln1.weight", l.Norm1.Scale)
		putVec(prefix+"ln1.bias", l.Norm1.Shift)
		putMat(prefix+"attn.qkv.weight", &l.Attn.QKV)
		putVec(prefix+"attn.qkv.bias", l.Attn.QKVBias)
		putMat(prefix+"attn.proj.weight", &l.Attn.Proj)
		putVec(prefix+"attn.proj.bias", l.Attn.ProjBias)
		putVec(prefix+"ln2.weight", l.Norm2.Scale)
		putVec(prefix+"ln2.bias", l.Norm2.Shift)
		putMat(prefix+"ffn.fc1.weight", &l.FFN.FC1)
		putVec(prefix+"ffn.fc1.bias", l.FFN.FC1Bias)
		putMat(prefix+"ffn.fc2.weight", &l.FFN.FC2)
		putVec(prefix+"ffn.fc2.bias", l.FFN.FC2Bias)
	}
	putVec("ln_f.weight", m.Final.Scale)
	putVec("ln_f.bias", m.Final.Shift)
	putMat("lm_head.weight", &m.LMHead)
	putVec("lm_head.bias", m.LMBias)

	raw, err := json.Marshal(ck)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// FromCheckpoint constructs a model from a decoded checkpoint, validating
// every parameter shape against the checkpoint's config.
func FromCheckpoint(ck *Checkpoint) (*SequenceModel, error) {
	cfg := ck.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint config: %w", err)
	}

	var loadErr error
	mat := func(name string, r, c int) tensor.Mat {
		if loadErr != nil {
			return tensor.Mat{}
		}
		p, ok := ck.Params[name]
		if !ok {
			loadErr = fmt.Errorf("checkpoint missing parameter %q", name)
			return tensor.Mat{}
		}
		if len(p.Shape) != 2 || p.Shape[0] != r || p.Shape[1] != c {
			loadErr = fmt.Errorf("parameter %q has shape %v, want [%d %d]", name, p.Shape, r, c)
			return tensor.Mat{}
		}
		if len(p.Data) != r*c {
			loadErr = fmt.Errorf("parameter %q has %d values, want %d", name, len(p.Data), r*c)
			return tensor.Mat{}
		}
		return tensor.NewMatFromData(r, c, p.Data)
	}
	vec := func(name string, n int) []float32 {
		if loadErr != nil {
			return nil
		}
		p, ok := ck.Params[name]
		if !ok {
			loadErr = fmt.Errorf("checkpoint missing parameter %q", name)
			return nil
		}
		if len(p.Shape) != 1 || p.Shape[0] != n || len(p.Data) != n {
			loadErr = fmt.Errorf("parameter %q has shape %v, want [%d]", name, p.Shape, n)
			return nil
		}
		return p.Data
	}

	h := cfg.HiddenSize
	m := &SequenceModel{
		Config: cfg,
		TokEmb: mat("tok_emb.weight", cfg.VocabSize, h),
		PosEmb: mat("pos_emb.weight", cfg.MaxSeqLen, h),
		Layers: make([]*DecoderLayer, cfg.NumHiddenLayers),
		LMHead: mat("lm_head.weight", cfg.VocabSize, h),
		LMBias: vec("lm_head.bias", cfg.VocabSize),
	}
	m.Final = &LayerNorm{
		Scale: vec("ln_f.weight", h),
		Shift: vec("ln_f.bias", h),
		Eps:   normEps,
	}
	for i := range m.Layers {
		prefix := fmt.Sprintf("layers.%d.", i)
		m.Layers[i] = &DecoderLayer{
			Norm1: &LayerNorm{
				Scale: vec(prefix+"ln1.weight", h),
				Shift: vec(prefix+"ln1.bias", h),
				Eps:   normEps,
			},
			Attn: &CausalAttention{
				QKV:      mat(prefix+"attn.qkv.weight", 3*h, h),
				QKVBias:  vec(prefix+"attn.qkv.bias", 3*h),
				Proj:     mat(prefix+"attn.proj.weight", h, h),
				ProjBias: vec(prefix+"attn.proj.bias", h),
				hidden:   h,
			},
			Norm2: &LayerNorm{
				Scale: vec(prefix+"ln2.weight", h),
				Shift: vec(prefix+"ln2.bias", h),
				Eps:   normEps,
			},
			FFN: &FeedForward{
				FC1:     mat(prefix+"ffn.fc1.weight", cfg.FFHiddenSize, h),
				FC1Bias: vec(prefix+"ffn.fc1.bias", cfg.FFHiddenSize),
				FC2:     mat(prefix+"ffn.fc2.weight", h, cfg.FFHiddenSize),
				FC2Bias: vec(prefix+"ffn.fc2.bias", h),
			},
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return m, nil
}

// Load builds a model from the checkpoint at path. A missing file is
// recoverable: the model falls back to fresh parameters drawn from rng under
// cfg, with a warning so an untrained model is never used silently. A present
// but unreadable checkpoint is a hard error.
func Load(path string, cfg Config, rng *rand.Rand, log logger.Logger) (*SequenceModel, error) {
	ck, err := LoadCheckpoint(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("checkpoint not found, using freshly initialized parameters", "path", path)
		return NewSequenceModel(cfg, rng)
	}
	if err != nil {
		return nil, err
	}
	return FromCheckpoint(ck)
}
