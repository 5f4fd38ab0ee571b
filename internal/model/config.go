package model

import "fmt"

// Config fixes the array dimensions of a SequenceModel. All fields are
// immutable for the lifetime of one model instance; parameters loaded against
// a different config are rejected at load time.
type Config struct {
	HiddenSize      int     `json:"hidden_size"`
	FFHiddenSize    int     `json:"ff_hidden_size"`
	NumHiddenLayers int     `json:"num_hidden_layers"`
	DropoutRate     float64 `json:"dropout_rate"`
	VocabSize       int     `json:"vocab_size"`
	MaxSeqLen       int     `json:"max_seq_len"`
}

// DefaultConfig returns the dimensions used when no checkpoint supplies them.
func DefaultConfig() Config {
	return Config{
		HiddenSize:      64,
		FFHiddenSize:    256,
		NumHiddenLayers: 2,
		DropoutRate:     0.0,
		VocabSize:       256,
		MaxSeqLen:       256,
	}
}

func (c Config) Validate() error {
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.FFHiddenSize <= 0 {
		return fmt.Errorf("ff_hidden_size must be positive, got %d", c.FFHiddenSize)
	}
	if c.NumHiddenLayers <= 0 {
		return fmt.Errorf("num_hidden_layers must be positive, got %d", c.NumHiddenLayers)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.MaxSeqLen <= 0 {
		return fmt.Errorf("max_seq_len must be positive, got %d", c.MaxSeqLen)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("dropout_rate must be in [0,1), got %g", c.DropoutRate)
	}
	return nil
}
