package main

import (
	"math/rand"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/shunzh/llm.ipynb/internal/logger"
	"github.com/shunzh/llm.ipynb/internal/model"
	"github.com/shunzh/llm.ipynb/internal/tokenizer"
)

var (
	checkpointPath string
	vocabPath      string
	hiddenSize     int64
	ffHiddenSize   int64
	numLayers      int64
	maxSeqLen      int64
	initSeed       int64
	logLevel       string
	logFormat      string
)

// defaultCorpus seeds the tokenizer vocabulary when no vocab file is given:
// printable ASCII plus newline and tab.
const defaultCorpus = "\n\t !\"#$%&'()*+,-./0123456789:;<=>?@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`" +
	"abcdefghijklmnopqrstuvwxyz{|}~"

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"m"},
			Usage:       "path to checkpoint JSON file",
			Destination: &checkpointPath,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to vocabulary JSON file",
			Destination: &vocabPath,
		},
		&cli.Int64Flag{
			Name:        "hidden",
			Usage:       "hidden size for fresh initialization",
			Value:       64,
			Destination: &hiddenSize,
		},
		&cli.Int64Flag{
			Name:        "ff-hidden",
			Usage:       "feed-forward hidden size for fresh initialization",
			Value:       256,
			Destination: &ffHiddenSize,
		},
		&cli.Int64Flag{
			Name:        "layers",
			Usage:       "number of decoder layers for fresh initialization",
			Value:       2,
			Destination: &numLayers,
		},
		&cli.Int64Flag{
			Name:        "max-seq",
			Aliases:     []string{"ctx", "c"},
			Usage:       "maximum sequence length",
			Value:       256,
			Destination: &maxSeqLen,
		},
		&cli.Int64Flag{
			Name:        "init-seed",
			Usage:       "RNG seed for fresh parameter initialization",
			Value:       42,
			Destination: &initSeed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Default()
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

// loadModelAndTokenizer builds the tokenizer and model from the common
// flags. A missing checkpoint falls back to fresh parameters; a tokenizer
// whose vocabulary is larger than the model's embedding table is an error.
func loadModelAndTokenizer(log logger.Logger) (*model.SequenceModel, *tokenizer.CharTokenizer, error) {
	var tok *tokenizer.CharTokenizer
	if vocabPath != "" {
		var err error
		tok, err = tokenizer.LoadCharTokenizer(vocabPath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		log.Debug("no vocab file given, using built-in ASCII vocabulary")
		tok = tokenizer.NewCharTokenizer(defaultCorpus)
	}

	cfg := model.Config{
		HiddenSize:      int(hiddenSize),
		FFHiddenSize:    int(ffHiddenSize),
		NumHiddenLayers: int(numLayers),
		VocabSize:       tok.VocabSize(),
		MaxSeqLen:       int(maxSeqLen),
	}
	rng := rand.New(rand.NewSource(initSeed))

	var (
		m   *model.SequenceModel
		err error
	)
	if checkpointPath != "" {
		m, err = model.Load(checkpointPath, cfg, rng, log)
	} else {
		log.Debug("no checkpoint given, using fresh parameters", "seed", initSeed)
		m, err = model.NewSequenceModel(cfg, rng)
	}
	if err != nil {
		return nil, nil, err
	}
	if tok.VocabSize() > m.Config.VocabSize {
		return nil, nil, cli.Exit("vocabulary is larger than the model's embedding table", 1)
	}
	return m, tok, nil
}
