package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/shunzh/llm.ipynb/internal/decode"
	"github.com/shunzh/llm.ipynb/internal/logits"
)

func generateCmd() *cli.Command {
	var (
		prompt     string
		steps      int64
		temp       float64
		topK       int64
		topP       float64
		seed       int64
		strategy   string
		echoPrompt bool
		showStats  bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (omit for interactive mode)",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "number of tokens to generate",
			Value:       64,
			Destination: &steps,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       0,
			Destination: &temp,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "top-k sampling parameter",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "top-p sampling parameter",
			Value:       1.0,
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (default -1 = time-based)",
			Value:       -1,
			Destination: &seed,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Usage:       "decoding strategy (full, cached)",
			Value:       string(decode.StrategyCached),
			Destination: &strategy,
		},
		&cli.BoolFlag{
			Name:        "echo-prompt",
			Usage:       "print prompt text before generation",
			Destination: &echoPrompt,
		},
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "print generation statistics",
			Value:       true,
			Destination: &showStats,
		},
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate text from a prompt",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg := LoadConfig()
			applyCommonConfig(c, fileCfg)
			applyGenerateConfig(c, fileCfg, &temp, &topK, &topP, &steps, &seed, &strategy)

			log := newLogger()
			m, tok, err := loadModelAndTokenizer(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}

			strat, err := decode.ParseStrategy(strategy)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if seed == -1 {
				seed = time.Now().UnixNano()
			}
			sampler := logits.NewSampler(logits.SamplerConfig{
				Seed:        seed,
				Temperature: float32(temp),
				TopK:        int(topK),
				TopP:        float32(topP),
			})
			dec := decode.NewDecoder(m, sampler, strat)

			runOnce := func(text string) error {
				ids, err := tok.Encode(text)
				if err != nil {
					return err
				}
				seq := append([]int{tok.BOS()}, ids...)

				out, stats, err := dec.Generate(ctx, seq, int(steps))
				if err != nil {
					return err
				}
				completion, err := tok.Decode(out[len(seq):])
				if err != nil {
					return err
				}
				if echoPrompt {
					fmt.Print(text)
				}
				fmt.Println(completion)
				if showStats {
					fmt.Fprintf(os.Stderr, "Stats: %.2f TPS (%d tokens in %s, strategy=%s)\n",
						stats.TokensPerSecond(), stats.TokensGenerated, stats.Duration, strat)
				}
				return nil
			}

			if prompt != "" {
				if err := runOnce(prompt); err != nil {
					return cli.Exit(fmt.Sprintf("error: generation: %v", err), 1)
				}
				return nil
			}

			fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit.")
			for {
				input, err := readInteractiveLine("> ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
				}
				trimmed := strings.TrimSpace(input)
				if trimmed == "/exit" {
					return nil
				}
				if trimmed == "" {
					continue
				}
				if err := runOnce(input); err != nil {
					fmt.Fprintln(os.Stderr, "error: generation:", err)
				}
			}
		},
	}
}
