package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/shunzh/llm.ipynb/internal/decode"
	"github.com/shunzh/llm.ipynb/internal/logits"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		prompt     string
		steps      int64
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "The quick brown fox",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "number of tokens to generate per run",
			Value:       128,
			Destination: &steps,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Compare full-recompute and cached decoding on the same prompt",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := LoadConfig()
			applyCommonConfig(cmd, fileCfg)

			log := newLogger()
			m, tok, err := loadModelAndTokenizer(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}

			ids, err := tok.Encode(prompt)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode prompt: %v", err), 1)
			}
			seq := append([]int{tok.BOS()}, ids...)

			// Greedy sampling so both strategies are comparable token for
			// token, not just in throughput.
			run := func(strategy decode.Strategy) ([]int, decode.Stats, error) {
				sampler := logits.NewSampler(logits.SamplerConfig{Temperature: 0})
				dec := decode.NewDecoder(m, sampler, strategy)
				return dec.Generate(ctx, seq, int(steps))
			}

			for i := int64(0); i < warmupRuns; i++ {
				if _, _, err := run(decode.StrategyCached); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup: %v", err), 1)
				}
			}

			var fullOut, cachedOut []int
			for i := int64(0); i < benchRuns; i++ {
				out, fullStats, err := run(decode.StrategyFull)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: full run: %v", err), 1)
				}
				fullOut = out

				out, cachedStats, err := run(decode.StrategyCached)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: cached run: %v", err), 1)
				}
				cachedOut = out

				fmt.Printf("run %d: full %.2f TPS (%s), cached %.2f TPS (%s), speedup %.2fx\n",
					i+1,
					fullStats.TokensPerSecond(), fullStats.Duration,
					cachedStats.TokensPerSecond(), cachedStats.Duration,
					fullStats.Duration.Seconds()/cachedStats.Duration.Seconds(),
				)
			}

			for i := range fullOut {
				if fullOut[i] != cachedOut[i] {
					return cli.Exit(fmt.Sprintf("error: strategies diverged at position %d: full=%d cached=%d",
						i, fullOut[i], cachedOut[i]), 1)
				}
			}
			fmt.Println("full and cached decoding produced identical tokens")
			return nil
		},
	}
}
