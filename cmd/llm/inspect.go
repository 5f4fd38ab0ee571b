package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/shunzh/llm.ipynb/internal/model"
)

func inspectCmd() *cli.Command {
	var (
		path        string
		paramFilter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a checkpoint file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "checkpoint",
				Aliases:     []string{"m"},
				Usage:       "path to checkpoint JSON file",
				Destination: &path,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "substring filter for parameter listing",
				Destination: &paramFilter,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ck, err := model.LoadCheckpoint(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load checkpoint: %v", err), 1)
			}

			cfg := ck.Config
			fmt.Printf("hidden=%d ff=%d layers=%d vocab=%d max_seq=%d\n",
				cfg.HiddenSize, cfg.FFHiddenSize, cfg.NumHiddenLayers, cfg.VocabSize, cfg.MaxSeqLen)

			names := make([]string, 0, len(ck.Params))
			for name := range ck.Params {
				if paramFilter != "" && !strings.Contains(name, paramFilter) {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			total := 0
			for _, name := range names {
				p := ck.Params[name]
				fmt.Printf("%-32s %v (%d values)\n", name, p.Shape, len(p.Data))
				total += len(p.Data)
			}
			fmt.Printf("total: %d parameters in %d arrays\n", total, len(names))
			return nil
		},
	}
}
