package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chartengine/config"
	"chartengine/internal/model"
)

func newComputeCmd(cfg *config.Config) *cobra.Command {
	var (
		file   string
		params model.Params
	)
	cmd := &cobra.Command{
		Use:   "compute KIND",
		Short: "Compute one indicator over JSON data read from --file or stdin",
		Long: `Compute one indicator. The data is either an array of closes or an
object with open, high, low, close and volume arrays; null marks a gap.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			data, err := model.DecodeData(raw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a := newApp(ctx, cfg, "chartctl")
			defer a.close(context.WithoutCancel(ctx))

			kind := model.Kind(strings.ToLower(args[0]))
			res, err := a.orch.Dispatcher().Calculate(ctx, kind, data, params)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "JSON data file (default stdin)")
	f.IntVar(&params.Period, "period", 0, "period for sma, ema, rsi, bollinger and atr")
	f.IntVar(&params.FastPeriod, "fast", 0, "MACD fast period")
	f.IntVar(&params.SlowPeriod, "slow", 0, "MACD slow period")
	f.IntVar(&params.SignalPeriod, "signal", 0, "MACD signal period")
	f.Float64Var(&params.StdDev, "stddev", 0, "Bollinger band width in standard deviations")
	f.IntVar(&params.KPeriod, "k", 0, "stochastic %K period")
	f.IntVar(&params.DPeriod, "d", 0, "stochastic %D period")
	return cmd
}

func readInput(file string, stdin io.Reader) (json.RawMessage, error) {
	if file == "" || file == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return b, nil
}

func kindNames() []string {
	out := make([]string, len(model.Kinds))
	for i, k := range model.Kinds {
		out[i] = string(k)
	}
	return out
}
