package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/internal/llm/cost"
	"github.com/aixgo-dev/pixelctx/pkg/render"
)

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <tree.json>",
		Short: "Estimate per-node token savings of a conversation without calling a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runEstimate,
	}
}

func runEstimate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	t, err := readTree(args[0])
	if err != nil {
		return err
	}
	renderer, err := render.New(cfg.Render)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tCONTEXT\tIMAGE\tVISION\tTEXT\tEQUIVALENT\tSAVINGS")
	total := 0
	for _, n := range t.Nodes {
		est, err := chat.EstimateNode(renderer, n, t.Nodes)
		if err != nil {
			return err
		}
		total += est.Savings
		fmt.Fprintf(tw, "%s\t%d\t%dx%d\t%d\t%d\t%d\t%d\n",
			n.ID, est.ContextMessages, est.ImageWidth, est.ImageHeight,
			est.VisionTokens, est.TextTokens, est.TextEquivalentTokens, est.Savings)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\ntotal savings: %s tokens", humanize.Comma(int64(total)))
	if usd, err := cost.DefaultCalculator.InputSavings(cfg.Provider.PricingModel, total); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), " (~$%.6f on %s)", usd, cfg.Provider.PricingModel)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models with known input pricing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			calc := cost.DefaultCalculator
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tINPUT $/1M\tOUTPUT $/1M")
			for _, name := range calc.ListModels() {
				p, _ := calc.GetPricing(name)
				fmt.Fprintf(tw, "%s\t%.3f\t%.3f\n", name, p.InputPer1M, p.OutputPer1M)
			}
			return tw.Flush()
		},
	}
}
