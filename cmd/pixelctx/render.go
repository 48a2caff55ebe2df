package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/tokens"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <tree.json> <node_id>",
		Short: "Render the context of a node to a PNG",
		Args:  cobra.ExactArgs(2),
		RunE:  runRender,
	}
	cmd.Flags().StringP("output", "o", "context.png", "output file")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	t, err := readTree(args[0])
	if err != nil {
		return err
	}

	messages := tree.ResolveMessages(args[1], t.Nodes)
	if len(messages) == 0 {
		return fmt.Errorf("node %s not found in %s", args[1], args[0])
	}

	renderer, err := render.New(cfg.Render)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("output")
	n, err := writePNG(renderer, messages, out)
	if err != nil {
		return err
	}
	w, h, err := renderer.Measure(messages)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d messages to %s: %dx%d, %s, %d vision tokens\n",
		len(messages), out, w, h, humanize.Bytes(uint64(n)), tokens.ImageTokens(w, h))
	return nil
}

func readTree(path string) (tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tree.Tree{}, err
	}
	var t tree.Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return tree.Tree{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return tree.Tree{}, err
	}
	return t, nil
}
