package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/pkg/export"
	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/session"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

var replCommands = []string{"quit", "exit", "stats", "save", "export", "branch", "tree", "help"}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	cmd.Flags().String("session", "", "session id (generated when empty)")
	cmd.Flags().String("history", filepath.Join(os.TempDir(), ".pixelctx_history"), "line history file")
	return cmd
}

// repl is a terminal conversation. Each turn is appended below the current
// parent, which the branch command can move.
type repl struct {
	app       *app
	sessionID string
	tree      tree.Tree
	parent    string
	out       io.Writer
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	r := &repl{
		app:       a,
		sessionID: sessionID,
		tree:      tree.Tree{SessionID: sessionID},
		out:       cmd.OutOrStdout(),
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var c []string
		for _, name := range replCommands {
			if strings.HasPrefix(name, strings.ToLower(in)) {
				c = append(c, name)
			}
		}
		return c
	})

	historyPath, _ := cmd.Flags().GetString("history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(r.out, strings.Repeat("=", 60))
	fmt.Fprintf(r.out, "pixelctx chat (session %s, provider %s)\n", sessionID, cfg.Provider.Name)
	fmt.Fprintln(r.out, "Type 'quit' to exit, 'stats' for context statistics")
	fmt.Fprintln(r.out, "Type 'save' to save the context image, 'help' for more")
	fmt.Fprintln(r.out, strings.Repeat("=", 60))

	for {
		input, err := line.Prompt("You: ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if done := r.handle(cmd.Context(), input); done {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
	}
}

// handle runs one line of input and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "stats":
		r.printStats(ctx)
		return false
	case "save":
		r.saveContextImage(arg)
		return false
	case "export":
		r.exportTree(arg)
		return false
	case "branch":
		r.branch(arg)
		return false
	case "tree":
		r.printTree()
		return false
	case "help":
		fmt.Fprintln(r.out, "quit | stats | save [file.png] | export [file.json] | branch <node_id> | tree")
		return false
	}

	r.send(ctx, input)
	return false
}

func (r *repl) send(ctx context.Context, input string) {
	res, err := r.app.chat.Send(ctx, chat.SendRequest{
		SessionID:    r.sessionID,
		UserMessage:  input,
		ParentNodeID: r.parent,
		Tree:         r.tree,
	})
	if err != nil {
		fmt.Fprintf(r.out, "\nError: %v\n", err)
		fmt.Fprintln(r.out, "Please try again or type 'quit' to exit.")
		return
	}

	r.tree.Nodes = append(r.tree.Nodes, tree.Node{
		ID:        res.NodeID,
		ParentID:  r.parent,
		Prompt:    input,
		Response:  res.Response,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	r.parent = res.NodeID

	fmt.Fprintf(r.out, "\nModel: %s\n\n", res.Response)
	if res.ContextMessages > 0 {
		fmt.Fprintf(r.out, "  [context %d messages, image %dx%d (%s), vision %d, text %d, equivalent %d, savings %d]\n\n",
			res.ContextMessages, res.ImageWidth, res.ImageHeight, humanize.Bytes(uint64(len(res.ContextPNG))),
			res.VisionTokens, res.TextTokens, res.TextEquivalentTokens, res.Savings)
	}
}

func (r *repl) printStats(ctx context.Context) {
	summary, err := r.app.chat.Summary(ctx, r.sessionID)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	printSummary(r.out, summary)
}

func printSummary(w io.Writer, s session.Summary) {
	fmt.Fprintln(w, "\n--- Context Statistics ---")
	fmt.Fprintf(w, "session_id: %s\n", s.SessionID)
	fmt.Fprintf(w, "total_api_calls: %d\n", s.TotalAPICalls)
	fmt.Fprintf(w, "total_vision_tokens: %s\n", humanize.Comma(int64(s.TotalVisionTokens)))
	fmt.Fprintf(w, "total_text_tokens: %s\n", humanize.Comma(int64(s.TotalTextTokens)))
	fmt.Fprintf(w, "total_text_equivalent_tokens: %s\n", humanize.Comma(int64(s.TotalTextEquivalentTokens)))
	fmt.Fprintf(w, "total_token_savings: %s\n", humanize.Comma(int64(s.TotalTokenSavings)))
	fmt.Fprintf(w, "average_savings_per_call: %.1f\n", s.AverageSavingsPerCall)
	fmt.Fprintf(w, "estimated_savings_usd: $%.6f\n", s.EstimatedSavingsUSD)
	fmt.Fprintln(w, "-------------------------")
}

// saveContextImage renders what the next turn would send as context.
func (r *repl) saveContextImage(path string) {
	messages := tree.ResolveMessages(r.parent, r.tree.Nodes)
	if len(messages) == 0 {
		fmt.Fprintln(r.out, "No context image to save yet.")
		return
	}
	if path == "" {
		path = fmt.Sprintf("context_%s.png", time.Now().Format("20060102_150405"))
	}
	n, err := writePNG(r.app.chat.Renderer(), messages, path)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Context image saved to %s (%s)\n", path, humanize.Bytes(uint64(n)))
}

func (r *repl) exportTree(path string) {
	if path == "" {
		path = export.Filename(r.sessionID, "json", time.Now())
	}
	data, err := r.app.exporter.JSON(r.tree)
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Conversation exported to %s\n", path)
}

func (r *repl) branch(nodeID string) {
	if nodeID == "" {
		r.parent = ""
		fmt.Fprintln(r.out, "Next message starts a new root.")
		return
	}
	if _, ok := tree.Index(r.tree.Nodes)[nodeID]; !ok {
		fmt.Fprintf(r.out, "Unknown node %s\n", nodeID)
		return
	}
	r.parent = nodeID
	fmt.Fprintf(r.out, "Continuing from %s\n", nodeID)
}

func (r *repl) printTree() {
	var walk func(bs []*tree.Branch, depth int)
	walk = func(bs []*tree.Branch, depth int) {
		for _, b := range bs {
			marker := " "
			if b.ID == r.parent {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s%s: %s\n", marker, strings.Repeat("  ", depth), b.ID, truncate(b.Prompt, 60))
			walk(b.Children, depth+1)
		}
	}
	walk(r.tree.Branches(), 0)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// writePNG renders messages to path and returns the file size.
func writePNG(renderer *render.Renderer, messages []tree.Message, path string) (int, error) {
	img, err := renderer.Render(messages)
	if err != nil {
		return 0, err
	}
	data, err := render.EncodePNG(img)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}
