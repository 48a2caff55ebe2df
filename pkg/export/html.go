package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

type htmlNode struct {
	ID        string
	Timestamp string
	Prompt    string
	Response  template.HTML
	Children  []htmlNode
}

type htmlPage struct {
	SessionID  string
	ExportedAt string
	NodeCount  int
	Roots      []htmlNode
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Conversation {{.SessionID}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 860px; margin: 2rem auto; color: #1f2937; }
.node { border-left: 3px solid #2563eb; margin: 0.75rem 0 0.75rem 1rem; padding-left: 0.75rem; }
.prompt { font-weight: 600; white-space: pre-wrap; }
.meta { color: #6b7280; font-size: 0.8rem; }
pre { background: #f3f4f6; padding: 0.5rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>Conversation {{.SessionID}}</h1>
<p class="meta">Exported {{.ExportedAt}} &middot; {{.NodeCount}} messages</p>
{{range .Roots}}{{template "node" .}}{{end}}
</body>
</html>
{{define "node"}}<div class="node" id="node-{{.ID}}">
<div class="meta">{{.ID}}{{if .Timestamp}} &middot; {{.Timestamp}}{{end}}</div>
<div class="prompt">{{.Prompt}}</div>
<div class="response">{{.Response}}</div>
{{range .Children}}{{template "node" .}}{{end}}</div>
{{end}}`))

// HTML renders t as a standalone page. Responses are treated as Markdown;
// prompts are escaped verbatim.
func (e *Exporter) HTML(t tree.Tree) ([]byte, error) {
	roots, err := htmlNodes(t.Branches())
	if err != nil {
		return nil, err
	}
	page := htmlPage{
		SessionID:  t.SessionID,
		ExportedAt: e.clock().UTC().Format("2006-01-02 15:04:05 MST"),
		NodeCount:  len(t.Nodes),
		Roots:      roots,
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func htmlNodes(branches []*tree.Branch) ([]htmlNode, error) {
	out := make([]htmlNode, 0, len(branches))
	for _, b := range branches {
		body, err := MarkdownHTML(b.Response)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", b.ID, err)
		}
		children, err := htmlNodes(b.Children)
		if err != nil {
			return nil, err
		}
		out = append(out, htmlNode{
			ID:        b.ID,
			Timestamp: b.Timestamp,
			Prompt:    b.Prompt,
			// goldmark escapes raw HTML unless WithUnsafe is set.
			Response: template.HTML(body), // #nosec G203
			Children: children,
		})
	}
	return out, nil
}
