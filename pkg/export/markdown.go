package export

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// The parser configuration never changes; Parse creates per-call state.
var (
	markdownOnce sync.Once
	markdownInst goldmark.Markdown
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInst = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInst
}

// MarkdownHTML converts model output to an HTML fragment. Raw HTML in the
// input is omitted by goldmark's default (unsafe disabled) renderer.
func MarkdownHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PlainText strips Markdown syntax, keeping one blank line between blocks
// and list items on their own lines.
func PlainText(md string) string {
	source := []byte(md)
	doc := markdown().Parser().Parse(text.NewReader(source))

	var out strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				out.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					out.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				out.Write(node.Value)
			}
		case *ast.CodeSpan:
			// children are Text nodes
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					out.Write(seg.Value(source))
				}
			}
		case *ast.ListItem:
			if entering {
				out.WriteString("- ")
			} else {
				ensureNewline(&out)
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				ensureNewline(&out)
				if n.Parent() == nil || n.Parent().Kind() != ast.KindListItem {
					out.WriteByte('\n')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(out.String())
}

func ensureNewline(b *strings.Builder) {
	s := b.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}
