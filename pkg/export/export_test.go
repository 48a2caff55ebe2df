package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

var exportedAt = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func testExporter(pdf bool) *Exporter {
	e := New(pdf)
	e.now = func() time.Time { return exportedAt }
	return e
}

func sampleTree() tree.Tree {
	return tree.Tree{
		SessionID: "s1",
		Nodes: []tree.Node{
			{ID: "a", Prompt: "Hi", Response: "Hello **there**"},
			{ID: "b", ParentID: "a", Prompt: "List fruit", Response: "- apple\n- pear"},
			{ID: "c", ParentID: "a", Prompt: "<b>bold?</b>", Response: "Use `code` and <script>x</script>"},
			{ID: "d", Prompt: "Second root", Response: "ok"},
		},
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "conversation_s1_20250314_150926.json", Filename("s1", "json", exportedAt))
	assert.Equal(t, "conversation_export_20250314_150926.pdf", Filename("", "pdf", exportedAt))
}

func TestJSON_Nested(t *testing.T) {
	data, err := testExporter(false).JSON(sampleTree())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "s1", doc.SessionID)
	assert.Equal(t, 4, doc.NodeCount)
	assert.True(t, doc.ExportedAt.Equal(exportedAt))
	require.Len(t, doc.Tree, 2)
	assert.Equal(t, "a", doc.Tree[0].ID)
	require.Len(t, doc.Tree[0].Children, 2)
	assert.Equal(t, "b", doc.Tree[0].Children[0].ID)
	assert.Equal(t, "c", doc.Tree[0].Children[1].ID)
	assert.Equal(t, "d", doc.Tree[1].ID)
	assert.Empty(t, doc.Tree[1].Children)
	assert.Equal(t, 1, doc.MaxDepth)
	assert.Equal(t, []string{"b", "c", "d"}, doc.Leaves)
}

func TestExport_ParentCycle(t *testing.T) {
	tr := tree.Tree{
		SessionID: "loop",
		Nodes: []tree.Node{
			{ID: "r", Prompt: "root", Response: "ok"},
			{ID: "a", ParentID: "b", Prompt: "first", Response: "one"},
			{ID: "b", ParentID: "a", Prompt: "second", Response: "two"},
		},
	}
	require.NoError(t, tr.Validate())

	data, err := testExporter(false).JSON(tr)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3, doc.NodeCount)
	require.Len(t, doc.Tree, 2)
	assert.Equal(t, "r", doc.Tree[0].ID)
	assert.Equal(t, "a", doc.Tree[1].ID)
	require.Len(t, doc.Tree[1].Children, 1)
	assert.Equal(t, "b", doc.Tree[1].Children[0].ID)
	assert.Equal(t, []string{"b", "r"}, doc.Leaves)
	assert.Equal(t, 1, doc.MaxDepth)

	page, err := testExporter(false).HTML(tr)
	require.NoError(t, err)
	assert.Contains(t, string(page), `id="node-a"`)
	assert.Contains(t, string(page), `id="node-b"`)

	pdf, err := testExporter(true).PDF(tr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestJSON_Empty(t *testing.T) {
	data, err := testExporter(false).JSON(tree.Tree{SessionID: "s"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tree": []`)
}

func TestHTML(t *testing.T) {
	data, err := testExporter(false).HTML(sampleTree())
	require.NoError(t, err)
	page := string(data)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<strong>there</strong>")
	assert.Contains(t, page, "<li>apple</li>")
	assert.Contains(t, page, "<code>code</code>")
	assert.Contains(t, page, "&lt;b&gt;bold?&lt;/b&gt;")
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, `id="node-b"`)
	assert.Contains(t, page, "4 messages")

	// b is nested inside a's block
	assert.Less(t, strings.Index(page, `id="node-a"`), strings.Index(page, `id="node-b"`))
}

func TestPDF_Disabled(t *testing.T) {
	_, err := testExporter(false).PDF(sampleTree())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeatureUnavailable))
}

func TestPDF(t *testing.T) {
	data, err := testExporter(true).PDF(sampleTree())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.True(t, bytes.Contains(data, []byte("%%EOF")))
}

func TestPDF_DeepTreeAndUnicode(t *testing.T) {
	tr := tree.Tree{SessionID: "deep"}
	parent := ""
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		tr.Nodes = append(tr.Nodes, tree.Node{ID: id, ParentID: parent, Prompt: "héllo ✓", Response: strings.Repeat("word ", 200)})
		parent = id
	}
	data, err := testExporter(true).PDF(tr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"emphasis", "a **b** _c_", "a b c"},
		{"list", "- one\n- two", "- one\n- two"},
		{"paragraphs", "first\n\nsecond", "first\n\nsecond"},
		{"code span", "run `go test`", "run go test"},
		{"fenced", "```\nx := 1\n```", "x := 1"},
		{"heading", "# Title\n\nbody", "Title\n\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
