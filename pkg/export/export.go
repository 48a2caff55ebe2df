// Package export renders a conversation tree as a JSON, PDF or HTML download.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

// ErrFeatureUnavailable is returned for export formats switched off in config.
var ErrFeatureUnavailable = errors.New("feature unavailable")

// Exporter renders trees. The zero value has PDF export disabled.
type Exporter struct {
	PDFEnabled bool
	now        func() time.Time
}

// New returns an exporter.
func New(pdfEnabled bool) *Exporter {
	return &Exporter{PDFEnabled: pdfEnabled, now: time.Now}
}

func (e *Exporter) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Document is the JSON export: the forest in nested form.
type Document struct {
	SessionID  string         `json:"session_id"`
	ExportedAt time.Time      `json:"exported_at"`
	NodeCount  int            `json:"node_count"`
	MaxDepth   int            `json:"max_depth"`
	Leaves     []string       `json:"leaves"`
	Tree       []*tree.Branch `json:"tree"`
}

// Filename returns conversation_<session>_<YYYYmmdd_HHMMSS>.<ext>.
func Filename(sessionID, ext string, at time.Time) string {
	if sessionID == "" {
		sessionID = "export"
	}
	return fmt.Sprintf("conversation_%s_%s.%s", sessionID, at.Format("20060102_150405"), ext)
}

// JSON renders t as an indented nested document.
func (e *Exporter) JSON(t tree.Tree) ([]byte, error) {
	doc := Document{
		SessionID:  t.SessionID,
		ExportedAt: e.clock().UTC(),
		NodeCount:  len(t.Nodes),
		Leaves:     t.Leaves(),
		Tree:       t.Branches(),
	}
	for _, d := range t.Depth() {
		doc.MaxDepth = max(doc.MaxDepth, d)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
