package chat

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// ArtifactSink writes every rendered context image to a directory as a
// debug artifact. Files accumulate until a retention sweep removes them.
type ArtifactSink struct {
	dir string
}

// NewArtifactSink creates dir if needed.
func NewArtifactSink(dir string) (*ArtifactSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &ArtifactSink{dir: dir}, nil
}

// Dir returns the artifact directory.
func (a *ArtifactSink) Dir() string {
	return a.dir
}

// ArtifactName returns context_<YYYYmmdd_HHMMSS>_<node_id>.png.
func ArtifactName(at time.Time, nodeID string) string {
	return fmt.Sprintf("context_%s_%s.png", at.Format("20060102_150405"), nodeID)
}

// Save writes png under the artifact name for at and nodeID.
func (a *ArtifactSink) Save(png []byte, nodeID string, at time.Time) (string, error) {
	if strings.ContainsAny(nodeID, `/\`) || strings.Contains(nodeID, "..") {
		return "", fmt.Errorf("invalid node id %q", nodeID)
	}
	path := filepath.Join(a.dir, ArtifactName(at, nodeID))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	log.Printf("[Artifacts] saved %s (%s)", path, humanize.Bytes(uint64(len(png))))
	return path, nil
}

// Sweep removes artifacts last modified before now-retention.
func (a *ArtifactSink) Sweep(retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("read artifact directory: %w", err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	var freed uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "context_") || !strings.HasSuffix(name, ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove artifact: %w", err)
		}
		removed++
		freed += uint64(info.Size())
	}
	if removed > 0 {
		log.Printf("[Artifacts] swept %d files (%s) older than %s", removed, humanize.Bytes(freed), humanize.Time(cutoff))
	}
	return removed, nil
}

// StartRetention schedules Sweep on a cron expression. The returned
// function stops the scheduler and waits for a running sweep.
func (a *ArtifactSink) StartRetention(schedule string, retention time.Duration) (func(), error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := a.Sweep(retention, time.Now()); err != nil {
			log.Printf("[Artifacts] sweep failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	log.Printf("[Artifacts] retention %s on schedule %q", retention, schedule)

	return func() {
		<-c.Stop().Done()
	}, nil
}
