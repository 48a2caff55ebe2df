package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileBackend stores each session's log as a JSONL file.
// Storage layout:
//
//	<base_dir>/
//	  ├── <session-id>.jsonl
//	  └── <session-id>.jsonl
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileBackend creates a file-based backend.
// If baseDir is empty, uses ~/.pixelctx/stats.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".pixelctx", "stats")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{baseDir: baseDir}, nil
}

func (f *FileBackend) logPath(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", fmt.Errorf("%w: %q", err, sessionID)
	}
	return filepath.Join(f.baseDir, sessionID+".jsonl"), nil
}

// Append writes one JSON line to the session's log.
func (f *FileBackend) Append(ctx context.Context, sessionID string, stats CallStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}
	path, err := f.logPath(sessionID)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 - session id validated
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

// Load reads a session's log in order.
func (f *FileBackend) Load(ctx context.Context, sessionID string) ([]CallStats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStorageClosed
	}
	path, err := f.logPath(sessionID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) // #nosec G304 - session id validated
	if err != nil {
		if os.IsNotExist(err) {
			return []CallStats{}, nil
		}
		return nil, fmt.Errorf("open stats file: %w", err)
	}
	defer func() { _ = file.Close() }()

	calls := []CallStats{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c CallStats
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("parse stats line: %w", err)
		}
		calls = append(calls, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stats file: %w", err)
	}
	return calls, nil
}

// Replace rewrites a session's log through a temp file and rename.
func (f *FileBackend) Replace(ctx context.Context, sessionID string, calls []CallStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}
	path, err := f.logPath(sessionID)
	if err != nil {
		return err
	}

	var buf strings.Builder
	for _, c := range calls {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("write stats file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace stats file: %w", err)
	}
	return nil
}

// Delete removes the session's log file.
func (f *FileBackend) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}
	path, err := f.logPath(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stats file: %w", err)
	}
	return nil
}

// Sessions lists ids with a log file, sorted.
func (f *FileBackend) Sessions(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStorageClosed
	}
	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read stats directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close marks the backend closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
