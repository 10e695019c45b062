// Package artifact persists evaluation artifacts: append-only JSONL files
// for predictions and reviews, and pretty-printed JSON report documents.
package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	predictionsDirName = "predictions"
	reviewsDirName     = "reviews"
	reportsDirName     = "reports"
)

// Layout maps artifact kinds to paths under a single output root. Files are
// grouped per model so separate models never write to the same file.
type Layout struct {
	Root string
}

func (l Layout) PredictionsFile(model, dataset, subset string) string {
	return filepath.Join(l.Root, predictionsDirName, model, dataset+"_"+subset+".jsonl")
}

func (l Layout) ReviewsFile(model, dataset, subset string) string {
	return filepath.Join(l.Root, reviewsDirName, model, dataset+"_"+subset+".jsonl")
}

func (l Layout) ReportFile(model, dataset string) string {
	return filepath.Join(l.Root, reportsDirName, model, dataset+".json")
}

func (l Layout) ReportsDir() string {
	return filepath.Join(l.Root, reportsDirName)
}

// Store appends records to line-delimited JSON files. Appends are serialized
// through a mutex so every line on disk is one complete record; a crash
// between appends never corrupts previously written lines.
type Store struct {
	mu sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

// Append writes v as a single JSON line at the end of the file, creating the
// file and its parent directories if needed. The record and trailing newline
// go out in one Write call.
func (s *Store) Append(path string, v any) error {
	if s == nil {
		return errors.New("artifact: nil store")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("artifact: empty path")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("artifact: marshal record: %w", err)
	}
	line := append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: create dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("artifact: open %q: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("artifact: append to %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("artifact: close %q: %w", path, err)
	}
	return nil
}

// ReadAll returns every record in the file in file order. A missing file is
// not an error; it reads as empty.
func ReadAll(path string) ([]json.RawMessage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("artifact: empty path")
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: open %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out []json.RawMessage
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec := make(json.RawMessage, len(line))
		copy(rec, line)
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("artifact: read %q: %w", path, err)
	}
	return out, nil
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteJSON writes v as pretty-printed JSON (4-space indent), creating parent
// directories as needed. Used for report documents.
func WriteJSON(path string, v any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("artifact: empty path")
	}

	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("artifact: marshal %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: create dir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("artifact: write %q: %w", path, err)
	}
	return nil
}
