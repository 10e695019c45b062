package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/stellarlinkco/benchkit/internal/eval"
)

func checkHub(hub eval.Hub) error {
	switch hub {
	case "", eval.HubLocal:
		return nil
	case eval.HubModelScope, eval.HubHuggingFace:
		return fmt.Errorf("dataset: hub %q not supported, download the dataset and use the local hub", hub)
	default:
		return fmt.Errorf("dataset: unknown hub %q", hub)
	}
}

// resolveDataPath turns a dataset name or path into a JSONL file path. Bare
// names get a .jsonl suffix; relative paths are rooted at workDir.
func resolveDataPath(path, workDir string) string {
	path = strings.TrimSpace(path)
	if filepath.Ext(path) == "" {
		path += ".jsonl"
	}
	if filepath.IsAbs(path) {
		return path
	}
	if workDir = strings.TrimSpace(workDir); workDir != "" {
		return filepath.Join(workDir, path)
	}
	return path
}

func readJSONL(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var out []map[string]any
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("dataset: parse %q: %w", path, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	return out, nil
}

func subsetAllowed(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return true
		}
	}
	return false
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	default:
		return nil
	}
}

func extractLastNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	start, end := -1, -1
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' {
			end = i + 1
			start = i
			for start > 0 {
				pc := s[start-1]
				if (pc >= '0' && pc <= '9') || pc == '.' || pc == ',' || pc == '-' {
					start--
					continue
				}
				break
			}
			break
		}
	}
	if start < 0 || start >= end {
		return "", false
	}
	raw := strings.ReplaceAll(strings.TrimSpace(s[start:end]), ",", "")
	raw = strings.Trim(raw, ".")
	if raw == "" || raw == "-" {
		return "", false
	}
	return raw, true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// extractLetterToken finds the first standalone choice letter in s, bounded
// by max choices.
func extractLetterToken(s string, max int) (int, bool) {
	if max <= 0 {
		max = 4
	}
	if max > 26 {
		max = 26
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c = c - 'a' + 'A'
		}
		if c < 'A' || c > 'Z' {
			continue
		}
		idx := int(c - 'A')
		if idx >= max {
			continue
		}
		prevOK := i == 0 || !isAlphaNum(s[i-1])
		nextOK := i+1 == len(s) || !isAlphaNum(s[i+1])
		if prevOK && nextOK {
			return idx, true
		}
	}
	return -1, false
}

func choiceLetter(i int) string {
	return string(rune('A' + i))
}

// meanResult averages verdict results, treating float64 and bool verdicts
// uniformly.
func meanResult(results []any) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		switch v := r.(type) {
		case float64:
			sum += v
		case bool:
			if v {
				sum++
			}
		case int:
			sum += float64(v)
		}
	}
	return sum / float64(len(results))
}

// accuracyReport shapes the standard accuracy report: one row per subset in
// sorted order, with a count-weighted overall score.
func accuracyReport(scores map[string]eval.SubsetScore, name, metric string) (*eval.Report, error) {
	if name = strings.TrimSpace(name); name == "" {
		return nil, errors.New("dataset: empty report name")
	}

	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)

	rep := &eval.Report{Name: name, Metric: metric}
	var weighted float64
	for _, n := range names {
		s := scores[n]
		f, _ := s.Score.(float64)
		rep.Subsets = append(rep.Subsets, eval.SubsetResult{Name: n, Score: f, Count: s.Count})
		weighted += f * float64(s.Count)
		rep.TotalCount += s.Count
	}
	if rep.TotalCount > 0 {
		rep.Score = weighted / float64(rep.TotalCount)
	}
	return rep, nil
}
