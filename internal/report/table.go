// Package report renders cross-report summary tables from persisted report
// documents.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
)

type row struct {
	Model   string  `json:"model_name"`
	Dataset string  `json:"dataset_name"`
	Metric  string  `json:"metric"`
	Score   float64 `json:"score"`
	Count   int     `json:"total_count"`
}

// GenTable walks one or more report roots (reports/<model>/<dataset>.json)
// and renders every report as a summary table row, sorted by model then
// dataset. It returns an error when no report can be read; callers treat
// table rendering as best effort.
func GenTable(roots ...string) (string, error) {
	if len(roots) == 0 {
		return "", errors.New("report: no report roots given")
	}

	var rows []row
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		found, err := collectRows(root)
		if err != nil {
			return "", err
		}
		rows = append(rows, found...)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("report: no reports found under %s", strings.Join(roots, ", "))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Model != rows[j].Model {
			return rows[i].Model < rows[j].Model
		}
		return rows[i].Dataset < rows[j].Dataset
	})

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tDATASET\tMETRIC\tSCORE\tCOUNT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%d\n", r.Model, r.Dataset, r.Metric, r.Score, r.Count)
	}
	if err := tw.Flush(); err != nil {
		return "", fmt.Errorf("report: render table: %w", err)
	}
	return buf.String(), nil
}

func collectRows(root string) ([]row, error) {
	var rows []row
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}

		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("report: read %q: %w", path, readErr)
		}
		var r row
		if jsonErr := json.Unmarshal(b, &r); jsonErr != nil {
			return fmt.Errorf("report: parse %q: %w", path, jsonErr)
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
