// Package dataset holds the built-in benchmark adapters. Each adapter loads a
// local JSONL dump of the benchmark and implements the full scoring contract.
package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/benchkit/internal/eval"
)

const gsm8kInstruction = "Solve the following grade school math problem. " +
	"Think step by step, then give the final numeric answer on the last line."

// GSM8K scores free-form numeric answers against the reference solution.
// Records follow the upstream format: {"question": ..., "answer": "... #### N"}.
type GSM8K struct{}

func (GSM8K) Name() string { return "gsm8k" }

func (GSM8K) Metrics() []eval.Metric {
	return []eval.Metric{{Name: "AverageAccuracy"}}
}

func (g GSM8K) Load(ctx context.Context, spec eval.LoadSpec) (*eval.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHub(spec.Hub); err != nil {
		return nil, err
	}

	path := spec.Path
	if strings.TrimSpace(path) == "" {
		path = g.Name()
	}
	records, err := readJSONL(resolveDataPath(path, spec.WorkDir))
	if err != nil {
		return nil, err
	}

	ds := &eval.Dataset{Name: g.Name()}
	if subsetAllowed("main", spec.Subsets) {
		ds.Subsets = append(ds.Subsets, eval.Subset{Name: "main", Records: records})
	}
	return ds, nil
}

func (GSM8K) GenPrompts(ds *eval.Dataset) ([]eval.SubsetPrompts, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset: gsm8k: nil dataset")
	}

	var out []eval.SubsetPrompts
	for _, sub := range ds.Subsets {
		sp := eval.SubsetPrompts{Name: sub.Name}
		for i, rec := range sub.Records {
			q := asString(rec["question"])
			if strings.TrimSpace(q) == "" {
				return nil, fmt.Errorf("dataset: gsm8k: record %d in subset %q has no question", i, sub.Name)
			}
			sp.Prompts = append(sp.Prompts, eval.Prompt{
				ID:       asString(rec["id"]),
				RawInput: rec,
				System:   gsm8kInstruction,
				Messages: []eval.Message{{Role: "user", Content: q}},
			})
		}
		out = append(out, sp)
	}
	return out, nil
}

// GetGoldAnswer pulls the reference number after the "####" marker.
func (GSM8K) GetGoldAnswer(raw map[string]any) (any, error) {
	ans := asString(raw["answer"])
	if ans == "" {
		return nil, fmt.Errorf("dataset: gsm8k: record has no answer field")
	}
	if _, tail, ok := strings.Cut(ans, "####"); ok {
		ans = tail
	}
	num, ok := extractLastNumber(ans)
	if !ok {
		return nil, fmt.Errorf("dataset: gsm8k: no number in gold answer %q", ans)
	}
	return num, nil
}

// ParsePredResult extracts the model's final number. A completion with no
// number parses to the empty string; it will simply fail to match.
func (GSM8K) ParsePredResult(content string, raw map[string]any, evalType eval.EvalType) (any, error) {
	_ = raw
	if evalType == eval.EvalTypeCheckpoint {
		// Raw completions tend to keep generating past the solution;
		// score only the first solution block.
		if head, _, ok := strings.Cut(content, "Question:"); ok {
			content = head
		}
	}
	num, ok := extractLastNumber(content)
	if !ok {
		return "", nil
	}
	return num, nil
}

func (GSM8K) Match(gold, pred any) any {
	gf, gok := parseFloat(asString(gold))
	pf, pok := parseFloat(asString(pred))
	if gok && pok && almostEqual(gf, pf) {
		return 1.0
	}
	return 0.0
}

func (GSM8K) ComputeMetric(results []any) (any, error) {
	return meanResult(results), nil
}

func (GSM8K) GenReport(scores map[string]eval.SubsetScore, name string) (*eval.Report, error) {
	return accuracyReport(scores, name, "AverageAccuracy")
}
