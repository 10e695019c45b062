package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stellarlinkco/benchkit/internal/eval"
)

const mmluInstruction = "The following is a multiple choice question. " +
	"Answer with the letter of the correct option only."

// MMLU scores multiple-choice questions grouped by subject. Records follow the
// upstream format: {"question": ..., "choices": [...], "answer": index-or-letter,
// "subject": ...}.
type MMLU struct{}

func (MMLU) Name() string { return "mmlu" }

func (MMLU) Metrics() []eval.Metric {
	return []eval.Metric{{Name: "AverageAccuracy"}}
}

func (m MMLU) Load(ctx context.Context, spec eval.LoadSpec) (*eval.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHub(spec.Hub); err != nil {
		return nil, err
	}

	path := spec.Path
	if strings.TrimSpace(path) == "" {
		path = m.Name()
	}
	records, err := readJSONL(resolveDataPath(path, spec.WorkDir))
	if err != nil {
		return nil, err
	}

	grouped := map[string][]map[string]any{}
	for _, rec := range records {
		subject := asString(rec["subject"])
		if subject == "" {
			subject = "default"
		}
		grouped[subject] = append(grouped[subject], rec)
	}

	names := make([]string, 0, len(grouped))
	for n := range grouped {
		if subsetAllowed(n, spec.Subsets) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	ds := &eval.Dataset{Name: m.Name()}
	for _, n := range names {
		ds.Subsets = append(ds.Subsets, eval.Subset{Name: n, Records: grouped[n]})
	}
	return ds, nil
}

func (MMLU) GenPrompts(ds *eval.Dataset) ([]eval.SubsetPrompts, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset: mmlu: nil dataset")
	}

	var out []eval.SubsetPrompts
	for _, sub := range ds.Subsets {
		sp := eval.SubsetPrompts{Name: sub.Name}
		for i, rec := range sub.Records {
			q := asString(rec["question"])
			choices := stringSlice(rec["choices"])
			if strings.TrimSpace(q) == "" || len(choices) == 0 {
				return nil, fmt.Errorf("dataset: mmlu: record %d in subset %q is missing question or choices", i, sub.Name)
			}
			sp.Prompts = append(sp.Prompts, eval.Prompt{
				ID:       asString(rec["id"]),
				RawInput: rec,
				System:   mmluInstruction,
				Messages: []eval.Message{{Role: "user", Content: formatMCQ(q, choices)}},
			})
		}
		out = append(out, sp)
	}
	return out, nil
}

func formatMCQ(question string, choices []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "%s. %s\n", choiceLetter(i), strings.TrimSpace(c))
	}
	b.WriteString("Answer:")
	return b.String()
}

// GetGoldAnswer normalizes the reference answer to a choice letter. Upstream
// dumps store it either as a zero-based index or as the letter itself.
func (MMLU) GetGoldAnswer(raw map[string]any) (any, error) {
	choices := stringSlice(raw["choices"])
	switch v := raw["answer"].(type) {
	case float64:
		idx := int(v)
		if idx < 0 || (len(choices) > 0 && idx >= len(choices)) {
			return nil, fmt.Errorf("dataset: mmlu: answer index %d out of range", idx)
		}
		return choiceLetter(idx), nil
	case string:
		s := strings.ToUpper(strings.TrimSpace(v))
		if len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z' {
			return s, nil
		}
		if f, ok := parseFloat(s); ok {
			idx := int(f)
			if idx < 0 || (len(choices) > 0 && idx >= len(choices)) {
				return nil, fmt.Errorf("dataset: mmlu: answer index %d out of range", idx)
			}
			return choiceLetter(idx), nil
		}
		return nil, fmt.Errorf("dataset: mmlu: unrecognized answer %q", v)
	case nil:
		return nil, fmt.Errorf("dataset: mmlu: record has no answer field")
	default:
		return nil, fmt.Errorf("dataset: mmlu: unrecognized answer type %T", v)
	}
}

// ParsePredResult finds the first standalone choice letter in the completion.
func (MMLU) ParsePredResult(content string, raw map[string]any, evalType eval.EvalType) (any, error) {
	_ = evalType
	max := 4
	if choices := stringSlice(raw["choices"]); len(choices) > 0 {
		max = len(choices)
	}
	idx, ok := extractLetterToken(content, max)
	if !ok {
		return "", nil
	}
	return choiceLetter(idx), nil
}

func (MMLU) Match(gold, pred any) any {
	g := strings.ToUpper(strings.TrimSpace(asString(gold)))
	p := strings.ToUpper(strings.TrimSpace(asString(pred)))
	if g != "" && g == p {
		return 1.0
	}
	return 0.0
}

func (MMLU) ComputeMetric(results []any) (any, error) {
	return meanResult(results), nil
}

func (MMLU) GenReport(scores map[string]eval.SubsetScore, name string) (*eval.Report, error) {
	return accuracyReport(scores, name, "AverageAccuracy")
}
