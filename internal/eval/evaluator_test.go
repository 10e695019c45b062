package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stellarlinkco/benchkit/internal/artifact"
)

type fakeAdapter struct {
	subsets  []SubsetPrompts
	loadErr  error
	parseErr error
}

func (a *fakeAdapter) Name() string      { return "fake" }
func (a *fakeAdapter) Metrics() []Metric { return []Metric{{Name: "AverageAccuracy"}} }

func (a *fakeAdapter) Load(ctx context.Context, spec LoadSpec) (*Dataset, error) {
	_ = ctx
	_ = spec
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	return &Dataset{Name: "fake"}, nil
}

func (a *fakeAdapter) GenPrompts(ds *Dataset) ([]SubsetPrompts, error) {
	_ = ds
	return a.subsets, nil
}

func (a *fakeAdapter) GetGoldAnswer(raw map[string]any) (any, error) {
	return raw["gold"], nil
}

func (a *fakeAdapter) ParsePredResult(content string, raw map[string]any, et EvalType) (any, error) {
	_ = raw
	_ = et
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return strings.TrimSpace(content), nil
}

func (a *fakeAdapter) Match(gold, pred any) any {
	if fmt.Sprint(gold) == fmt.Sprint(pred) {
		return 1.0
	}
	return 0.0
}

func (a *fakeAdapter) ComputeMetric(results []any) (any, error) {
	if len(results) == 0 {
		return 0.0, nil
	}
	var sum float64
	for _, r := range results {
		if f, ok := r.(float64); ok {
			sum += f
		}
	}
	return sum / float64(len(results)), nil
}

func (a *fakeAdapter) GenReport(scores map[string]SubsetScore, name string) (*Report, error) {
	names := make([]string, 0, len(scores))
	for n := range scores {
		names = append(names, n)
	}
	sort.Strings(names)

	rep := &Report{Name: name, Metric: "AverageAccuracy"}
	var weighted float64
	for _, n := range names {
		s := scores[n]
		f, _ := s.Score.(float64)
		rep.Subsets = append(rep.Subsets, SubsetResult{Name: n, Score: f, Count: s.Count})
		weighted += f * float64(s.Count)
		rep.TotalCount += s.Count
	}
	if rep.TotalCount > 0 {
		rep.Score = weighted / float64(rep.TotalCount)
	}
	return rep, nil
}

type fakePredictor struct {
	calls int
	fn    func(p *Prompt) (*Prediction, error)
}

func (p *fakePredictor) ModelConfig() map[string]any {
	return map[string]any{"model": "fake-model", "provider": "fake"}
}

func (p *fakePredictor) Predict(ctx context.Context, pr *Prompt, cfg InferConfig) (*Prediction, error) {
	_ = ctx
	_ = cfg
	p.calls++
	if p.fn == nil {
		return &Prediction{}, nil
	}
	return p.fn(pr)
}

type fakeBatchPredictor struct {
	fakePredictor
	batchCalls int
	batchFn    func(prompts []Prompt) ([]Prediction, error)
}

func (p *fakeBatchPredictor) PredictBatch(ctx context.Context, prompts []Prompt, cfg InferConfig) ([]Prediction, error) {
	_ = ctx
	_ = cfg
	p.batchCalls++
	return p.batchFn(prompts)
}

func correctChoice() *Prediction {
	return &Prediction{Choices: []Choice{{
		Index:   0,
		Message: Message{Role: "assistant", Content: "4"},
	}}}
}

func makePrompts(n int) []Prompt {
	out := make([]Prompt, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p-%d", i)
		out = append(out, Prompt{
			ID:       id,
			RawInput: map[string]any{"id": id, "gold": "4"},
			Messages: []Message{{Role: "user", Content: "what is 2+2?"}},
		})
	}
	return out
}

func testOptions(root string) Options {
	return Options{
		ModelName:   "fake-model",
		DatasetPath: "fake",
		Stage:       StageAll,
		EvalType:    EvalTypeService,
	}
}

func newTestEvaluator(t *testing.T, root string, pred Predictor, opts Options) (*Evaluator, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{subsets: []SubsetPrompts{{Name: "main", Prompts: makePrompts(3)}}}
	ev, err := New(ad, pred, artifact.Layout{Root: root}, opts, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ev, ad
}

func TestNewValidation(t *testing.T) {
	layout := artifact.Layout{Root: t.TempDir()}

	if _, err := New(nil, &fakePredictor{}, layout, testOptions(""), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("nil adapter: got %v, want ErrConfiguration", err)
	}

	opts := testOptions("")
	opts.ModelName = ""
	if _, err := New(&fakeAdapter{}, &fakePredictor{}, layout, opts, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty model name: got %v, want ErrConfiguration", err)
	}
}

func TestInferEmptyPrompts(t *testing.T) {
	ev, _ := newTestEvaluator(t, t.TempDir(), &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}, testOptions(""))

	if _, err := ev.Infer(context.Background(), "main", nil, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}

func TestInferNilPredictor(t *testing.T) {
	ev, _ := newTestEvaluator(t, t.TempDir(), nil, testOptions(""))

	if _, err := ev.Infer(context.Background(), "main", makePrompts(1), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}

func TestInferOrderPreservation(t *testing.T) {
	root := t.TempDir()
	pred := &fakePredictor{fn: func(p *Prompt) (*Prediction, error) {
		return &Prediction{Choices: []Choice{{Message: Message{Role: "assistant", Content: p.ID}}}}, nil
	}}
	ev, _ := newTestEvaluator(t, root, pred, testOptions(root))

	prompts := makePrompts(5)
	answers, err := ev.Infer(context.Background(), "main", prompts, nil)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(answers) != 5 {
		t.Fatalf("got %d answers, want 5", len(answers))
	}

	path := artifact.Layout{Root: root}.PredictionsFile("fake-model", "fake", "main")
	raws, err := artifact.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(raws) != 5 {
		t.Fatalf("got %d persisted lines, want 5", len(raws))
	}
	for i, raw := range raws {
		var ans Answer
		if err := json.Unmarshal(raw, &ans); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got, want := ans.RawInput["id"], prompts[i].ID; got != want {
			t.Fatalf("line %d holds %v, want prompt %q", i, got, want)
		}
		if ans.Choices[0].Message.Content != prompts[i].ID {
			t.Fatalf("line %d choice content %q, want %q", i, ans.Choices[0].Message.Content, prompts[i].ID)
		}
	}
}

func TestInferResumeSkipsCachedPrefix(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.UseCache = true

	pred1 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev1, _ := newTestEvaluator(t, root, pred1, opts)

	prompts := makePrompts(3)
	first, err := ev1.Infer(context.Background(), "main", prompts, nil)
	if err != nil {
		t.Fatalf("first Infer: %v", err)
	}
	if pred1.calls != 3 {
		t.Fatalf("first run made %d predictor calls, want 3", pred1.calls)
	}

	path := artifact.Layout{Root: root}.PredictionsFile("fake-model", "fake", "main")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	pred2 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev2, _ := newTestEvaluator(t, root, pred2, opts)

	second, err := ev2.Infer(context.Background(), "main", prompts, nil)
	if err != nil {
		t.Fatalf("second Infer: %v", err)
	}
	if pred2.calls != 0 {
		t.Fatalf("cached run made %d predictor calls, want 0", pred2.calls)
	}
	if len(second) != len(first) {
		t.Fatalf("cached run returned %d answers, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("answer %d id changed: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("prediction file changed on a fully cached run")
	}
}

func TestInferResumePartialCache(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.UseCache = true

	prompts := makePrompts(4)

	pred1 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev1, _ := newTestEvaluator(t, root, pred1, opts)
	if _, err := ev1.Infer(context.Background(), "main", prompts[:2], nil); err != nil {
		t.Fatalf("seed Infer: %v", err)
	}

	pred2 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev2, _ := newTestEvaluator(t, root, pred2, opts)
	answers, err := ev2.Infer(context.Background(), "main", prompts, nil)
	if err != nil {
		t.Fatalf("resumed Infer: %v", err)
	}
	if pred2.calls != 2 {
		t.Fatalf("resumed run made %d predictor calls, want 2", pred2.calls)
	}
	if len(answers) != 4 {
		t.Fatalf("got %d answers, want 4", len(answers))
	}
}

func TestInferBatchContractViolation(t *testing.T) {
	root := t.TempDir()
	pred := &fakeBatchPredictor{batchFn: func(prompts []Prompt) ([]Prediction, error) {
		return make([]Prediction, len(prompts)-1), nil
	}}
	ev, _ := newTestEvaluator(t, root, pred, testOptions(root))

	_, err := ev.Infer(context.Background(), "main", makePrompts(3), nil)
	if !errors.Is(err, ErrBatchContract) {
		t.Fatalf("got %v, want ErrBatchContract", err)
	}
}

func TestInferBatchPersistsInOrder(t *testing.T) {
	root := t.TempDir()
	pred := &fakeBatchPredictor{batchFn: func(prompts []Prompt) ([]Prediction, error) {
		out := make([]Prediction, 0, len(prompts))
		for _, p := range prompts {
			out = append(out, Prediction{Choices: []Choice{{Message: Message{Role: "assistant", Content: p.ID}}}})
		}
		return out, nil
	}}
	ev, _ := newTestEvaluator(t, root, pred, testOptions(root))

	prompts := makePrompts(3)
	answers, err := ev.Infer(context.Background(), "main", prompts, nil)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if pred.batchCalls != 1 {
		t.Fatalf("made %d batch calls, want 1", pred.batchCalls)
	}
	for i := range answers {
		if answers[i].Choices[0].Message.Content != prompts[i].ID {
			t.Fatalf("answer %d out of order", i)
		}
	}
}

func TestReviewEmptyChoicesIsUnreviewed(t *testing.T) {
	root := t.TempDir()
	ev, _ := newTestEvaluator(t, root, &fakePredictor{}, testOptions(root))

	answers := []Answer{{
		ID:       "answer-empty",
		Subset:   "main",
		RawInput: map[string]any{"gold": "4"},
	}}
	reviews, err := ev.Review(context.Background(), "main", answers)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("got %d reviews, want 1", len(reviews))
	}
	rev := reviews[0]
	if rev.Reviewed {
		t.Fatal("empty-choice answer marked reviewed")
	}
	if rev.ReviewID != "" {
		t.Fatalf("empty-choice review has id %q", rev.ReviewID)
	}
	if len(rev.Choices) != 0 {
		t.Fatal("empty-choice review carries verdicts")
	}
}

func TestReviewAttachesVerdictsWithoutMutatingAnswers(t *testing.T) {
	root := t.TempDir()
	ev, _ := newTestEvaluator(t, root, &fakePredictor{}, testOptions(root))

	answers := []Answer{{
		ID:       "answer-1",
		Subset:   "main",
		RawInput: map[string]any{"gold": "4"},
		Choices:  []Choice{{Message: Message{Role: "assistant", Content: "4"}}},
	}}
	reviews, err := ev.Review(context.Background(), "main", answers)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	rev := reviews[0]
	if !rev.Reviewed {
		t.Fatal("review not marked reviewed")
	}
	if !strings.HasPrefix(rev.ReviewID, "review-") {
		t.Fatalf("bad review id %q", rev.ReviewID)
	}
	v := rev.Choices[0].Review
	if v == nil {
		t.Fatal("missing verdict")
	}
	if v.Gold != "4" || v.Pred != "4" {
		t.Fatalf("verdict gold=%v pred=%v", v.Gold, v.Pred)
	}
	if r, ok := v.Result.(float64); !ok || r != 1.0 {
		t.Fatalf("verdict result = %v", v.Result)
	}
	if answers[0].Choices[0].Review != nil {
		t.Fatal("review mutated the input answer")
	}
}

func TestReviewFileAlwaysAppended(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.UseCache = true
	ev, _ := newTestEvaluator(t, root, &fakePredictor{}, opts)

	answers := []Answer{{
		ID:       "answer-1",
		Subset:   "main",
		RawInput: map[string]any{"gold": "4"},
		Choices:  []Choice{{Message: Message{Role: "assistant", Content: "4"}}},
	}}

	if _, err := ev.Review(context.Background(), "main", answers); err != nil {
		t.Fatalf("first Review: %v", err)
	}
	if _, err := ev.Review(context.Background(), "main", answers); err != nil {
		t.Fatalf("second Review: %v", err)
	}

	path := artifact.Layout{Root: root}.ReviewsFile("fake-model", "fake", "main")
	raws, err := artifact.ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 2 {
		t.Fatalf("review file has %d lines, want 2 (reviews are re-appended, never reused)", len(raws))
	}
}

func TestComputeMetricsSkipsUnreviewed(t *testing.T) {
	root := t.TempDir()
	ev, _ := newTestEvaluator(t, root, &fakePredictor{}, testOptions(root))

	reviewed := Review{
		Answer: Answer{
			ID:      "answer-ok",
			Choices: []Choice{{Review: &Verdict{Result: 1.0}}},
		},
		Reviewed: true,
	}
	skipped := Review{Answer: Answer{ID: "answer-empty"}, Reviewed: false}

	score, counted, err := ev.ComputeMetrics([]Review{reviewed, skipped, reviewed})
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if counted != 2 {
		t.Fatalf("counted %d reviews, want 2", counted)
	}
	if f, ok := score.(float64); !ok || f != 1.0 {
		t.Fatalf("score = %v, want 1.0", score)
	}
}

func TestRunScenarioA(t *testing.T) {
	root := t.TempDir()
	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev, _ := newTestEvaluator(t, root, pred, testOptions(root))

	res, err := ev.Run(context.Background(), InferConfig{"temperature": 0.0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Answers["main"]) != 3 {
		t.Fatalf("got %d answers, want 3", len(res.Answers["main"]))
	}
	if len(res.Reviews["main"]) != 3 {
		t.Fatalf("got %d reviews, want 3", len(res.Reviews["main"]))
	}
	for i, rev := range res.Reviews["main"] {
		if !rev.Reviewed {
			t.Fatalf("review %d not reviewed", i)
		}
	}
	if res.Report == nil {
		t.Fatal("missing report")
	}
	if res.Report.Score != 1.0 || res.Report.TotalCount != 3 {
		t.Fatalf("report score=%v count=%d, want 1.0/3", res.Report.Score, res.Report.TotalCount)
	}
	if res.Report.ModelName != "fake-model" || res.Report.DatasetName != "fake" {
		t.Fatalf("report metadata %q/%q", res.Report.ModelName, res.Report.DatasetName)
	}

	repPath := artifact.Layout{Root: root}.ReportFile("fake-model", "fake")
	if !artifact.Exists(repPath) {
		t.Fatalf("report file %q not written", repPath)
	}
}

func TestRunScenarioBCachedRerun(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.UseCache = true

	pred1 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev1, _ := newTestEvaluator(t, root, pred1, opts)
	res1, err := ev1.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	pred2 := &fakePredictor{fn: func(*Prompt) (*Prediction, error) {
		t.Fatal("predictor invoked on a fully cached run")
		return nil, nil
	}}
	ev2, _ := newTestEvaluator(t, root, pred2, opts)
	res2, err := ev2.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if pred2.calls != 0 {
		t.Fatalf("cached run made %d predictor calls", pred2.calls)
	}

	a1, _ := json.Marshal(res1.Answers["main"])
	a2, _ := json.Marshal(res2.Answers["main"])
	if string(a1) != string(a2) {
		t.Fatal("cached run returned a different answer list")
	}

	r1 := res1.Reviews["main"]
	r2 := res2.Reviews["main"]
	for i := range r1 {
		if r1[i].ReviewID != r2[i].ReviewID {
			t.Fatalf("review %d id changed", i)
		}
		v1, _ := json.Marshal(r1[i].Choices)
		v2, _ := json.Marshal(r2[i].Choices)
		if string(v1) != string(v2) {
			t.Fatalf("review %d verdicts changed", i)
		}
	}
	if res1.Report.Score != res2.Report.Score {
		t.Fatal("cached run changed the report score")
	}
}

func TestRunScenarioCEmptyChoiceAnswer(t *testing.T) {
	root := t.TempDir()
	n := 0
	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) {
		n++
		if n == 2 {
			return &Prediction{}, nil
		}
		return correctChoice(), nil
	}}
	ev, _ := newTestEvaluator(t, root, pred, testOptions(root))

	res, err := ev.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Reviews["main"]) != 3 {
		t.Fatalf("got %d reviews, want 3", len(res.Reviews["main"]))
	}
	if res.Report.TotalCount != 2 {
		t.Fatalf("report counted %d reviews, want 2 (empty-choice answer skipped)", res.Report.TotalCount)
	}
	if res.Report.Score != 1.0 {
		t.Fatalf("report score = %v, want 1.0 over the 2 reviewed answers", res.Report.Score)
	}
}

func TestRunStageInfer(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.Stage = StageInfer
	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev, _ := newTestEvaluator(t, root, pred, opts)

	res, err := ev.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Answers["main"]) != 3 {
		t.Fatalf("got %d answers, want 3", len(res.Answers["main"]))
	}
	if len(res.Reviews) != 0 || res.Report != nil {
		t.Fatal("infer stage produced reviews or a report")
	}
	if artifact.Exists(artifact.Layout{Root: root}.ReviewsFile("fake-model", "fake", "main")) {
		t.Fatal("infer stage wrote a review file")
	}
}

func TestRunStageReview(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.Stage = StageReview
	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev, _ := newTestEvaluator(t, root, pred, opts)

	res, err := ev.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Reviews["main"]) != 3 {
		t.Fatalf("got %d reviews, want 3", len(res.Reviews["main"]))
	}
	if res.Report != nil {
		t.Fatal("review stage produced a report")
	}
	if artifact.Exists(artifact.Layout{Root: root}.ReportFile("fake-model", "fake")) {
		t.Fatal("review stage wrote a report file")
	}
}

func TestRunAppliesSampleLimit(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.Limit = 2
	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev, _ := newTestEvaluator(t, root, pred, opts)

	res, err := ev.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Answers["main"]) != 2 {
		t.Fatalf("got %d answers, want 2", len(res.Answers["main"]))
	}
	if pred.calls != 2 {
		t.Fatalf("made %d predictor calls, want 2", pred.calls)
	}
}

func TestRunTableFailureIsNonFatal(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.UseTable = true

	// A malformed report from another model makes table rendering fail.
	otherDir := filepath.Join(root, "reports", "other-model")
	if err := os.MkdirAll(otherDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(otherDir, "bad.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	pred := &fakePredictor{fn: func(*Prompt) (*Prediction, error) { return correctChoice(), nil }}
	ev, _ := newTestEvaluator(t, root, pred, opts)

	res, err := ev.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed because of table rendering: %v", err)
	}
	if res.Report == nil {
		t.Fatal("missing report")
	}
}

func TestRunLoadError(t *testing.T) {
	root := t.TempDir()
	ad := &fakeAdapter{loadErr: errors.New("boom")}
	ev, err := New(ad, &fakePredictor{}, artifact.Layout{Root: root}, testOptions(root), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := ev.Run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("got %v, want load error", err)
	}
}
