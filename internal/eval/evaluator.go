// Package eval drives a model through a benchmark dataset: inference,
// review against gold answers, metric aggregation, and report generation.
// Every intermediate artifact is appended to disk as soon as it is produced,
// so an interrupted run can resume from what is already persisted.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/stellarlinkco/benchkit/internal/artifact"
	"github.com/stellarlinkco/benchkit/internal/ident"
	"github.com/stellarlinkco/benchkit/internal/report"
)

const (
	reviewerName    = "Evaluator"
	defaultRevision = "default"
)

// Options configures one evaluation run.
type Options struct {
	ModelName   string
	DatasetPath string   // dataset name or local path; the report is keyed by its basename
	Subsets     []string // optional subset filter
	DatasetsDir string
	Hub         Hub
	Stage       Stage
	EvalType    EvalType
	UseCache    bool // reuse persisted predictions and skip answered prompts
	Limit       int  // truncate each subset's prompt list to the first N; 0 means all
	Debug       bool // verbose per-item logging
	UseTable    bool // render a summary table after the report is written
}

// RunResult is the stage-appropriate outcome of a run: Answers is always
// populated, Reviews from the review stage on, Report only for a full run.
type RunResult struct {
	Answers map[string][]Answer
	Reviews map[string][]Review
	Report  *Report
}

// Evaluator coordinates the adapter, the predictor, and the artifact store.
// It is strictly sequential per subset and per prompt.
type Evaluator struct {
	adapter   Adapter
	predictor Predictor
	store     *artifact.Store
	layout    artifact.Layout
	opts      Options
	logger    *slog.Logger

	datasetName string
}

// New builds an Evaluator. The logger is required by contract (no ambient
// singletons); a nil logger discards output.
func New(adapter Adapter, predictor Predictor, layout artifact.Layout, opts Options, logger *slog.Logger) (*Evaluator, error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}
	if strings.TrimSpace(opts.ModelName) == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrConfiguration)
	}
	if strings.TrimSpace(opts.DatasetPath) == "" {
		return nil, fmt.Errorf("%w: empty dataset path", ErrConfiguration)
	}
	if opts.Stage == "" {
		opts.Stage = StageAll
	}
	if opts.EvalType == "" {
		opts.EvalType = EvalTypeCheckpoint
	}
	if opts.Hub == "" {
		opts.Hub = HubLocal
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Evaluator{
		adapter:     adapter,
		predictor:   predictor,
		store:       artifact.NewStore(),
		layout:      layout,
		opts:        opts,
		logger:      logger,
		datasetName: datasetBasename(opts.DatasetPath),
	}, nil
}

// DatasetName is the report key derived from the dataset path basename.
func (e *Evaluator) DatasetName() string {
	return e.datasetName
}

// Infer runs every not-yet-answered prompt through the predictor and appends
// each answer to the prediction file as soon as it exists, so partial
// progress survives a crash mid-subset.
func (e *Evaluator) Infer(ctx context.Context, subset string, prompts []Prompt, cfg InferConfig) ([]Answer, error) {
	if e == nil || e.adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}
	if e.predictor == nil {
		return nil, fmt.Errorf("%w: nil predictor", ErrConfiguration)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: empty prompt list for subset %q", ErrConfiguration, subset)
	}

	path := e.layout.PredictionsFile(e.opts.ModelName, e.datasetName, subset)

	var answers []Answer
	if e.opts.UseCache {
		cached, err := loadAnswers(path)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			e.logger.Info("reusing cached predictions",
				"path", path, "count", len(cached), "subset", subset)
			answers = cached
			// Answers are persisted in prompt order, so the cached records
			// cover a leading prefix of the prompt list.
			if len(cached) >= len(prompts) {
				prompts = nil
			} else {
				prompts = prompts[len(cached):]
			}
		}
	}

	modelCfg := e.predictor.ModelConfig()

	if bp, ok := e.predictor.(BatchPredictor); ok {
		if len(prompts) == 0 {
			return answers, nil
		}
		preds, err := bp.PredictBatch(ctx, prompts, cfg)
		if err != nil {
			return nil, fmt.Errorf("eval: batch predict subset %q: %w", subset, err)
		}
		if len(preds) != len(prompts) {
			return nil, fmt.Errorf("%w: got %d results for %d prompts in subset %q",
				ErrBatchContract, len(preds), len(prompts), subset)
		}
		for i := range prompts {
			ans := e.buildAnswer(subset, &prompts[i], preds[i].Choices, modelCfg, cfg)
			if err := e.store.Append(path, ans); err != nil {
				return nil, err
			}
			answers = append(answers, ans)
		}
		return answers, nil
	}

	for i := range prompts {
		p := &prompts[i]
		pred, err := e.predictor.Predict(ctx, p, cfg)
		if err != nil {
			return nil, fmt.Errorf("eval: predict subset %q: %w", subset, err)
		}
		var choices []Choice
		if pred != nil {
			choices = pred.Choices
		}
		ans := e.buildAnswer(subset, p, choices, modelCfg, cfg)

		if e.opts.Debug {
			e.logger.Debug("predicted answer",
				"subset", subset, "answer_id", ans.ID, "prompt", ident.Canonical(p))
		}

		if err := e.store.Append(path, ans); err != nil {
			return nil, err
		}
		answers = append(answers, ans)
	}

	e.logger.Info("predictions persisted", "path", path, "count", len(answers))
	return answers, nil
}

func (e *Evaluator) buildAnswer(subset string, p *Prompt, choices []Choice, modelCfg map[string]any, cfg InferConfig) Answer {
	return Answer{
		ID:        ident.Answer(modelCfg, p, cfg),
		Subset:    subset,
		ModelSpec: modelCfg,
		RawInput:  p.RawInput,
		Origin:    p,
		Choices:   choices,
	}
}

// Review scores every answer's choices against the gold answer and appends
// each review to the review file. Review files are never reused for resume:
// reviews are cheap to recompute and always reflect the current adapter.
func (e *Evaluator) Review(ctx context.Context, subset string, answers []Answer) ([]Review, error) {
	if e == nil || e.adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}

	path := e.layout.ReviewsFile(e.opts.ModelName, e.datasetName, subset)
	if e.opts.UseCache && artifact.Exists(path) {
		e.logger.Warn("ignoring cache for reviews, recomputing", "path", path)
	}

	spec := e.reviewerSpec()

	reviews := make([]Review, 0, len(answers))
	for i := range answers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rev, err := e.reviewAnswer(&answers[i], spec)
		if err != nil {
			return nil, err
		}

		if e.opts.Debug {
			e.logger.Debug("reviewed answer",
				"subset", subset, "review_id", rev.ReviewID, "reviewed", rev.Reviewed)
		}

		if err := e.store.Append(path, rev); err != nil {
			return nil, err
		}
		reviews = append(reviews, rev)
	}
	return reviews, nil
}

func (e *Evaluator) reviewerSpec() ReviewerSpec {
	metrics := e.adapter.Metrics()
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.Name)
	}
	return ReviewerSpec{
		Metrics:  names,
		Reviewer: []string{reviewerName},
		Revision: []string{defaultRevision},
	}
}

func (e *Evaluator) reviewAnswer(ans *Answer, spec ReviewerSpec) (Review, error) {
	rev := Review{
		Answer:     *ans,
		Spec:       spec,
		ReviewedAt: time.Now(),
	}

	if len(ans.Choices) == 0 {
		rev.Reviewed = false
		return rev, nil
	}

	// Copy the choices so verdicts never mutate the caller's answers.
	rev.Choices = append([]Choice(nil), ans.Choices...)
	for i := range rev.Choices {
		content := rev.Choices[i].Message.Content

		pred, err := e.adapter.ParsePredResult(content, ans.RawInput, e.opts.EvalType)
		if err != nil {
			return rev, fmt.Errorf("eval: parse prediction for %s: %w", ans.ID, err)
		}
		gold, err := e.adapter.GetGoldAnswer(ans.RawInput)
		if err != nil {
			return rev, fmt.Errorf("eval: gold answer for %s: %w", ans.ID, err)
		}

		rev.Choices[i].Review = &Verdict{
			Gold:   gold,
			Pred:   pred,
			Result: e.adapter.Match(gold, pred),
		}
	}

	rev.Reviewed = true
	rev.ReviewID = ident.Review(ans.ID, spec)
	return rev, nil
}

// ComputeMetrics collapses a subset's reviews into one metric score and
// reports how many reviews contributed. Unreviewed entries are skipped with
// a warning; only the first choice's verdict feeds the metric (a known
// single-choice assumption).
func (e *Evaluator) ComputeMetrics(reviews []Review) (any, int, error) {
	if e == nil || e.adapter == nil {
		return nil, 0, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}

	results := make([]any, 0, len(reviews))
	for i := range reviews {
		rev := &reviews[i]
		if !rev.Reviewed {
			e.logger.Warn("review not finished, skipping", "answer_id", rev.ID)
			continue
		}
		if len(rev.Choices) == 0 || rev.Choices[0].Review == nil {
			e.logger.Warn("review has no verdict, skipping", "answer_id", rev.ID)
			continue
		}
		results = append(results, rev.Choices[0].Review.Result)
	}

	score, err := e.adapter.ComputeMetric(results)
	if err != nil {
		return nil, 0, fmt.Errorf("eval: compute metric: %w", err)
	}
	return score, len(results), nil
}

// GenerateReport delegates report shaping to the adapter, attaches model and
// dataset metadata, and persists the document. The optional summary table is
// best effort: a rendering failure is logged and never fails the run.
func (e *Evaluator) GenerateReport(scores map[string]SubsetScore) (*Report, error) {
	if e == nil || e.adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}

	name := e.opts.ModelName + "_" + e.datasetName
	rep, err := e.adapter.GenReport(scores, name)
	if err != nil {
		return nil, fmt.Errorf("eval: generate report: %w", err)
	}
	if rep == nil {
		return nil, fmt.Errorf("eval: adapter returned nil report")
	}
	rep.ModelName = e.opts.ModelName
	rep.DatasetName = e.datasetName

	path := e.layout.ReportFile(e.opts.ModelName, e.datasetName)
	if err := artifact.WriteJSON(path, rep); err != nil {
		return nil, err
	}
	e.logger.Info("report written", "path", path)

	if e.opts.UseTable {
		table, err := report.GenTable(e.layout.ReportsDir())
		if err != nil {
			e.logger.Error("failed to generate report table", "error", err)
		} else {
			e.logger.Info("report table\n" + table)
		}
	}
	return rep, nil
}

// Run drives the full subset loop in the adapter's defined order:
// inference, then review, then metric aggregation, with early exits for the
// infer and review stages, and finally report generation. An error in any
// subset aborts the whole run.
func (e *Evaluator) Run(ctx context.Context, inferCfg InferConfig) (*RunResult, error) {
	if e == nil || e.adapter == nil {
		return nil, fmt.Errorf("%w: nil adapter", ErrConfiguration)
	}

	e.logger.Info("starting evaluation",
		"dataset", e.opts.DatasetPath, "model", e.opts.ModelName, "stage", string(e.opts.Stage))

	ds, err := e.adapter.Load(ctx, LoadSpec{
		Path:    e.opts.DatasetPath,
		Subsets: e.opts.Subsets,
		WorkDir: e.opts.DatasetsDir,
		Hub:     e.opts.Hub,
	})
	if err != nil {
		return nil, fmt.Errorf("eval: load dataset: %w", err)
	}

	subsets, err := e.adapter.GenPrompts(ds)
	if err != nil {
		return nil, fmt.Errorf("eval: generate prompts: %w", err)
	}

	res := &RunResult{
		Answers: make(map[string][]Answer, len(subsets)),
		Reviews: make(map[string][]Review, len(subsets)),
	}
	scores := make(map[string]SubsetScore, len(subsets))

	for _, sp := range subsets {
		prompts := sp.Prompts
		if e.opts.Limit > 0 && len(prompts) > e.opts.Limit {
			prompts = prompts[:e.opts.Limit]
		}

		answers, err := e.Infer(ctx, sp.Name, prompts, inferCfg)
		if err != nil {
			return nil, err
		}
		res.Answers[sp.Name] = answers

		if e.opts.Stage == StageInfer {
			continue
		}

		reviews, err := e.Review(ctx, sp.Name, answers)
		if err != nil {
			return nil, err
		}
		res.Reviews[sp.Name] = reviews

		score, counted, err := e.ComputeMetrics(reviews)
		if err != nil {
			return nil, err
		}
		scores[sp.Name] = SubsetScore{Score: score, Count: counted}
	}

	if e.opts.Stage == StageInfer || e.opts.Stage == StageReview {
		return res, nil
	}

	rep, err := e.GenerateReport(scores)
	if err != nil {
		return nil, err
	}
	res.Report = rep

	e.logger.Info("evaluation finished",
		"dataset", e.opts.DatasetPath, "model", e.opts.ModelName, "score", rep.Score)
	return res, nil
}

func loadAnswers(path string) ([]Answer, error) {
	raws, err := artifact.ReadAll(path)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]Answer, 0, len(raws))
	for i, raw := range raws {
		var ans Answer
		if err := json.Unmarshal(raw, &ans); err != nil {
			return nil, fmt.Errorf("eval: parse cached answer %d in %q: %w", i, path, err)
		}
		out = append(out, ans)
	}
	return out, nil
}

func datasetBasename(path string) string {
	base := filepath.Base(strings.TrimRight(strings.TrimSpace(path), "/"))
	if idx := strings.IndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}
