package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/benchkit/internal/artifact"
	"github.com/stellarlinkco/benchkit/internal/config"
	"github.com/stellarlinkco/benchkit/internal/dataset"
	"github.com/stellarlinkco/benchkit/internal/eval"
	"github.com/stellarlinkco/benchkit/internal/llm"
	"github.com/stellarlinkco/benchkit/internal/predictor"
	"github.com/stellarlinkco/benchkit/internal/store"
)

type runOptions struct {
	datasetPath string
	modelID     string
	subsets     []string
	stage       string
	evalType    string
	hub         string
	limit       int
	useCache    bool
	noTable     bool
	debug       bool
	outputsDir  string
	datasetsDir string
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark evaluation",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.datasetPath, "dataset", "", "dataset name or JSONL path (overrides config)")
	cmd.Flags().StringVar(&opts.modelID, "model-id", "", "model name used for report keys (overrides config)")
	cmd.Flags().StringSliceVar(&opts.subsets, "subsets", nil, "subset filter (overrides config)")
	cmd.Flags().StringVar(&opts.stage, "stage", "", "stage to run: all|infer|review (overrides config)")
	cmd.Flags().StringVar(&opts.evalType, "eval-type", "", "evaluation type: checkpoint|service|custom (overrides config)")
	cmd.Flags().StringVar(&opts.hub, "hub", "", "dataset hub: local|modelscope|huggingface (overrides config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "evaluate only the first N prompts per subset (overrides config)")
	cmd.Flags().BoolVar(&opts.useCache, "use-cache", false, "reuse persisted predictions")
	cmd.Flags().BoolVar(&opts.noTable, "no-table", false, "skip the summary table")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "verbose per-item logging")
	cmd.Flags().StringVar(&opts.outputsDir, "outputs", "", "output root for artifacts (overrides config)")
	cmd.Flags().StringVar(&opts.datasetsDir, "datasets-dir", "", "datasets root for relative paths (overrides config)")

	return cmd
}

// mergeRunOptions resolves effective settings: config values first, then any
// flag the user actually set.
func mergeRunOptions(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	ev := &cfg.Evaluation

	if !cmd.Flags().Changed("dataset") {
		opts.datasetPath = ev.Dataset
	}
	if !cmd.Flags().Changed("model-id") {
		opts.modelID = ev.ModelID
	}
	if !cmd.Flags().Changed("subsets") {
		opts.subsets = ev.Subsets
	}
	if !cmd.Flags().Changed("stage") {
		opts.stage = ev.Stage
	}
	if !cmd.Flags().Changed("eval-type") {
		opts.evalType = ev.EvalType
	}
	if !cmd.Flags().Changed("hub") {
		opts.hub = ev.Hub
	}
	if !cmd.Flags().Changed("limit") {
		opts.limit = ev.Limit
	}
	if !cmd.Flags().Changed("use-cache") {
		opts.useCache = ev.UseCache
	}
	if !cmd.Flags().Changed("no-table") {
		opts.noTable = ev.NoTable
	}
	if !cmd.Flags().Changed("debug") {
		opts.debug = ev.Debug
	}
	if !cmd.Flags().Changed("outputs") {
		opts.outputsDir = ev.OutputsDir
	}
	if !cmd.Flags().Changed("datasets-dir") {
		opts.datasetsDir = ev.DatasetsDir
	}
}

func runEvaluation(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}
	mergeRunOptions(cmd, st.cfg, opts)

	if strings.TrimSpace(opts.datasetPath) == "" {
		return fmt.Errorf("run: specify --dataset or set evaluation.dataset in the config")
	}

	evalType := eval.EvalType(strings.TrimSpace(opts.evalType))
	switch evalType {
	case eval.EvalTypeService:
	case eval.EvalTypeCheckpoint, eval.EvalTypeCustom:
		return fmt.Errorf("run: eval type %q needs a programmatic predictor; the CLI only supports %q",
			evalType, eval.EvalTypeService)
	default:
		return fmt.Errorf("run: unknown eval type %q", opts.evalType)
	}

	adapter, err := dataset.New(opts.datasetPath)
	if err != nil {
		return err
	}

	provider, err := llm.DefaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	pred, err := predictor.NewService(provider)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	modelName := strings.TrimSpace(opts.modelID)
	if modelName == "" {
		modelName = provider.Model()
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	layout := artifact.Layout{Root: opts.outputsDir}
	ev, err := eval.New(adapter, pred, layout, eval.Options{
		ModelName:   modelName,
		DatasetPath: opts.datasetPath,
		Subsets:     opts.subsets,
		DatasetsDir: opts.datasetsDir,
		Hub:         eval.Hub(opts.hub),
		Stage:       eval.Stage(opts.stage),
		EvalType:    evalType,
		UseCache:    opts.useCache,
		Limit:       opts.limit,
		Debug:       opts.debug,
		UseTable:    !opts.noTable,
	}, logger)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := ev.Run(ctx, st.cfg.Evaluation.Infer)
	if err != nil {
		return err
	}

	finishedAt := time.Now().UTC()
	printRunResult(cmd, res, eval.Stage(opts.stage))

	if res.Report != nil {
		if err := saveRunRecord(ctx, st, opts, res.Report, startedAt, finishedAt); err != nil {
			return err
		}
	}
	return nil
}

func printRunResult(cmd *cobra.Command, res *eval.RunResult, stage eval.Stage) {
	out := cmd.OutOrStdout()

	switch stage {
	case eval.StageInfer:
		for _, name := range sortedKeys(res.Answers) {
			fmt.Fprintf(out, "Subset %s: %d answers\n", name, len(res.Answers[name]))
		}
		return
	case eval.StageReview:
		for _, name := range sortedKeys(res.Reviews) {
			fmt.Fprintf(out, "Subset %s: %d reviews\n", name, len(res.Reviews[name]))
		}
		return
	}

	rep := res.Report
	if rep == nil {
		return
	}
	fmt.Fprintf(out, "Report: %s\n", rep.Name)
	fmt.Fprintf(out, "Metric: %s\n", rep.Metric)
	fmt.Fprintf(out, "Score: %.4f over %d reviews\n", rep.Score, rep.TotalCount)
	for _, sub := range rep.Subsets {
		fmt.Fprintf(out, "  %s: %.4f (%d)\n", sub.Name, sub.Score, sub.Count)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func saveRunRecord(ctx context.Context, st *cliState, opts *runOptions, rep *eval.Report, startedAt, finishedAt time.Time) error {
	stor, err := store.Open(st.cfg)
	if err != nil {
		return fmt.Errorf("run: open store: %w", err)
	}
	defer stor.Close()

	runID, err := newRunID()
	if err != nil {
		return fmt.Errorf("run: generate run id: %w", err)
	}

	reportDoc, err := reportToMap(rep)
	if err != nil {
		return fmt.Errorf("run: encode report: %w", err)
	}

	rec := &store.RunRecord{
		ID:         runID,
		Model:      rep.ModelName,
		Dataset:    rep.DatasetName,
		Stage:      opts.stage,
		EvalType:   opts.evalType,
		Metric:     rep.Metric,
		Score:      rep.Score,
		TotalCount: rep.TotalCount,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Report:     reportDoc,
	}
	if err := stor.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("run: save run: %w", err)
	}
	return nil
}

func reportToMap(rep *eval.Report) (map[string]any, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newRunID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}
