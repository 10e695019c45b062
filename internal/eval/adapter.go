package eval

import "context"

// Stage selects how far a run proceeds before returning.
type Stage string

const (
	StageAll    Stage = "all"
	StageInfer  Stage = "infer"
	StageReview Stage = "review"
)

// EvalType is a mode switch passed to answer parsing; hosted services and
// local checkpoints format output differently.
type EvalType string

const (
	EvalTypeCheckpoint EvalType = "checkpoint"
	EvalTypeService    EvalType = "service"
	EvalTypeCustom     EvalType = "custom"
)

// Hub names where a dataset is fetched from. Only the local hub is
// implemented; the other values are recognized so configs from other tooling
// fail with a clear error instead of a path lookup.
type Hub string

const (
	HubLocal       Hub = "local"
	HubModelScope  Hub = "modelscope"
	HubHuggingFace Hub = "huggingface"
)

// LoadSpec tells an adapter what to load and from where.
type LoadSpec struct {
	Path    string   // dataset name or local path
	Subsets []string // optional subset filter; nil means all
	WorkDir string   // datasets root for relative paths
	Hub     Hub
}

// InferConfig carries inference parameters (temperature, max_tokens, ...).
// It is hashed into answer IDs, so logically equal configs must be equal maps.
type InferConfig map[string]any

// Adapter supplies everything dataset-specific: loading, prompt generation,
// gold answers, prediction parsing, matching, metric computation, and report
// shaping. The pipeline treats it as a black box.
type Adapter interface {
	Name() string
	Metrics() []Metric
	Load(ctx context.Context, spec LoadSpec) (*Dataset, error)
	GenPrompts(ds *Dataset) ([]SubsetPrompts, error)
	GetGoldAnswer(raw map[string]any) (any, error)
	ParsePredResult(content string, raw map[string]any, evalType EvalType) (any, error)
	Match(gold, pred any) any
	ComputeMetric(results []any) (any, error)
	GenReport(scores map[string]SubsetScore, name string) (*Report, error)
}

// Predictor produces one prediction per prompt. ModelConfig participates in
// answer-ID hashing and is snapshotted into every answer.
type Predictor interface {
	ModelConfig() map[string]any
	Predict(ctx context.Context, p *Prompt, cfg InferConfig) (*Prediction, error)
}

// BatchPredictor is an optional capability: it receives the full remaining
// prompt list at once and must return a same-length, same-order result list.
// A length mismatch aborts the run.
type BatchPredictor interface {
	Predictor
	PredictBatch(ctx context.Context, prompts []Prompt, cfg InferConfig) ([]Prediction, error)
}
