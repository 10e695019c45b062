package predictor

import (
	"context"
	"errors"

	"github.com/stellarlinkco/benchkit/internal/eval"
)

// Batch plugs a custom batch predictor into the pipeline. Fn receives the
// full remaining prompt list and must return one prediction per prompt, in
// order; the pipeline aborts on a length mismatch.
type Batch struct {
	Config map[string]any
	Fn     func(ctx context.Context, prompts []eval.Prompt, cfg eval.InferConfig) ([]eval.Prediction, error)
}

func (b *Batch) ModelConfig() map[string]any {
	if b == nil {
		return nil
	}
	return b.Config
}

func (b *Batch) Predict(ctx context.Context, p *eval.Prompt, cfg eval.InferConfig) (*eval.Prediction, error) {
	if p == nil {
		return nil, errors.New("predictor: nil prompt")
	}
	preds, err := b.PredictBatch(ctx, []eval.Prompt{*p}, cfg)
	if err != nil {
		return nil, err
	}
	if len(preds) != 1 {
		return nil, errors.New("predictor: batch returned wrong count for single prompt")
	}
	return &preds[0], nil
}

func (b *Batch) PredictBatch(ctx context.Context, prompts []eval.Prompt, cfg eval.InferConfig) ([]eval.Prediction, error) {
	if b == nil || b.Fn == nil {
		return nil, errors.New("predictor: nil batch function")
	}
	return b.Fn(ctx, prompts, cfg)
}
