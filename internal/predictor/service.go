// Package predictor adapts model backends to the evaluation pipeline's
// predictor contract.
package predictor

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/benchkit/internal/eval"
	"github.com/stellarlinkco/benchkit/internal/llm"
)

// Service runs prompts against a hosted model API through an llm.Provider.
type Service struct {
	provider llm.Provider
}

func NewService(provider llm.Provider) (*Service, error) {
	if provider == nil {
		return nil, errors.New("predictor: nil provider")
	}
	return &Service{provider: provider}, nil
}

// ModelConfig is snapshotted into every answer and participates in answer-ID
// hashing, so it must be deterministic for a given provider.
func (s *Service) ModelConfig() map[string]any {
	return map[string]any{
		"provider": s.provider.Name(),
		"model":    s.provider.Model(),
	}
}

func (s *Service) Predict(ctx context.Context, p *eval.Prompt, cfg eval.InferConfig) (*eval.Prediction, error) {
	if s == nil || s.provider == nil {
		return nil, errors.New("predictor: nil provider")
	}
	if p == nil {
		return nil, errors.New("predictor: nil prompt")
	}

	req := &llm.Request{
		System:      p.System,
		MaxTokens:   intOption(cfg, "max_tokens"),
		Temperature: floatOption(cfg, "temperature"),
	}
	for _, m := range p.Messages {
		req.Messages = append(req.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("predictor: complete: %w", err)
	}

	return &eval.Prediction{Choices: []eval.Choice{{
		Index:   0,
		Message: eval.Message{Role: "assistant", Content: resp.Content},
	}}}, nil
}

func intOption(cfg eval.InferConfig, key string) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatOption(cfg eval.InferConfig, key string) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
