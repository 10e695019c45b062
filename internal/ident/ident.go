// Package ident generates content-addressed identifiers for evaluation
// artifacts. Identical inputs always produce identical IDs, which is what
// makes cache-hit detection and cross-run dedup possible.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	answerPrefix = "answer-"
	reviewPrefix = "review-"
)

// Answer derives the identifier for an answer from the model config, the
// input prompt, and the inference config, in that fixed order.
func Answer(modelCfg any, prompt any, inferCfg any) string {
	return answerPrefix + digest(Canonical(modelCfg)+Canonical(prompt)+Canonical(inferCfg))
}

// Review derives the identifier for a review from the answer identifier and
// the reviewer specification.
func Review(answerID string, reviewerSpec any) string {
	return reviewPrefix + digest(answerID + Canonical(reviewerSpec))
}

// Canonical renders v as deterministic JSON: map keys are emitted in sorted
// order (encoding/json guarantees this), struct fields in declaration order,
// and values that only exist to describe framework internals (anything
// implementing fmt.Stringer) are normalized to their string form first.
func Canonical(v any) string {
	b, err := json.Marshal(normalize(v))
	if err != nil {
		// Fall back to the printed form; marshaling a string cannot fail.
		b, _ = json.Marshal(fmt.Sprint(v))
	}
	return string(b)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func normalize(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
