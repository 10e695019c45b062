// Package llm wraps hosted model APIs behind a single completion interface.
package llm

import "context"

type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Content      string
	StopReason   string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

const (
	defaultMaxTokens = 1024
	maxMaxTokens     = 64000
)

func clampMaxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	if n > maxMaxTokens {
		return maxMaxTokens
	}
	return n
}
