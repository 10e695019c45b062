package eval

import "time"

// Message is one chat turn inside a prompt or a model completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is one unit of model input for a subset: the original benchmark
// record plus the adapter's formatting. Immutable once produced.
type Prompt struct {
	ID       string         `json:"id,omitempty"`
	RawInput map[string]any `json:"raw_input"`
	System   string         `json:"system,omitempty"`
	Messages []Message      `json:"messages"`
}

// Verdict is the outcome of comparing a parsed prediction to the gold answer.
type Verdict struct {
	Gold   any `json:"gold"`
	Pred   any `json:"pred"`
	Result any `json:"result"`
}

// Choice is one candidate completion within an answer. After review it
// carries the embedded verdict.
type Choice struct {
	Index   int      `json:"index"`
	Message Message  `json:"message"`
	Review  *Verdict `json:"review,omitempty"`
}

// Prediction is what a predictor returns for one prompt.
type Prediction struct {
	Choices []Choice `json:"choices"`
}

// Answer is the persisted result of running one prompt through the model.
type Answer struct {
	ID        string         `json:"answer_id"`
	Subset    string         `json:"subset_name"`
	ModelSpec map[string]any `json:"model_spec"`
	RawInput  map[string]any `json:"raw_input"`
	Origin    *Prompt        `json:"origin_prompt"`
	Choices   []Choice       `json:"choices"`
}

// ReviewerSpec describes what produced a review. It participates in review-ID
// hashing, so it must serialize deterministically.
type ReviewerSpec struct {
	Metrics  []string `json:"metric"`
	Reviewer []string `json:"reviewer"`
	Revision []string `json:"revision"`
}

// Review is an answer enriched with per-choice verdicts. An answer with zero
// choices yields Reviewed=false and no verdicts; that is a defined degenerate
// case, not an error.
type Review struct {
	Answer
	ReviewID   string       `json:"review_id,omitempty"`
	Reviewed   bool         `json:"reviewed"`
	Spec       ReviewerSpec `json:"reviewer_spec"`
	ReviewedAt time.Time    `json:"review_time"`
}

// SubsetScore is the aggregated metric result for one subset, together with
// the number of reviews that contributed to it.
type SubsetScore struct {
	Score any `json:"score"`
	Count int `json:"count"`
}

// SubsetResult is one subset row inside a report.
type SubsetResult struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// Report aggregates all subset scores for one (model, dataset) pair.
type Report struct {
	Name        string         `json:"name"`
	ModelName   string         `json:"model_name"`
	DatasetName string         `json:"dataset_name"`
	Metric      string         `json:"metric"`
	Score       float64        `json:"score"`
	TotalCount  int            `json:"total_count"`
	Subsets     []SubsetResult `json:"subsets"`
}

// Metric is one metric descriptor exposed by a dataset adapter.
type Metric struct {
	Name string `json:"name"`
}

// Subset is a named partition of a dataset with its raw benchmark records.
type Subset struct {
	Name    string
	Records []map[string]any
}

// Dataset is the loaded benchmark, split into subsets in the adapter's
// defined order.
type Dataset struct {
	Name    string
	Subsets []Subset
}

// SubsetPrompts pairs a subset name with its ordered prompt list.
type SubsetPrompts struct {
	Name    string
	Prompts []Prompt
}
