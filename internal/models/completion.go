package models

// StopReason describes why the generation service stopped producing tokens.
type StopReason string

// Stop reasons reported by the completion endpoint.
const (
	StopEOS   StopReason = "eos"
	StopWord  StopReason = "word"
	StopLimit StopReason = "limit"
	StopNone  StopReason = "none"
)

// Natural reports whether generation ended on its own rather than being cut off.
func (r StopReason) Natural() bool {
	return r == StopEOS || r == StopWord
}

// CompletionRequest is a single generation call against a pre-tokenized prompt.
type CompletionRequest struct {
	Prompt    []int
	MaxTokens int
	Grammar   string
}

// CompletionResult is the generated text and the reason generation stopped.
type CompletionResult struct {
	Content    string
	StopReason StopReason
}
