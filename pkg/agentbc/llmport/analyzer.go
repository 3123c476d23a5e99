// Package llmport defines the boundary an agent's pattern-detection logic
// calls through instead of talking to a concrete LLM provider directly —
// the provider itself is out of scope (spec.md §1 non-goals).
package llmport

import "context"

// Analyzer is the {analyze, reason} boundary spec.md §4.G step 4
// abstracts the LLM backend behind.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, historyCtx []byte) (AnalysisResult, error)
	Reason(ctx context.Context, prompt string, historyCtx []byte) (ReasonResult, error)
}

// AnalysisResult is a pattern-detection verdict.
type AnalysisResult struct {
	Pattern    string
	Confidence float64
	Tokens     int
}

// ReasonResult is a free-form reasoning verdict, e.g. "should this command
// be emitted, and why".
type ReasonResult struct {
	Conclusion string
	Confidence float64
	Tokens     int
}

// NoopAnalyzer never detects a pattern; valid wherever an Analyzer is
// required but no real backend is wired.
type NoopAnalyzer struct{}

func (NoopAnalyzer) Analyze(ctx context.Context, prompt string, historyCtx []byte) (AnalysisResult, error) {
	return AnalysisResult{}, nil
}

func (NoopAnalyzer) Reason(ctx context.Context, prompt string, historyCtx []byte) (ReasonResult, error) {
	return ReasonResult{}, nil
}
