// Package guardian scores shell command lines for security risk.
//
// Architecture:
//
//	BatchProvider (interface)
//	  ├── HeuristicProvider  built in, never fails
//	  └── LLMProvider        wraps an OpenAI-compatible chat API (Gemini by default)
//
// The heuristic provider is the terminal fallback: callers that use the LLM
// provider recover from an *AdapterError by re-scoring the same batch with
// the heuristic provider.
package guardian

import "context"

// Result is the risk assessment for a single command line.
type Result struct {
	// Score is the risk in [0,1]; higher is more dangerous.
	Score float64 `json:"score"`

	// Reason is a human-readable justification for Score.
	Reason string `json:"reason"`
}

// BatchProvider scores a batch of command lines.
//
// Implementations must return exactly one Result per input line, in input
// order, or an error. A provider never partially succeeds.
type BatchProvider interface {
	// Name returns the provider identifier (e.g., "heuristic", "gemini").
	Name() string

	// ScoreBatch scores every line in lines.
	ScoreBatch(ctx context.Context, lines []string) ([]Result, error)
}
