package guardian

import (
	"context"
	"math"
	"strings"
)

// Weight is a single entry of the heuristic token table.
type Weight struct {
	Token  string  `yaml:"token" json:"token"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// DefaultBias is the logistic intercept used when no bias is configured.
const DefaultBias = -2.0

// DefaultWeights returns the built-in token table. Order matters: it is the
// order matched tokens are reported in.
func DefaultWeights() []Weight {
	return []Weight{
		{Token: "nmap", Weight: 3.0},
		{Token: "masscan", Weight: 3.2},
		{Token: "nc", Weight: 2.8},
		{Token: "netcat", Weight: 2.8},
		{Token: "curl", Weight: 1.8},
		{Token: "wget", Weight: 1.6},
		{Token: "powershell", Weight: 2.5},
		{Token: "bash -i", Weight: 3.0},
		{Token: "chmod 777", Weight: 2.2},
		{Token: "base64 -d", Weight: 2.0},
		{Token: "openssl", Weight: 1.6},
		{Token: "mkfifo", Weight: 2.2},
		{Token: "tcpdump", Weight: 1.4},
		{Token: "scp", Weight: 1.3},
		{Token: "ssh", Weight: 1.2},
	}
}

const noThreatReason = "No threat tokens detected"

// HeuristicProvider scores commands with a logistic model over a fixed
// token-weight table. It requires zero external dependencies, runs
// synchronously, and never fails.
type HeuristicProvider struct {
	bias    float64
	weights []Weight
}

// NewHeuristicProvider creates a heuristic scorer. Tokens are matched
// case-insensitively; the table is copied so later edits by the caller have
// no effect.
func NewHeuristicProvider(bias float64, weights []Weight) *HeuristicProvider {
	table := make([]Weight, len(weights))
	for i, w := range weights {
		table[i] = Weight{Token: strings.ToLower(w.Token), Weight: w.Weight}
	}
	return &HeuristicProvider{bias: bias, weights: table}
}

// NewDefaultHeuristicProvider creates a heuristic scorer with the built-in
// table and bias.
func NewDefaultHeuristicProvider() *HeuristicProvider {
	return NewHeuristicProvider(DefaultBias, DefaultWeights())
}

func (p *HeuristicProvider) Name() string { return "heuristic" }

// Score returns the risk of a single command line.
func (p *HeuristicProvider) Score(text string) Result {
	lower := strings.ToLower(text)
	sum := p.bias

	var matched []string
	for _, w := range p.weights {
		if strings.Contains(lower, w.Token) {
			sum += w.Weight
			matched = append(matched, w.Token)
		}
	}

	reason := noThreatReason
	if len(matched) > 0 {
		reason = "Matched threat tokens: " + strings.Join(matched, ", ")
	}

	return Result{
		Score:  1.0 / (1.0 + math.Exp(-sum)),
		Reason: reason,
	}
}

// ScoreBatch scores each line independently. It never returns an error.
func (p *HeuristicProvider) ScoreBatch(_ context.Context, lines []string) ([]Result, error) {
	results := make([]Result, len(lines))
	for i, l := range lines {
		results[i] = p.Score(l)
	}
	return results, nil
}
