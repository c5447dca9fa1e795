// Package scoring is the request-level entry point: it answers a batch of
// command lines from the cache where possible and scores the rest with the
// external provider, degrading to the heuristic scorer when that fails.
package scoring

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"github.com/gzhole/kubeguard/internal/guardian"
)

// Source tags which scorer answered a batch.
const (
	SourceNone      = "none"
	SourceCache     = "cache"
	SourceExternal  = "gemini"
	SourceHeuristic = "keywords"
)

// Response carries one score and one reason per input line, in input order.
type Response struct {
	Scores  []float64 `json:"scores"`
	Reasons []string  `json:"reasons"`
	Source  string    `json:"source"`
}

// Health is the read-only liveness view of the orchestrator.
type Health struct {
	ExternalConfigured bool   `json:"external"`
	Provider           string `json:"provider"`
	CacheSize          int    `json:"cache_size"`
	CacheCapacity      int    `json:"cache_capacity"`
}

// Cache is the subset of cache.Store the orchestrator needs.
type Cache interface {
	Get(text string) (guardian.Result, bool)
	Put(text string, result guardian.Result)
	Len() int
	Capacity() int
}

// Recorder receives per-batch counters.
type Recorder interface {
	Request(source string, fresh int)
	Fallback(kind string)
}

type noopRecorder struct{}

func (noopRecorder) Request(string, int) {}
func (noopRecorder) Fallback(string)     {}

// Orchestrator is safe for concurrent use as long as its Cache is.
type Orchestrator struct {
	cache     Cache
	heuristic *guardian.HeuristicProvider
	external  guardian.BatchProvider
	recorder  Recorder
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithExternal configures the external provider. A nil provider leaves the
// orchestrator in heuristic-only mode.
func WithExternal(p guardian.BatchProvider) Option {
	return func(o *Orchestrator) { o.external = p }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// New creates an orchestrator. Whether an external provider exists is
// decided here, once.
func New(c Cache, heuristic *guardian.HeuristicProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:     c,
		heuristic: heuristic,
		recorder:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ScoreAll scores lines, always returning one result per line.
func (o *Orchestrator) ScoreAll(ctx context.Context, lines []string) Response {
	if len(lines) == 0 {
		return Response{Scores: []float64{}, Reasons: []string{}, Source: SourceNone}
	}

	results := make([]guardian.Result, len(lines))
	var (
		missIdx   []int
		missLines []string
	)
	for i, line := range lines {
		if r, ok := o.cache.Get(line); ok {
			results[i] = r
			continue
		}
		missIdx = append(missIdx, i)
		missLines = append(missLines, line)
	}

	source := SourceCache
	if len(missLines) > 0 {
		var fresh []guardian.Result
		fresh, source = o.scoreMisses(ctx, missLines)
		for j, idx := range missIdx {
			o.cache.Put(missLines[j], fresh[j])
			results[idx] = fresh[j]
		}
	}
	o.recorder.Request(source, len(missLines))

	resp := Response{
		Scores:  make([]float64, len(results)),
		Reasons: make([]string, len(results)),
		Source:  source,
	}
	for i, r := range results {
		resp.Scores[i] = r.Score
		resp.Reasons[i] = r.Reason
	}
	return resp
}

// scoreMisses returns exactly one result per line and the source that
// produced them.
//
// Every external failure, including parse and length errors, takes the same
// path: log at WARN with the error kind and re-score the whole subset with
// the heuristic.
func (o *Orchestrator) scoreMisses(ctx context.Context, lines []string) ([]guardian.Result, string) {
	if o.external == nil {
		return o.scoreHeuristic(lines), SourceHeuristic
	}

	fresh, err := o.external.ScoreBatch(ctx, lines)
	if err == nil && len(fresh) != len(lines) {
		err = &guardian.AdapterError{
			Provider: o.external.Name(),
			Kind:     guardian.KindMismatch,
			Err:      fmt.Errorf("got %d results for %d lines", len(fresh), len(lines)),
		}
	}
	if err == nil {
		return fresh, SourceExternal
	}

	kind := "unknown"
	if ae, ok := guardian.IsAdapterError(err); ok {
		kind = string(ae.Kind)
	}
	log.WithFields(log.Fields{
		"provider": o.external.Name(),
		"kind":     kind,
		"lines":    len(lines),
	}).WithError(err).Warn("external scoring failed, falling back to keywords")
	o.recorder.Fallback(kind)

	return o.scoreHeuristic(lines), SourceHeuristic
}

func (o *Orchestrator) scoreHeuristic(lines []string) []guardian.Result {
	results := make([]guardian.Result, len(lines))
	for i, l := range lines {
		results[i] = o.heuristic.Score(l)
	}
	return results
}

// Health reports provider configuration and cache occupancy.
func (o *Orchestrator) Health() Health {
	h := Health{
		Provider:      o.heuristic.Name(),
		CacheSize:     o.cache.Len(),
		CacheCapacity: o.cache.Capacity(),
	}
	if o.external != nil {
		h.ExternalConfigured = true
		h.Provider = o.external.Name()
	}
	return h
}
