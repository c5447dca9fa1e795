package cli

import (
	"fmt"

	"github.com/apex/log"

	"github.com/gzhole/kubeguard/internal/cache"
	"github.com/gzhole/kubeguard/internal/config"
	"github.com/gzhole/kubeguard/internal/guardian"
	"github.com/gzhole/kubeguard/internal/metrics"
	"github.com/gzhole/kubeguard/internal/scoring"
)

// newOrchestrator assembles the scoring pipeline described by cfg. m may be
// nil when no metrics are exported.
func newOrchestrator(cfg *config.Config, m *metrics.Metrics) (*scoring.Orchestrator, error) {
	var (
		storeOpts []cache.Option
		orchOpts  []scoring.Option
	)
	if m != nil {
		storeOpts = append(storeOpts, cache.WithMetrics(m.Cache()))
		orchOpts = append(orchOpts, scoring.WithRecorder(m))
	}

	if cfg.HasExternal() {
		p, err := guardian.NewLLMProvider(guardian.LLMConfig{
			APIKey:        cfg.LLM.APIKey,
			BaseURL:       cfg.LLM.BaseURL,
			Model:         cfg.LLM.Model,
			Timeout:       cfg.LLM.Timeout,
			RatePerSecond: cfg.LLM.RatePerSecond,
			Burst:         cfg.LLM.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create external provider: %w", err)
		}
		orchOpts = append(orchOpts, scoring.WithExternal(p))
		log.WithFields(log.Fields{
			"provider": p.Name(),
			"model":    cfg.LLM.Model,
		}).Debug("external provider configured")
	} else {
		log.Debug("no external provider configured, using keywords only")
	}

	store := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL, storeOpts...)
	heuristic := guardian.NewHeuristicProvider(cfg.Heuristic.Bias, cfg.Heuristic.Weights)
	return scoring.New(store, heuristic, orchOpts...), nil
}
