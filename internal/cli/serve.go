package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/kubeguard/internal/agent"
	"github.com/gzhole/kubeguard/internal/logger"
	"github.com/gzhole/kubeguard/internal/metrics"
	"github.com/gzhole/kubeguard/internal/server"
)

var (
	serveListen string
	serveWatch  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the risk scoring HTTP server",
	Long: `Start the scoring server. It answers POST /score with one risk score and
reason per line, and also serves /health, /events and /metrics.

With --watch, a history agent runs in the same process and scores lines
appended to the given file, publishing them on /events.

  kubeguard serve
  kubeguard serve --listen :8000 --watch /tmp/fake_bash_history.log`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default: config listen or :8000)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "Also watch this shell history file and score new lines")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	m := metrics.New()
	orch, err := newOrchestrator(cfg, m)
	if err != nil {
		return err
	}

	events := agent.NewEventLog(cfg.Agent.MaxEvents)
	srv := server.New(server.Config{
		ListenAddr: cfg.Listen,
		MaxBatch:   cfg.MaxBatch,
		Scorer:     orch,
		Events:     events,
		Metrics:    m.Handler(),
	})

	var watcher *agent.Agent
	if serveWatch != "" {
		audit, err := logger.New(cfg.LogPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer func() { _ = audit.Close() }()

		watcher = agent.New(agent.Config{
			HistoryPath:    serveWatch,
			Interval:       cfg.Agent.Interval,
			AlertThreshold: cfg.Agent.AlertThreshold,
			Scorer:         agent.Local(orch),
			MaxBatch:       cfg.MaxBatch,
			Events:         events,
			Audit:          audit,
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}

	log.WithFields(log.Fields{
		"provider": orch.Health().Provider,
		"cache":    cfg.Cache.Capacity,
		"ttl":      cfg.Cache.TTL,
	}).Info("scoring server starting")

	return g.Wait()
}

