package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/kubeguard/internal/agent"
	"github.com/gzhole/kubeguard/internal/client"
	"github.com/gzhole/kubeguard/internal/logger"
	"github.com/gzhole/kubeguard/internal/server"
)

var (
	agentScorerURL string
	agentHistory   string
	agentListen    string
	agentInterval  time.Duration
	agentThreshold float64
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Watch a shell history file and score new commands against a remote server",
	Long: `Run the history agent as a sidecar. Every interval it reads the history
file, sends lines appended since the last poll to the scoring server, logs an
ALERT for risky or suspicious commands, and records every result in the audit
log. The latest events are served on GET /events for the dashboard.

  kubeguard agent --scorer-url http://risk-scorer:8000 --history /tmp/fake_bash_history.log`,
	RunE: agentCommand,
}

func init() {
	agentCmd.Flags().StringVar(&agentScorerURL, "scorer-url", "", "Scoring server base URL (default: config agent.scorer_url)")
	agentCmd.Flags().StringVar(&agentHistory, "history", "", "Shell history file to watch (default: config agent.history_path)")
	agentCmd.Flags().StringVar(&agentListen, "listen", "", "Address for the /events endpoint (default: config agent.listen)")
	agentCmd.Flags().DurationVar(&agentInterval, "interval", 0, "Poll interval (default: config agent.interval)")
	agentCmd.Flags().Float64Var(&agentThreshold, "threshold", -1, "Alert threshold in [0,1] (default: config agent.alert_threshold)")
	rootCmd.AddCommand(agentCmd)
}

func agentCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if agentScorerURL != "" {
		cfg.Agent.ScorerURL = agentScorerURL
	}
	if agentHistory != "" {
		cfg.Agent.HistoryPath = agentHistory
	}
	if agentListen != "" {
		cfg.Agent.Listen = agentListen
	}
	if agentInterval > 0 {
		cfg.Agent.Interval = agentInterval
	}
	if agentThreshold >= 0 {
		cfg.Agent.AlertThreshold = agentThreshold
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	audit, err := logger.New(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = audit.Close() }()

	events := agent.NewEventLog(cfg.Agent.MaxEvents)
	a := agent.New(agent.Config{
		HistoryPath:    cfg.Agent.HistoryPath,
		Interval:       cfg.Agent.Interval,
		AlertThreshold: cfg.Agent.AlertThreshold,
		Scorer:         client.New(cfg.Agent.ScorerURL),
		MaxBatch:       cfg.MaxBatch,
		Events:         events,
		Audit:          audit,
	})
	feed := server.New(server.Config{
		ListenAddr: cfg.Agent.Listen,
		Events:     events,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return feed.Run(ctx) })
	return g.Wait()
}
