// Package agent tails a shell history file, scores newly appended commands,
// raises alerts, and keeps a feed of recent events for the dashboard.
package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/gzhole/kubeguard/internal/history"
	"github.com/gzhole/kubeguard/internal/logger"
	"github.com/gzhole/kubeguard/internal/redact"
	"github.com/gzhole/kubeguard/internal/scoring"
	"github.com/gzhole/kubeguard/internal/unicode"
)

// suspiciousKeywords alert regardless of score.
var suspiciousKeywords = []string{
	"nmap", "nc ", "nc-", "netcat", "masscan",
	"curl ", "wget ", "powershell", "bash -i",
	"chmod 777", "chattr", "base64 -d", "openssl", "mkfifo",
}

// IsSuspicious reports whether line contains a keyword that always alerts.
// Keywords are matched after folding away hidden characters and lookalike
// letters, so "n\u200bmap" still matches nmap.
func IsSuspicious(line string) bool {
	folded, _ := unicode.Fold(line)
	low := strings.ToLower(folded)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// ShouldAlert applies the alert rule: a suspicious keyword, characters that
// hide part of the command, or a score at or above threshold.
func ShouldAlert(line string, score, threshold float64) bool {
	return IsSuspicious(line) || unicode.HasHidden(line) || score >= threshold
}

// Scorer scores a batch of lines. Implemented by the HTTP client and, via
// Local, by an in-process orchestrator.
type Scorer interface {
	ScoreAll(ctx context.Context, lines []string) (scoring.Response, error)
}

type batchScorer interface {
	ScoreAll(ctx context.Context, lines []string) scoring.Response
}

type localScorer struct{ s batchScorer }

func (l localScorer) ScoreAll(ctx context.Context, lines []string) (scoring.Response, error) {
	return l.s.ScoreAll(ctx, lines), nil
}

// Local adapts an in-process orchestrator to Scorer.
func Local(s batchScorer) Scorer { return localScorer{s: s} }

// defaultMaxBatch matches the scoring server's default request limit.
const defaultMaxBatch = 500

// Auditor persists scored events.
type Auditor interface {
	Log(event logger.AuditEvent) error
}

type Config struct {
	HistoryPath    string
	Interval       time.Duration
	AlertThreshold float64
	Scorer         Scorer
	MaxBatch       int // lines per ScoreAll call
	Events         *EventLog
	Audit          Auditor // optional
	Host           string
}

type Agent struct {
	cfg  Config
	seen int         // lines of the history file already scored
	info os.FileInfo // history file as of the last read
	now  func() time.Time
}

func New(cfg Config) *Agent {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.Events == nil {
		cfg.Events = NewEventLog(0)
	}
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	return &Agent{cfg: cfg, now: time.Now}
}

// Events returns the agent's event feed.
func (a *Agent) Events() *EventLog { return a.cfg.Events }

// Run polls until ctx is cancelled. Errors from a single poll are logged and
// the poll is retried on the next tick.
func (a *Agent) Run(ctx context.Context) error {
	log.WithFields(log.Fields{
		"history":  a.cfg.HistoryPath,
		"interval": a.cfg.Interval,
	}).Info("agent started")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := a.Tick(ctx); err != nil {
			log.WithError(err).Warn("agent poll failed")
		}
		select {
		case <-ctx.Done():
			log.Info("agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick scores the lines appended to the history file since the previous
// tick, at most MaxBatch lines per scorer call. Progress is kept for every
// batch that scored, so a failure only repeats the remaining lines. If the
// file was replaced or shrank (rotated or truncated) it is scored from the top.
func (a *Agent) Tick(ctx context.Context) error {
	info, err := os.Stat(a.cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	lines, err := history.ReadLines(a.cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if a.rotated(info) || len(lines) < a.seen {
		a.seen = 0
	}
	a.info = info

	for a.seen < len(lines) {
		end := min(a.seen+a.cfg.MaxBatch, len(lines))
		if err := a.scoreBatch(ctx, lines[a.seen:end]); err != nil {
			return err
		}
		a.seen = end
	}
	return nil
}

// rotated reports whether info describes a different or smaller file than
// the one read last time.
func (a *Agent) rotated(info os.FileInfo) bool {
	if a.info == nil {
		return false
	}
	return !os.SameFile(a.info, info) || info.Size() < a.info.Size()
}

func (a *Agent) scoreBatch(ctx context.Context, batch []string) error {
	resp, err := a.cfg.Scorer.ScoreAll(ctx, batch)
	if err != nil {
		return fmt.Errorf("score %d lines: %w", len(batch), err)
	}
	if len(resp.Scores) != len(batch) {
		return fmt.Errorf("scorer returned %d scores for %d lines", len(resp.Scores), len(batch))
	}

	ts := a.now().Format(time.RFC3339)
	for i, line := range batch {
		reason := "Unknown reason"
		if i < len(resp.Reasons) {
			reason = resp.Reasons[i]
		}
		score := resp.Scores[i]
		alert := ShouldAlert(line, score, a.cfg.AlertThreshold)

		a.record(Event{
			Time:   ts,
			Line:   redact.Redact(line),
			Score:  score,
			Alert:  alert,
			Reason: reason,
			Source: resp.Source,
		})
	}
	return nil
}

func (a *Agent) record(e Event) {
	entry := log.WithFields(log.Fields{
		"score":   fmt.Sprintf("%.2f", e.Score),
		"source":  e.Source,
		"command": e.Line,
		"reason":  e.Reason,
	})
	if e.Alert {
		entry.Warn("ALERT")
	} else {
		entry.Info("safe")
	}

	a.cfg.Events.Add(e)

	if a.cfg.Audit != nil {
		err := a.cfg.Audit.Log(logger.AuditEvent{
			Timestamp: e.Time,
			Line:      e.Line,
			Score:     e.Score,
			Alert:     e.Alert,
			Reason:    e.Reason,
			Source:    e.Source,
			Host:      a.cfg.Host,
		})
		if err != nil {
			log.WithError(err).Warn("audit log write failed")
		}
	}
}
