package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/kubeguard/internal/logger"
)

var (
	logFilterSource string
	logAlertsOnly   bool
	logLast         int
	logSummary      bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the KubeGuard audit log with filtering and summary options.

Examples:
  kubeguard log                     # Show all entries
  kubeguard log --last 20           # Show last 20 entries
  kubeguard log --alerts            # Show only alerts
  kubeguard log --source gemini     # Show only lines scored by the model
  kubeguard log --summary           # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterSource, "source", "", "Filter by source (gemini, keywords, cache)")
	logCmd.Flags().BoolVar(&logAlertsOnly, "alerts", false, "Show only alerts")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := readAuditLog(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilterSource, logAlertsOnly)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}
	printEvents(out, filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, source string, alertsOnly bool) []logger.AuditEvent {
	if source == "" && !alertsOnly {
		return events
	}

	var filtered []logger.AuditEvent
	for _, e := range events {
		if source != "" && !strings.EqualFold(e.Source, source) {
			continue
		}
		if alertsOnly && !e.Alert {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		_, _ = fmt.Fprintf(w, "%s %s %.2f %s\n", alertIcon(e.Alert), formatTimestamp(e.Timestamp), e.Score, e.Line)
		_, _ = fmt.Fprintf(w, "     Reason: %s\n", e.Reason)
		_, _ = fmt.Fprintf(w, "     Source: %s", e.Source)
		if e.Host != "" {
			_, _ = fmt.Fprintf(w, "  Host: %s", e.Host)
		}
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	alerts := 0
	bySource := map[string]int{}
	for _, e := range all {
		if e.Alert {
			alerts++
		}
		bySource[e.Source]++
	}

	_, _ = fmt.Fprintln(w, "═══════════════════════════════════════════")
	_, _ = fmt.Fprintln(w, "  KubeGuard Audit Summary")
	_, _ = fmt.Fprintln(w, "═══════════════════════════════════════════")
	_, _ = fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	_, _ = fmt.Fprintf(w, "  Alerts:          %d\n", alerts)
	_, _ = fmt.Fprintf(w, "  Model (gemini):  %d\n", bySource["gemini"])
	_, _ = fmt.Fprintf(w, "  Keywords:        %d\n", bySource["keywords"])
	_, _ = fmt.Fprintf(w, "  Cache:           %d\n", bySource["cache"])
	_, _ = fmt.Fprintln(w, "═══════════════════════════════════════════")
	_, _ = fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	_, _ = fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	var alerted []logger.AuditEvent
	for _, e := range all {
		if e.Alert {
			alerted = append(alerted, e)
		}
	}
	if len(alerted) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "  Recent alerts:")
		limit := len(alerted)
		if limit > 10 {
			limit = 10
		}
		for _, e := range alerted[len(alerted)-limit:] {
			_, _ = fmt.Fprintf(w, "    %s %.2f %s\n", formatTimestamp(e.Timestamp), e.Score, e.Line)
		}
	}
	_, _ = fmt.Fprintln(w)
}

func alertIcon(alert bool) string {
	if alert {
		return "\xf0\x9f\x9a\xa8" // rotating light
	}
	return "\xe2\x9c\x85" // check mark
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
