package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gzhole/kubeguard/internal/client"
	"github.com/gzhole/kubeguard/internal/history"
	"github.com/gzhole/kubeguard/internal/scoring"
)

var (
	scoreFile   string
	scoreScript bool
	scoreJSON   bool
	scoreServer string
)

var scoreCmd = &cobra.Command{
	Use:   "score [LINE...]",
	Short: "Score command lines for risk",
	Long: `Score one or more command lines. Each argument is one line; with --file
the file is read instead, and with no arguments lines are read from stdin.

By default lines are scored in-process with the configured providers. With
--server they are sent to a running scoring server.

  kubeguard score "nmap -sV 10.0.0.1" "ls -la"
  kubeguard score --file ~/.bash_history
  kubeguard score --script --file install.sh --json`,
	RunE: scoreCommand,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "Read lines from this file")
	scoreCmd.Flags().BoolVar(&scoreScript, "script", false, "Parse input as a shell script and score each statement")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print the raw JSON response")
	scoreCmd.Flags().StringVar(&scoreServer, "server", "", "Score with a running server at this URL instead of in-process")
	rootCmd.AddCommand(scoreCmd)
}

func scoreCommand(cmd *cobra.Command, args []string) error {
	lines, err := readScoreInput(cmd, args)
	if err != nil {
		return err
	}

	var resp scoring.Response
	if scoreServer != "" {
		resp, err = client.New(scoreServer).Score(cmd.Context(), lines)
		if err != nil {
			return err
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(cfg, nil)
		if err != nil {
			return err
		}
		resp = orch.ScoreAll(cmd.Context(), lines)
	}

	out := cmd.OutOrStdout()
	if scoreJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderScores(out, lines, resp, isTerminal(os.Stdout))
	return nil
}

func readScoreInput(cmd *cobra.Command, args []string) ([]string, error) {
	var text string
	switch {
	case scoreFile != "":
		if len(args) > 0 {
			return nil, errors.New("give lines as arguments or --file, not both")
		}
		data, err := os.ReadFile(scoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", scoreFile, err)
		}
		text = string(data)
	case len(args) > 0:
		text = strings.Join(args, "\n")
	default:
		if isTerminal(os.Stdin) {
			return nil, errors.New("no input: pass lines as arguments, --file, or pipe them on stdin")
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	if scoreScript {
		return history.Statements(text), nil
	}
	return history.Lines(text), nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

var (
	highRisk = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	midRisk  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	lowRisk  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle = lipgloss.NewStyle().Faint(true)
)

// renderScores prints one row per line. Colors are applied only when styled.
func renderScores(w io.Writer, lines []string, resp scoring.Response, styled bool) {
	if len(lines) == 0 {
		_, _ = fmt.Fprintln(w, "no lines to score")
		return
	}

	rows := make([][]string, len(lines))
	for i, line := range lines {
		score := fmt.Sprintf("%.3f", resp.Scores[i])
		if styled {
			score = riskStyle(resp.Scores[i]).Render(score)
		}
		rows[i] = []string{score, line, resp.Reasons[i]}
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		Headers("SCORE", "COMMAND", "REASON").
		Rows(rows...)
	_, _ = fmt.Fprintln(w, t.Render())

	footer := fmt.Sprintf("source: %s", resp.Source)
	if styled {
		footer = dimStyle.Render(footer)
	}
	_, _ = fmt.Fprintln(w, footer)
}

func riskStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.6:
		return highRisk
	case score >= 0.3:
		return midRisk
	default:
		return lowRisk
	}
}
