package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gzhole/kubeguard/internal/client"
	"github.com/gzhole/kubeguard/internal/config"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show KubeGuard status: scoring server health, config, audit log",
	Long: `Check whether a scoring server is reachable and report its provider and
cache occupancy, along with the local config file and audit log.

  kubeguard status
  kubeguard status --server http://risk-scorer:8000`,
	RunE: statusCommand,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "Scoring server URL (default: derived from config listen)")
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(out, "  KubeGuard Status")
	_, _ = fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintf(out, "  Version:   %s\n", Version)
	_, _ = fmt.Fprintf(out, "  Config:    %s\n", configSource(cfg))
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "─── Scoring Server ────────────────────────────────────")
	url := statusServer
	if url == "" {
		url = serverURLFromListen(cfg.Listen)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	checkServer(ctx, out, url)
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(out, cfg.LogPath, time.Now())
	_, _ = fmt.Fprintln(out)

	return nil
}

func configSource(cfg *config.Config) string {
	if cfg.Source == "" {
		return "built-in defaults"
	}
	return cfg.Source
}

// serverURLFromListen turns a listen address such as ":8000" into a URL the
// local machine can reach.
func serverURLFromListen(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen
}

func checkServer(ctx context.Context, w io.Writer, url string) {
	h, err := client.New(url).Health(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(w, "  ⬚  %s: unreachable (%v)\n", url, err)
		return
	}

	_, _ = fmt.Fprintf(w, "  ✅ %s: %s\n", url, h.Status)
	if h.ExternalConfigured {
		_, _ = fmt.Fprintf(w, "  ✅ Provider: %s (keywords on failure)\n", h.Provider)
	} else {
		_, _ = fmt.Fprintf(w, "  ⚠  Provider: %s only (no external model configured)\n", h.Provider)
	}
	_, _ = fmt.Fprintf(w, "  Cache:     %s / %s entries\n", humanize.Comma(int64(h.CacheSize)), humanize.Comma(int64(h.CacheCapacity)))
}

func checkAuditLog(w io.Writer, path string, now time.Time) {
	if path == "" {
		_, _ = fmt.Fprintln(w, "  ⬚  No audit log path configured")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		_, _ = fmt.Fprintf(w, "  ⬚  %s (not yet created, will start on first event)\n", path)
		return
	}
	_, _ = fmt.Fprintf(w, "  ✅ %s (%s, updated %s)\n", path,
		humanize.Bytes(uint64(info.Size())), humanize.RelTime(info.ModTime(), now, "ago", "from now"))
}
