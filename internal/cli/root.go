package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/kubeguard/internal/config"
	"github.com/gzhole/kubeguard/internal/logger"
)

var (
	configPath string
	logPath    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "kubeguard",
	Short: "KubeGuard - risk scoring for shell commands",
	Long: `KubeGuard scores shell command lines for security risk. Each line gets a
probability in [0,1] and a short reason, from an external language model when
one is configured and from a weighted keyword heuristic otherwise. Results are
cached so repeated commands are answered without rescoring.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file (default: ~/.kubeguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.kubeguard/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $KUBEGUARD_LOG or info)")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
