package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/kubeguard/internal/guardian"
)

const (
	DefaultConfigDir  = ".kubeguard"
	DefaultConfigFile = "config.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultListen     = ":8000"
	DefaultMaxBatch   = 500
)

type Config struct {
	Listen    string          `yaml:"listen"`
	MaxBatch  int             `yaml:"max_batch"`
	LogPath   string          `yaml:"log_path"`
	Cache     CacheConfig     `yaml:"cache"`
	Heuristic HeuristicConfig `yaml:"heuristic"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`

	// ConfigDir and Source are resolved at load time, not read from YAML.
	ConfigDir string `yaml:"-"`
	Source    string `yaml:"-"`
}

type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// HeuristicConfig is a list rather than a map so token order survives YAML.
type HeuristicConfig struct {
	Bias    float64           `yaml:"bias"`
	Weights []guardian.Weight `yaml:"weights"`
}

// LLMConfig configures the external provider. It is considered configured
// only when APIKey is set.
type LLMConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

type AgentConfig struct {
	HistoryPath    string        `yaml:"history_path"`
	Interval       time.Duration `yaml:"interval"`
	AlertThreshold float64       `yaml:"alert_threshold"`
	MaxEvents      int           `yaml:"max_events"`
	ScorerURL      string        `yaml:"scorer_url"`
	Listen         string        `yaml:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:   DefaultListen,
		MaxBatch: DefaultMaxBatch,
		Cache: CacheConfig{
			Capacity: 1024,
			TTL:      time.Hour,
		},
		Heuristic: HeuristicConfig{
			Bias:    guardian.DefaultBias,
			Weights: guardian.DefaultWeights(),
		},
		LLM: LLMConfig{
			BaseURL: guardian.DefaultLLMBaseURL,
			Model:   guardian.DefaultLLMModel,
			Timeout: guardian.DefaultLLMTimeout,
		},
		Agent: AgentConfig{
			HistoryPath:    "/tmp/fake_bash_history.log",
			Interval:       10 * time.Second,
			AlertThreshold: 0.6,
			MaxEvents:      100,
			ScorerURL:      "http://risk-scorer:8000",
			Listen:         ":9000",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then
// environment overrides. An empty configPath means ~/.kubeguard/config.yaml,
// which may be absent; an explicit path must exist.
func Load(configPath, logPath string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)

	cfg := Default()
	cfg.ConfigDir = configDir

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(configDir, DefaultConfigFile)
	}
	if err := cfg.readFile(configPath, explicit); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	switch {
	case logPath != "":
		cfg.LogPath = logPath
	case cfg.LogPath == "":
		if err := ensureDir(configDir); err != nil {
			return nil, err
		}
		cfg.LogPath = filepath.Join(configDir, DefaultLogFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("KUBEGUARD_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("KUBEGUARD_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("KUBEGUARD_LISTEN"); v != "" {
		c.Listen = v
	}
}

// HasExternal reports whether an external provider is configured.
func (c *Config) HasExternal() bool {
	return c.LLM.APIKey != ""
}

// Validate rejects values the scoring pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Cache.Capacity < 1 {
		return errors.New("cache.capacity must be at least 1")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if c.MaxBatch < 1 {
		return errors.New("max_batch must be at least 1")
	}
	for i, w := range c.Heuristic.Weights {
		if w.Token == "" {
			return fmt.Errorf("heuristic.weights[%d]: empty token", i)
		}
		if w.Weight < 0 {
			return fmt.Errorf("heuristic.weights[%d] (%s): weight must not be negative", i, w.Token)
		}
	}
	if c.Agent.AlertThreshold < 0 || c.Agent.AlertThreshold > 1 {
		return errors.New("agent.alert_threshold must be within [0,1]")
	}
	return nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
