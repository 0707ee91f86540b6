package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/hazyhaar/trialmap/pkg/trial"
	"gopkg.in/yaml.v3"
)

type config struct {
	Addr string `yaml:"addr"`
	// DataDir receives imported bundles and intervention tables.
	DataDir      string `yaml:"data_dir"`
	BundleDir    string `yaml:"bundle_dir"`
	LedgerPath   string `yaml:"ledger_path"`
	SourcesDB    string `yaml:"sources_db"`
	PlaceboRules string `yaml:"placebo_rules"`
	// Drop lists intervention texts removed when loading for the cascade.
	Drop []string `yaml:"drop"`
	// LedgerRetentionDays prunes older runs on startup; 0 keeps everything.
	LedgerRetentionDays int           `yaml:"ledger_retention_days"`
	CheckInterval       time.Duration `yaml:"check_interval"`
	LogLevel            string        `yaml:"log_level"`
	Match               match.Config  `yaml:"match"`
}

func defaultConfig() config {
	return config{
		Addr:          ":8420",
		DataDir:       "data",
		BundleDir:     filepath.Join("data", "drugbank"),
		LedgerPath:    filepath.Join("data", "ledger.db"),
		SourcesDB:     filepath.Join("data", "sources.db"),
		PlaceboRules:  filepath.Join("configs", "placebo_rules.yaml"),
		Drop:          trial.DefaultReadOptions().Drop,
		CheckInterval: 24 * time.Hour,
		LogLevel:      "info",
		Match: match.Config{
			Boundary:    match.BoundaryLeft,
			PatternMode: match.PatternLiteral,
			Fuzzy:       match.DefaultFuzzyOptions(),
		},
	}
}

func loadConfig(path string, logger *slog.Logger) config {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg
		}
		logger.Error("read config", "error", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("parse config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setup loads the config file and installs a logger at its level.
func setup(cfgPath string) (config, *slog.Logger) {
	boot := newLogger("info")
	cfg := loadConfig(cfgPath, boot)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	cfg.Match.Logger = logger
	return cfg, logger
}

// ensureParent creates the directory holding path.
func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
