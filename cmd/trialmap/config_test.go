package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/trialmap/pkg/match"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger())
	if cfg.Addr != ":8420" || cfg.Match.Fuzzy.CandidateMax != 5 || cfg.Match.Fuzzy.AcceptDistance != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Drop) != 2 {
		t.Errorf("drop = %v", cfg.Drop)
	}
}

func TestLoadConfig_Example(t *testing.T) {
	cfg := loadConfig(filepath.Join("..", "..", "configs", "config.example.yaml"), quietLogger())
	if cfg.CheckInterval != 24*time.Hour || cfg.LedgerRetentionDays != 180 {
		t.Errorf("interval = %v retention = %d", cfg.CheckInterval, cfg.LedgerRetentionDays)
	}
	if cfg.Match.Boundary != match.BoundaryLeft || cfg.Match.PatternMode != match.PatternLiteral {
		t.Errorf("match = %+v", cfg.Match)
	}
}

func TestLoadConfig_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "addr: \":9000\"\nmatch:\n  boundary: both\n  disabled: [fuzzy]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := loadConfig(path, quietLogger())
	if cfg.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Match.Boundary != match.BoundaryBoth {
		t.Errorf("boundary = %q", cfg.Match.Boundary)
	}
	if len(cfg.Match.Disabled) != 1 || cfg.Match.Disabled[0] != match.ProvenanceFuzzy {
		t.Errorf("disabled = %v", cfg.Match.Disabled)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Match.Fuzzy.CandidateMax != 5 || cfg.BundleDir != filepath.Join("data", "drugbank") {
		t.Errorf("defaults lost: %+v", cfg)
	}
}
