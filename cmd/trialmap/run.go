package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/ledger"
	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/hazyhaar/trialmap/pkg/placebo"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	input := fs.String("input", "", "intervention table (nct_id, intervention, intervention_type)")
	output := fs.String("output", "mapping.csv", "mapping table to write")
	unmapped := fs.String("unmapped", "", "optional table of drug interventions left unmapped")
	provenance := fs.Bool("provenance", false, "add db_id and provenance columns")
	workers := fs.Int("workers", 0, "parallel shards per stage (0 = GOMAXPROCS)")
	noLedger := fs.Bool("no-ledger", false, "do not record the run in the ledger")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	if *input == "" {
		*input = filepath.Join(cfg.DataDir, "interventions", "interventions.csv")
	}
	if *workers > 0 {
		cfg.Match.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := dict.LoadSnapshot(cfg.BundleDir)
	if err != nil {
		logger.Error("failed to load reference bundle", "error", err)
		os.Exit(1)
	}
	records, stats, err := trial.LoadInterventions(*input, trial.ReadOptions{Drop: cfg.Drop})
	if err != nil {
		logger.Error("failed to load interventions", "error", err)
		os.Exit(1)
	}
	logger.Info("interventions loaded",
		"path", *input,
		"records", len(records),
		"empty", stats.EmptyText,
		"dropped", stats.Dropped,
		"duplicates", stats.Duplicates,
		"malformed", stats.Malformed,
	)

	pipe, err := match.NewPipeline(snap, cfg.Match)
	if err != nil {
		logger.Error("invalid match config", "error", err)
		os.Exit(1)
	}
	started := time.Now()
	res, err := pipe.Run(ctx, records)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	if err := match.WriteFile(*output, func(w io.Writer) error {
		return match.WriteMappings(w, res.Mappings, *provenance)
	}); err != nil {
		logger.Error("write mappings", "error", err)
		os.Exit(1)
	}
	if *unmapped != "" {
		if err := match.WriteFile(*unmapped, func(w io.Writer) error {
			return match.WriteInterventions(w, res.Unmapped)
		}); err != nil {
			logger.Error("write unmapped", "error", err)
			os.Exit(1)
		}
	}

	attrs := []any{
		"output", *output,
		"mappings", len(res.Mappings),
		"drug_trials", res.DrugTrials,
		"mapped_trials", res.MappedTrials,
		"coverage", fmt.Sprintf("%.4f", res.Coverage),
		"unmapped", len(res.Unmapped),
		"duration", res.Duration,
	}

	if !*noLedger && cfg.LedgerPath != "" {
		l, err := openLedger(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open ledger", "error", err)
			os.Exit(1)
		}
		defer l.Close()
		abs, _ := filepath.Abs(*input)
		run, err := l.Record(ctx, ledger.Meta{
			BundleID:      snap.Manifest.ID,
			BundleVersion: snap.Manifest.Version,
			Input:         abs,
			StartedAt:     started,
		}, res)
		if err != nil {
			logger.Error("record run", "error", err)
			os.Exit(1)
		}
		attrs = append(attrs, "run_id", run.ID)
	}
	logger.Info("run complete", attrs...)
}

func cmdPlacebo(args []string) {
	fs := flag.NewFlagSet("placebo", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	input := fs.String("input", "", "intervention table (nct_id, intervention, intervention_type)")
	output := fs.String("output", "placebo.csv", "annotation table to write")
	rulesPath := fs.String("rules", "", "placebo exclusion rules (default from config)")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	if *input == "" {
		*input = filepath.Join(cfg.DataDir, "interventions", "interventions.csv")
	}
	if *rulesPath == "" {
		*rulesPath = cfg.PlaceboRules
	}

	rules := placebo.DefaultRules()
	if *rulesPath != "" {
		r, err := placebo.LoadRules(*rulesPath)
		switch {
		case err == nil:
			rules = r
		case errors.Is(err, os.ErrNotExist):
			logger.Info("no placebo rules file, using built-in rules", "path", *rulesPath)
		default:
			logger.Error("load placebo rules", "error", err)
			os.Exit(1)
		}
	}

	snap, err := dict.LoadSnapshot(cfg.BundleDir)
	if err != nil {
		logger.Error("failed to load reference bundle", "error", err)
		os.Exit(1)
	}
	// Placebo rows are the input here, so nothing is dropped on load.
	records, _, err := trial.LoadInterventions(*input, trial.ReadOptions{})
	if err != nil {
		logger.Error("failed to load interventions", "error", err)
		os.Exit(1)
	}

	rows, rep := placebo.NewAnnotator(snap, rules).Annotate(records)
	if err := match.WriteFile(*output, func(w io.Writer) error {
		return placebo.WriteRows(w, rows)
	}); err != nil {
		logger.Error("write placebo rows", "error", err)
		os.Exit(1)
	}
	logger.Info("placebo annotation complete",
		"output", *output,
		"selected", rep.Selected,
		"excluded_contains", rep.Excluded[placebo.ReasonContains],
		"excluded_prefix", rep.Excluded[placebo.ReasonPrefix],
		"excluded_suffix", rep.Excluded[placebo.ReasonSuffix],
		"excluded_exact", rep.Excluded[placebo.ReasonExact],
		"remaining", rep.Remaining,
		"rows", rep.Rows,
		"trials", rep.Trials,
		"drugs", rep.Drugs,
	)
}

func cmdSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	bundle := fs.String("bundle", "", "bundle directory (default from config)")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	if *bundle == "" {
		*bundle = cfg.BundleDir
	}

	// Rebuild from CSV: an existing gob would be loaded instead.
	gobPath := filepath.Join(*bundle, dict.SnapshotFile)
	if err := os.Remove(gobPath); err != nil && !os.IsNotExist(err) {
		logger.Error("remove old snapshot", "error", err)
		os.Exit(1)
	}
	snap, err := dict.LoadSnapshot(*bundle)
	if err != nil {
		logger.Error("failed to load reference bundle", "error", err)
		os.Exit(1)
	}
	if err := dict.SaveGob(snap, gobPath); err != nil {
		logger.Error("save snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("snapshot written",
		"path", gobPath,
		"drugs", len(snap.Drugs),
		"names", len(snap.Names()),
		"synonyms", len(snap.Synonyms),
		"products", len(snap.Products),
		"identifiers", len(snap.Identifiers),
	)
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	limit := fs.Int("limit", 20, "number of runs to list")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	ctx := context.Background()
	l, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer l.Close()

	runs, err := l.ListRuns(ctx, *limit)
	if err != nil {
		logger.Error("list runs", "error", err)
		os.Exit(1)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tBUNDLE\tTRIALS\tMAPPED\tCOVERAGE\tUNMAPPED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s@%s\t%d\t%d\t%.4f\t%d\n",
			r.ID,
			time.Unix(r.StartedAt, 0).UTC().Format(time.RFC3339),
			r.BundleID, r.BundleVersion,
			r.DrugTrials, r.MappedTrials, r.Coverage, r.Unmapped,
		)
	}
	tw.Flush()
}

// openLedger opens the run ledger and applies the retention window.
func openLedger(ctx context.Context, cfg config, logger *slog.Logger) (*ledger.Ledger, error) {
	if err := ensureParent(cfg.LedgerPath); err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	if cfg.LedgerRetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.LedgerRetentionDays)
		n, err := l.Prune(ctx, cutoff)
		if err != nil {
			l.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("pruned old runs", "count", n, "before", cutoff.Format(time.DateOnly))
		}
	}
	return l, nil
}
