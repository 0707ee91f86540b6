package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/trialmap/pkg/api"
	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/importer"
	"github.com/hazyhaar/trialmap/pkg/ledger"
	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "placebo":
		cmdPlacebo(os.Args[2:])
	case "snapshot":
		cmdSnapshot(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: trialmap <command> [flags]

Commands:
  run       Map an intervention table to DrugBank drugs
  placebo   Annotate placebo arms matched to a drug
  snapshot  Build the gob cache for a reference bundle
  runs      List recorded runs
  import    Download reference tables and intervention exports
  serve     Start the HTTP and MCP server
`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)

	// Load the reference bundle.
	reg := dict.NewRegistry(cfg.BundleDir)
	if err := reg.Load(); err != nil {
		logger.Error("failed to load reference bundle", "error", err)
		os.Exit(1)
	}
	info, _ := reg.Info()
	logger.Info("reference bundle loaded", "id", info.ID, "version", info.Version, "drugs", info.Drugs, "names", info.Names)

	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runs *ledger.Ledger
	if cfg.LedgerPath != "" {
		l, err := openLedger(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open ledger", "error", err)
			os.Exit(1)
		}
		defer l.Close()
		runs = l
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := match.NewPrometheusRecorder(promReg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}
	cfg.Match.Recorder = recorder

	router := api.NewRouter(api.Config{
		Registry: reg,
		Ledger:   runs,
		Match:    cfg.Match,
		Gatherer: promReg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP: hot reload the reference bundle.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading reference bundle")
			if err := reg.Reload(); err != nil {
				logger.Error("reload failed", "error", err)
			} else {
				info, _ := reg.Info()
				logger.Info("reference bundle reloaded", "version", info.Version, "drugs", info.Drugs)
			}
		}
	}()

	if cfg.SourcesDB != "" && cfg.CheckInterval > 0 {
		sdb, err := openSources(cfg)
		if err != nil {
			logger.Warn("source checker disabled", "error", err)
		} else {
			defer sdb.Close()
			go importer.NewChecker(sdb, logger, cfg.CheckInterval).Start(ctx)
		}
	}

	// Start server.
	go func() {
		logger.Info("trialmap listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
