package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/trialmap/pkg/importer"
)

func openSources(cfg config) (*importer.SourceDB, error) {
	if err := ensureParent(cfg.SourcesDB); err != nil {
		return nil, err
	}
	sdb, err := importer.OpenSourceDB(cfg.SourcesDB)
	if err != nil {
		return nil, err
	}
	if err := sdb.Seed(importer.All()); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("seed sources: %w", err)
	}
	return sdb, nil
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	source := fs.String("source", "", "adapter ID to import (e.g. drugbank-bundle)")
	all := fs.Bool("all", false, "import every source with a configured URL")
	outputDir := fs.String("output-dir", "", "output directory (default from config)")
	setURL := fs.String("set-url", "", "store a download URL for -source and exit")
	check := fs.Bool("check", false, "probe every source URL and exit")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	if *outputDir == "" {
		*outputDir = cfg.DataDir
	}

	sdb, err := openSources(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", cfg.SourcesDB, err)
		os.Exit(1)
	}
	defer sdb.Close()

	if *setURL != "" {
		if *source == "" {
			fmt.Fprintln(os.Stderr, "Error: -set-url needs -source")
			os.Exit(1)
		}
		if err := sdb.SetURL(*source, *setURL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[%s] URL set\n", *source)
		return
	}

	if *check {
		importer.NewChecker(sdb, logger, time.Hour).CheckAll(context.Background())
		listSources(sdb)
		return
	}

	if !*all && *source == "" {
		listSources(sdb)
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  trialmap import -source <id> [-output-dir <dir>]")
		fmt.Println("  trialmap import -source <id> -set-url <url>")
		fmt.Println("  trialmap import -all [-output-dir <dir>]")
		fmt.Println("  trialmap import -check")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	if *all {
		failed := 0
		for _, a := range importer.All() {
			url, err := sdb.GetURL(a.ID())
			if err != nil {
				fmt.Fprintf(os.Stderr, "[%s] ERROR (URL): %v\n", a.ID(), err)
				failed++
				continue
			}
			if url == "" {
				fmt.Printf("[%s] skipped, no URL configured\n", a.ID())
				continue
			}
			if err := runImport(ctx, sdb, a, url, *outputDir); err != nil {
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	a, err := importer.Get(*source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Println("\nAvailable sources:")
		for _, a := range importer.All() {
			fmt.Printf("  %s\n", a.ID())
		}
		os.Exit(1)
	}

	url, err := sdb.GetURL(a.ID())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR (URL): %v\n", a.ID(), err)
		os.Exit(1)
	}
	if url == "" {
		fmt.Fprintf(os.Stderr, "[%s] no URL configured, use -set-url\n", a.ID())
		os.Exit(1)
	}
	if err := runImport(ctx, sdb, a, url, *outputDir); err != nil {
		os.Exit(1)
	}
}

// runImport imports one source and records the outcome in the source table.
func runImport(ctx context.Context, sdb *importer.SourceDB, a importer.Adapter, url, outputDir string) error {
	fmt.Printf("[%s] Importing...\n", a.ID())
	err := a.Import(ctx, url, outputDir)
	if recErr := sdb.RecordImport(a.ID(), err); recErr != nil {
		fmt.Fprintf(os.Stderr, "[%s] WARN: record import: %v\n", a.ID(), recErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", a.ID(), err)
		return err
	}
	fmt.Printf("[%s] OK -> %s/%s/\n", a.ID(), outputDir, a.Target())
	return nil
}

func listSources(sdb *importer.SourceDB) {
	sources, err := sdb.ListSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing sources: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Available sources:")
	fmt.Println()
	for _, src := range sources {
		status := ""
		if src.LastStatus != nil {
			status = fmt.Sprintf("  [%d]", *src.LastStatus)
		}
		if src.ImportError != nil {
			status += "  import failed"
		} else if src.LastImport != nil {
			status += "  imported " + time.Unix(*src.LastImport, 0).UTC().Format(time.DateOnly)
		}
		url := src.SourceURL
		if url == "" {
			url = "(no URL)"
		}
		fmt.Printf("  %-22s  %s  (-> %s)%s\n      %s\n", src.AdapterID, src.Description, src.Target, status, url)
	}
}
