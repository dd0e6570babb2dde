package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"yashubustudio/tiler/tiler"
)

type cliOptions struct {
	configPath  string
	catalogPath string
	tilesDir    string
	outputPath  string
	exportPath  string
	writeConfig string
	order       bool
	verify      bool
	verbose     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		log.Fatalf("tiler-cli: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("tiler-cli: %v", err)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "Path to config.json (default: ./config.json)")
	flag.StringVar(&opts.catalogPath, "catalog", "", "Catalog JSON (default: catalogPath from config)")
	flag.StringVar(&opts.tilesDir, "tiles", "", "Directory of uploaded tiles named {row}-{column}.ext")
	flag.StringVar(&opts.outputPath, "output", "", "CSV file to write the reconstructed grid to")
	flag.StringVar(&opts.exportPath, "export", "", "JSON file to write manual overrides to (- for stdout)")
	flag.StringVar(&opts.writeConfig, "write-config", "", "Write the effective config to this path and exit")
	flag.BoolVar(&opts.order, "order", false, "Print catalog tiles in darkness render order")
	flag.BoolVar(&opts.verify, "verify", false, "Classify the catalog's verification tiles")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-tiles DIR] [-order] [-verify] [-export FILE] [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.catalogPath = strings.TrimSpace(opts.catalogPath)
	opts.tilesDir = strings.TrimSpace(opts.tilesDir)
	opts.outputPath = strings.TrimSpace(opts.outputPath)
	opts.exportPath = strings.TrimSpace(opts.exportPath)
	opts.writeConfig = strings.TrimSpace(opts.writeConfig)
	if opts.writeConfig != "" {
		return opts, nil
	}

	if opts.tilesDir == "" && opts.exportPath == "" && !opts.order && !opts.verify {
		flag.Usage()
		return opts, errors.New("nothing to do: pass -tiles, -order, -verify or -export")
	}
	if opts.outputPath != "" && opts.tilesDir == "" {
		return opts, errors.New("-output requires -tiles")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	cfg, err := tiler.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.catalogPath != "" {
		cfg.CatalogPath = opts.catalogPath
	}
	if opts.writeConfig != "" {
		if err := tiler.SaveConfig(opts.writeConfig, cfg); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "config written to %s\n", opts.writeConfig)
		return nil
	}
	labels, err := cfg.LabelSet()
	if err != nil {
		return err
	}
	catalog, err := tiler.LoadCatalog(cfg.CatalogPath, labels)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	embedder, err := tiler.NewEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	service, err := tiler.NewService(embedder, cfg, catalog, logger)
	if err != nil {
		embedder.Close()
		return fmt.Errorf("init service: %w", err)
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.exportPath != "" {
		if err := exportOverrides(service.Overrides(), opts.exportPath); err != nil {
			return err
		}
	}
	if opts.order {
		if err := printOrder(ctx, service); err != nil {
			return err
		}
	}
	if !opts.verify && opts.tilesDir == "" {
		return nil
	}

	report, err := service.Train(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		fmt.Fprintf(os.Stderr, "skipped training tile %s: %v\n", f.Source, f.Err)
	}

	if opts.verify {
		results, err := service.Verify(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		printVerify(results)
	}
	if opts.tilesDir != "" {
		uploads, err := tiler.ReadUploadDir(opts.tilesDir)
		if err != nil {
			return err
		}
		grid, err := service.Reconstruct(ctx, uploads)
		if err != nil {
			return err
		}
		fmt.Print(service.FormatGrid(grid))
		if opts.outputPath != "" {
			if err := writeGridCSV(opts.outputPath, grid); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "grid written to %s\n", opts.outputPath)
		}
	}
	return nil
}

func exportOverrides(store *tiler.OverrideStore, path string) error {
	if path == "-" {
		return store.WriteJSON(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	if err := store.WriteJSON(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d override(s) written to %s\n", store.Len(), path)
	return nil
}

func printOrder(ctx context.Context, service *tiler.Service) error {
	order, err := service.ComputeOrder(ctx)
	if err != nil {
		return fmt.Errorf("compute order: %w", err)
	}
	catalog := service.Catalog()
	for pos, tile := range order.Sorted(catalog.Len()) {
		label := ""
		if l, ok := service.Overrides().Get(tile); ok {
			label = string(l)
		}
		fmt.Printf("%4d  %4d  %-3s %s\n", pos, tile, label, catalog.Tiles[tile])
	}
	return nil
}

func printVerify(results []tiler.VerifyResult) {
	fmt.Println("==== verification ====")
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %s: error: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Printf("  %s: %s (%.2f)\n", r.Source, r.Prediction.Label, r.Prediction.Confidences[r.Prediction.Label])
	}
}

func writeGridCSV(path string, grid *tiler.Grid) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(absPath)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()
	return grid.WriteCSV(f)
}
