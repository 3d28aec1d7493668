// Command importer runs a sales or stock import from a local file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/suivivente/apps/api/internal/config"
	"github.com/suivivente/apps/api/internal/db"
	"github.com/suivivente/apps/api/internal/importer"
	"github.com/suivivente/apps/api/internal/store"
)

func main() {
	file := flag.String("file", "", "spreadsheet or CSV file to import")
	kindFlag := flag.String("kind", string(importer.KindSales), "import kind: sales or stock")
	modeFlag := flag.String("mode", string(importer.ModeDryRun), "dry_run or apply")
	flag.Parse()

	if err := run(*file, *kindFlag, *modeFlag); err != nil {
		fmt.Fprintln(os.Stderr, "importer:", err)
		os.Exit(1)
	}
}

type report struct {
	Outcome importer.Outcome      `json:"outcome"`
	Totals  importer.Totals       `json:"totals"`
	Records []importer.RowSummary `json:"records"`
}

func run(file, kindFlag, modeFlag string) error {
	if file == "" {
		return fmt.Errorf("-file is required")
	}
	kind, err := importer.ParseKind(kindFlag)
	if err != nil {
		return err
	}
	mode := importer.Mode(modeFlag)
	if mode != importer.ModeDryRun && mode != importer.ModeApply {
		return fmt.Errorf("unknown mode %q (expected dry_run or apply)", modeFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := importer.NewService(store.New(pool), logger,
		importer.WithBatchSize(cfg.ImportBatchSize),
		importer.WithMaxRows(cfg.ImportMaxRows),
	)
	preview, outcome, err := svc.Run(ctx, mode, kind, filepath.Base(file), data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report{
		Outcome: outcome,
		Totals:  preview.Totals,
		Records: importer.Rows(preview, outcome),
	}); err != nil {
		return err
	}
	if outcome.Errors > 0 {
		return fmt.Errorf("%d rows failed", outcome.Errors)
	}
	return nil
}
