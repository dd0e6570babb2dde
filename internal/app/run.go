package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	fyneapp "fyne.io/fyne/v2/app"

	"yashubustudio/tiler/tiler"
)

const fyneAppID = "studio.yashubu.tiler"

// Run loads config and catalog, starts training in the background and runs the desktop UI.
func Run(configPath string) error {
	cfg, err := tiler.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	labels, err := cfg.LabelSet()
	if err != nil {
		return err
	}
	catalog, err := tiler.LoadCatalog(cfg.CatalogPath, labels)
	if err != nil {
		return fmt.Errorf("カタログの読み込みに失敗しました: %w", err)
	}

	embedder, err := tiler.NewEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("埋め込みエンジンの初期化に失敗しました: %w", err)
	}

	sink := newLogSink(200, nil)
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, sink), nil))
	svc, err := tiler.NewService(embedder, cfg, catalog, logger)
	if err != nil {
		embedder.Close()
		return fmt.Errorf("サービス初期化に失敗しました: %w", err)
	}
	defer svc.Close()

	u := newUIState(svc, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := fyneapp.NewWithID(fyneAppID)
	buildUI(a, u)
	u.start(ctx)
	u.w.ShowAndRun()
	return nil
}
