package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/tiler/tiler"
)

const (
	logDebounceInterval = 150 * time.Millisecond
	tileSize            = 48
)

type tileCell struct {
	index int
	bg    *canvas.Rectangle
}

type uiState struct {
	service *tiler.Service
	cfg     tiler.Config
	logger  *slog.Logger

	w           fyne.Window
	status      *widget.Label
	progress    *widget.ProgressBarInfinite
	statusBind  binding.String
	logBind     binding.String
	dumpBind    binding.String
	gridBind    binding.String
	verifyBind  binding.String
	logs        *logSink
	logUpdateCh chan struct{}

	selected    tiler.LabelCode
	selectedLbl *widget.Label
	labelBtns   map[tiler.LabelCode]*widget.Button
	wall        *fyne.Container
	cellsMu     sync.Mutex
	cells       map[int]*tileCell

	gridMu   sync.Mutex
	lastGrid *tiler.Grid

	reconstructBtn *widget.Button
	saveGridBtn    *widget.Button
	clearBtn       *widget.Button
}

func newUIState(svc *tiler.Service, logs *logSink, logger *slog.Logger) *uiState {
	u := &uiState{service: svc, cfg: svc.Config(), logs: logs, logger: logger, cells: make(map[int]*tileCell)}
	u.statusBind = binding.NewString()
	u.logBind = binding.NewString()
	u.dumpBind = binding.NewString()
	u.gridBind = binding.NewString()
	u.verifyBind = binding.NewString()
	u.startLogUpdater()
	logs.setNotify(u.requestLogFlush)
	return u
}

func buildUI(a fyne.App, u *uiState) {
	u.w = a.NewWindow("Tiler - ブリーチプロトコル タイル分類")
	_ = u.statusBind.Set("学習待ち")

	u.status = widget.NewLabelWithData(u.statusBind)
	u.progress = widget.NewProgressBarInfinite()
	u.progress.Hide()

	logView := widget.NewEntryWithData(u.logBind)
	logView.MultiLine = true
	logView.Wrapping = fyne.TextWrapWord
	logView.SetPlaceHolder("処理ログ")
	logView.Disable()

	dumpView := widget.NewEntryWithData(u.dumpBind)
	dumpView.MultiLine = true
	dumpView.Wrapping = fyne.TextWrapBreak
	dumpView.SetPlaceHolder("手動ラベル (JSON)")

	gridView := widget.NewEntryWithData(u.gridBind)
	gridView.MultiLine = true
	gridView.TextStyle = fyne.TextStyle{Monospace: true}
	gridView.SetPlaceHolder("再構成したグリッド")

	verifyView := widget.NewLabelWithData(u.verifyBind)
	verifyView.Wrapping = fyne.TextWrapWord

	u.selectedLbl = widget.NewLabel("ラベル未選択")
	labelBar := container.NewHBox(u.selectedLbl)
	u.labelBtns = make(map[tiler.LabelCode]*widget.Button)
	for _, code := range u.service.Labels().Codes() {
		btn := widget.NewButton(string(code), func() { u.selectLabel(code) })
		btn.Importance = widget.LowImportance
		u.labelBtns[code] = btn
		swatch := canvas.NewRectangle(labelColor(u.cfg, u.service.Labels(), code))
		swatch.SetMinSize(fyne.NewSize(8, 8))
		labelBar.Add(container.NewStack(swatch, btn))
	}

	u.wall = container.NewGridWrap(fyne.NewSize(tileSize, tileSize))
	u.renderWall(nil)

	u.reconstructBtn = widget.NewButtonWithIcon("スクショ読込・再構成", theme.FolderOpenIcon(), func() { u.onReconstruct() })
	u.reconstructBtn.Disable()
	u.saveGridBtn = widget.NewButtonWithIcon("CSV保存", theme.DocumentSaveIcon(), func() { u.onSaveGrid() })
	u.saveGridBtn.Disable()
	u.clearBtn = widget.NewButtonWithIcon("クリア", theme.ContentClearIcon(), func() { u.onClear() })
	exportBtn := widget.NewButtonWithIcon("手動ラベル保存", theme.DocumentSaveIcon(), func() { u.onExportOverrides() })

	left := container.NewBorder(
		container.NewVBox(labelBar, widget.NewSeparator()),
		container.NewVBox(widget.NewLabel("検証"), verifyView),
		nil, nil,
		container.NewVScroll(u.wall),
	)
	right := container.NewVSplit(
		container.NewBorder(
			container.NewHBox(u.reconstructBtn, u.saveGridBtn, u.clearBtn),
			nil, nil, nil,
			gridView,
		),
		container.NewVSplit(
			container.NewBorder(container.NewHBox(widget.NewLabel("ダンプ"), exportBtn), nil, nil, nil, dumpView),
			logView,
		),
	)
	split := container.NewHSplit(left, right)
	split.Offset = 0.6

	u.w.SetContent(container.NewBorder(nil, container.NewHBox(u.status, u.progress), nil, nil, split))
	u.w.Resize(fyne.NewSize(1180, 760))
	u.refreshDump()
}

// start trains the classifier, runs verification and computes the render
// order in the background.
func (u *uiState) start(ctx context.Context) {
	go func() {
		order, err := u.service.ComputeOrder(ctx)
		if err != nil {
			u.logger.Warn("render order failed; catalog order is used", "err", err)
			return
		}
		fyne.Do(func() { u.renderWall(order) })
	}()

	u.showProgress(true)
	u.setStatus("学習中...")
	go func() {
		defer u.showProgress(false)
		start := time.Now()
		report, err := u.service.Train(ctx)
		if err != nil {
			u.setStatus("学習エラー")
			u.showError(err)
			return
		}
		u.setStatus(fmt.Sprintf("学習完了 %d件 (%.1fs)", report.Added, time.Since(start).Seconds()))
		fyne.Do(func() { u.reconstructBtn.Enable() })

		results, err := u.service.Verify(ctx)
		if err != nil {
			u.logger.Error("verification failed", "err", err)
			return
		}
		_ = u.verifyBind.Set(formatVerify(results))
	}()
}

func (u *uiState) selectLabel(code tiler.LabelCode) {
	u.selected = code
	u.selectedLbl.SetText("選択中: " + string(code))
	for c, btn := range u.labelBtns {
		if c == code {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.LowImportance
		}
		btn.Refresh()
	}
}

// renderWall lays out the catalog tiles in order. Must run on the UI goroutine.
func (u *uiState) renderWall(order tiler.RenderOrder) {
	catalog := u.service.Catalog()
	objs := make([]fyne.CanvasObject, 0, catalog.Len())
	u.cellsMu.Lock()
	for _, i := range order.Sorted(catalog.Len()) {
		cell, ok := u.cells[i]
		if !ok {
			cell = &tileCell{index: i, bg: canvas.NewRectangle(color.Transparent)}
			u.cells[i] = cell
		}
		objs = append(objs, u.tileObject(cell, catalog.Tiles[i]))
		u.paintCell(cell)
	}
	u.cellsMu.Unlock()
	u.wall.Objects = objs
	u.wall.Refresh()
}

func (u *uiState) tileObject(cell *tileCell, src string) fyne.CanvasObject {
	img := canvas.NewImageFromFile(tilePath(u.service.Catalog().Dir, src))
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(tileSize-8, tileSize-8))
	btn := widget.NewButton("", func() { u.onTileTapped(cell) })
	btn.Importance = widget.LowImportance
	return container.NewStack(cell.bg, container.NewPadded(img), btn)
}

func (u *uiState) paintCell(cell *tileCell) {
	cell.bg.FillColor = color.Transparent
	if l, ok := u.service.Overrides().Get(cell.index); ok {
		cell.bg.FillColor = labelColor(u.cfg, u.service.Labels(), l)
	}
	cell.bg.Refresh()
}

func (u *uiState) onTileTapped(cell *tileCell) {
	if u.selected == "" {
		dialog.ShowInformation("情報", "先にラベルを選択してください", u.w)
		return
	}
	if err := u.service.Overrides().Set(cell.index, u.selected); err != nil {
		dialog.ShowError(err, u.w)
		return
	}
	u.paintCell(cell)
	u.refreshDump()
}

func (u *uiState) refreshDump() {
	text, err := dumpOverrides(u.service.Overrides())
	if err != nil {
		u.logger.Error("dump overrides", "err", err)
		return
	}
	_ = u.dumpBind.Set(text)
}

func (u *uiState) onReconstruct() {
	fd := dialog.NewFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		if dir == nil {
			return
		}
		u.setBusy(true)
		u.showProgress(true)
		u.setStatus("再構成中...")
		go func() {
			defer u.showProgress(false)
			defer u.setBusy(false)
			uploads, err := readFolderUploads(dir)
			if err != nil {
				u.setStatus("読込エラー")
				u.showError(err)
				return
			}
			grid, err := u.service.Reconstruct(context.Background(), uploads)
			if err != nil {
				u.setStatus("再構成エラー")
				u.showError(err)
				return
			}
			u.gridMu.Lock()
			u.lastGrid = grid
			u.gridMu.Unlock()
			_ = u.gridBind.Set(u.service.FormatGrid(grid))
			u.setStatus(fmt.Sprintf("再構成完了 %d×%d", grid.Rows, grid.Columns))
			fyne.Do(func() { u.saveGridBtn.Enable() })
		}()
	}, u.w)
	fd.Show()
}

func readFolderUploads(dir fyne.ListableURI) ([]tiler.Upload, error) {
	items, err := dir.List()
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
	var uploads []tiler.Upload
	for _, it := range items {
		if ok, _ := storage.CanList(it); ok {
			continue
		}
		rc, err := storage.Reader(it)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", it.Name(), err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", it.Name(), err)
		}
		uploads = append(uploads, tiler.Upload{Name: it.Name(), Data: data})
	}
	return uploads, nil
}

func (u *uiState) onSaveGrid() {
	u.gridMu.Lock()
	grid := u.lastGrid
	u.gridMu.Unlock()
	if grid == nil {
		dialog.ShowInformation("情報", "出力データがありません", u.w)
		return
	}
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if err := grid.WriteCSV(uc); err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("grid exported", "path", uc.URI().Path())
	}, u.w)
	fd.SetFileName("grid.csv")
	fd.Show()
}

func (u *uiState) onExportOverrides() {
	fd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		defer uc.Close()
		if err := u.service.Overrides().WriteJSON(uc); err != nil {
			dialog.ShowError(err, u.w)
			return
		}
		u.logger.Info("overrides exported", "count", u.service.Overrides().Len(), "path", uc.URI().Path())
	}, u.w)
	fd.SetFileName("overrides.json")
	fd.Show()
}

func (u *uiState) onClear() {
	u.gridMu.Lock()
	u.lastGrid = nil
	u.gridMu.Unlock()
	_ = u.gridBind.Set("")
	u.saveGridBtn.Disable()
	u.setStatus("クリアしました")
}

func (u *uiState) setBusy(b bool) {
	fyne.Do(func() {
		if b {
			u.reconstructBtn.Disable()
			u.clearBtn.Disable()
		} else {
			u.reconstructBtn.Enable()
			u.clearBtn.Enable()
		}
	})
}

func (u *uiState) showProgress(on bool) {
	fyne.Do(func() {
		if on {
			u.progress.Show()
			u.progress.Start()
		} else {
			u.progress.Stop()
			u.progress.Hide()
		}
	})
}

func (u *uiState) setStatus(text string) {
	_ = u.statusBind.Set(text)
}

func (u *uiState) showError(err error) {
	var batch *tiler.BatchError
	if errors.As(err, &batch) {
		u.logger.Error(batch.Op+" failed", "items", len(batch.Failures))
	} else {
		u.logger.Error("operation failed", "err", err)
	}
	fyne.Do(func() { dialog.ShowError(err, u.w) })
}

func (u *uiState) requestLogFlush() {
	if u.logUpdateCh == nil {
		u.flushLog()
		return
	}
	select {
	case u.logUpdateCh <- struct{}{}:
	default:
	}
}

func (u *uiState) startLogUpdater() {
	if u.logUpdateCh != nil {
		return
	}
	u.logUpdateCh = make(chan struct{}, 1)
	go u.logUpdateLoop()
}

func (u *uiState) logUpdateLoop() {
	timer := time.NewTimer(logDebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-u.logUpdateCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(logDebounceInterval)
		case <-timer.C:
			u.flushLog()
		}
	}
}

func (u *uiState) flushLog() {
	_ = u.logBind.Set(u.logs.Text())
}
