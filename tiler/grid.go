package tiler

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
)

// maxGridSide bounds coordinates so a stray file name cannot allocate a huge grid.
const maxGridSide = 1024

// Coordinate is a tile's position in the uploaded screenshot grid.
type Coordinate struct {
	Row    int
	Column int
}

// ParseCoordinate extracts "{row}-{column}" from an upload file name. Everything
// from the first dot on is treated as the extension. Both parts must be
// non-negative decimal integers with no sign or padding characters.
func ParseCoordinate(name string) (Coordinate, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	stem, _, _ := strings.Cut(NormalizeText(base), ".")
	if stem == "" {
		return Coordinate{}, &CoordinateError{Name: name, Reason: "empty name"}
	}
	rowPart, colPart, ok := strings.Cut(stem, "-")
	if !ok {
		return Coordinate{}, &CoordinateError{Name: name, Reason: "missing '-' separator"}
	}
	row, err := parseIndex(rowPart)
	if err != nil {
		return Coordinate{}, &CoordinateError{Name: name, Reason: "row " + err.Error()}
	}
	col, err := parseIndex(colPart)
	if err != nil {
		return Coordinate{}, &CoordinateError{Name: name, Reason: "column " + err.Error()}
	}
	return Coordinate{Row: row, Column: col}, nil
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a decimal number", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n >= maxGridSide {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return n, nil
}

// Grid is a rows×columns label matrix. A cell is empty only when no upload mapped to it.
type Grid struct {
	Rows    int
	Columns int
	cells   [][]LabelCode
	filled  [][]bool
}

// NewGrid allocates an empty grid.
func NewGrid(rows, columns int) *Grid {
	g := &Grid{Rows: rows, Columns: columns}
	g.cells = make([][]LabelCode, rows)
	g.filled = make([][]bool, rows)
	for r := range g.cells {
		g.cells[r] = make([]LabelCode, columns)
		g.filled[r] = make([]bool, columns)
	}
	return g
}

// Set writes a cell, replacing any earlier value.
func (g *Grid) Set(c Coordinate, label LabelCode) {
	g.cells[c.Row][c.Column] = label
	g.filled[c.Row][c.Column] = true
}

// At returns the label at (row, column) and whether the cell was populated.
func (g *Grid) At(row, column int) (LabelCode, bool) {
	if row < 0 || row >= g.Rows || column < 0 || column >= g.Columns {
		return "", false
	}
	return g.cells[row][column], g.filled[row][column]
}

// Missing returns the coordinates of unpopulated cells in row-major order.
func (g *Grid) Missing() []Coordinate {
	var out []Coordinate
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Columns; c++ {
			if !g.filled[r][c] {
				out = append(out, Coordinate{Row: r, Column: c})
			}
		}
	}
	return out
}

// Labels returns the grid as strings, "" for empty cells.
func (g *Grid) Labels() [][]string {
	out := make([][]string, g.Rows)
	for r := range out {
		out[r] = make([]string, g.Columns)
		for c := range out[r] {
			out[r][c] = string(g.cells[r][c])
		}
	}
	return out
}

// Format renders one line per row with cells joined by sep; empty cells print as "?".
func (g *Grid) Format(sep string) string {
	var b strings.Builder
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Columns; c++ {
			if c > 0 {
				b.WriteString(sep)
			}
			if g.filled[r][c] {
				b.WriteString(string(g.cells[r][c]))
			} else {
				b.WriteString("?")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// String renders the grid with the default two-space separator.
func (g *Grid) String() string { return g.Format("  ") }

// WriteCSV writes the grid as CSV, one record per row.
func (g *Grid) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	for r, row := range g.Labels() {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush grid: %w", err)
	}
	return nil
}

// Reconstructor turns a batch of coordinate-named uploads into a Grid.
type Reconstructor struct {
	Predictor *Predictor
	Logger    *slog.Logger
}

// Reconstruct parses every upload's coordinate, labels every tile and places the
// labels. Any bad coordinate or undecodable tile fails the whole batch. When two
// uploads share a cell the later one in the batch wins.
func (r *Reconstructor) Reconstruct(ctx context.Context, uploads []Upload) (*Grid, error) {
	if len(uploads) == 0 {
		return nil, ErrEmptyBatch
	}
	coords := make([]Coordinate, len(uploads))
	rows, cols := 0, 0
	for i, u := range uploads {
		c, err := ParseCoordinate(u.Name)
		if err != nil {
			return nil, err
		}
		coords[i] = c
		rows = max(rows, c.Row+1)
		cols = max(cols, c.Column+1)
	}
	if !r.Predictor.Classifier.Ready() {
		return nil, ErrNotReady
	}

	imgs := make([]*Image, len(uploads))
	var failures []ItemError
	for i, u := range uploads {
		img, err := DecodeImage(u.Name, u.Data)
		if err != nil {
			failures = append(failures, ItemError{Index: i, Source: u.Name, Err: err})
			continue
		}
		imgs[i] = img
	}
	if len(failures) > 0 {
		return nil, &BatchError{Op: "reconstruct", Failures: failures}
	}

	preds, err := r.Predictor.PredictImages(ctx, imgs)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}
	grid := NewGrid(rows, cols)
	for i, p := range preds {
		grid.Set(coords[i], p.Label)
	}
	orDiscard(r.Logger).Info("grid reconstructed", "rows", rows, "columns", cols, "tiles", len(uploads), "missing", len(grid.Missing()))
	return grid, nil
}
