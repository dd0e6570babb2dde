package app

import (
	"bytes"
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"yashubustudio/tiler/tiler"
)

// parseHexColor reads "#rrggbb" or "#rgb".
func parseHexColor(s string) (color.NRGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}

// labelColor returns the configured colour of code, or transparent.
func labelColor(cfg tiler.Config, set *tiler.LabelSet, code tiler.LabelCode) color.Color {
	if c, ok := parseHexColor(cfg.ColorFor(set, code)); ok {
		return c
	}
	return color.Transparent
}

func tilePath(dir, src string) string {
	if dir == "" || filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(dir, src)
}

func dumpOverrides(store *tiler.OverrideStore) (string, error) {
	var buf bytes.Buffer
	if err := store.WriteJSON(&buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func formatVerify(results []tiler.VerifyResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "%s: エラー (%v)\n", filepath.Base(r.Source), r.Err)
			continue
		}
		conf := r.Prediction.Confidences[r.Prediction.Label]
		fmt.Fprintf(&b, "%s: %s (%.0f%%)\n", filepath.Base(r.Source), r.Prediction.Label, conf*100)
	}
	return strings.TrimRight(b.String(), "\n")
}
