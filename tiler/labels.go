package tiler

import (
	"fmt"
	"slices"
)

// LabelCode is one of the closed set of tile classes, e.g. "55" or "7A".
type LabelCode string

// DefaultLabels are the breach-protocol codes the tile set is drawn from.
var DefaultLabels = []LabelCode{"55", "7A", "BD", "1C", "E9"}

// DefaultColors pairs each of DefaultLabels with a display colour.
var DefaultColors = []string{"#3498db", "#9b59b6", "#e74c3c", "#e67e22", "#f1c40f"}

// LabelSet is the immutable, ordered set of valid label codes.
type LabelSet struct {
	codes []LabelCode
	index map[LabelCode]int
}

// NewLabelSet builds a set from raw codes. Codes are normalized; duplicates and blanks are errors.
func NewLabelSet(raw []string) (*LabelSet, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("label set is empty")
	}
	s := &LabelSet{
		codes: make([]LabelCode, 0, len(raw)),
		index: make(map[LabelCode]int, len(raw)),
	}
	for _, r := range raw {
		code := LabelCode(NormalizeLabel(r))
		if code == "" {
			return nil, fmt.Errorf("blank label in set")
		}
		if _, dup := s.index[code]; dup {
			return nil, fmt.Errorf("duplicate label %q", code)
		}
		s.index[code] = len(s.codes)
		s.codes = append(s.codes, code)
	}
	return s, nil
}

// Codes returns the codes in configured order.
func (s *LabelSet) Codes() []LabelCode {
	return slices.Clone(s.codes)
}

// Len returns the number of codes.
func (s *LabelSet) Len() int { return len(s.codes) }

// Contains reports whether code is part of the set.
func (s *LabelSet) Contains(code LabelCode) bool {
	_, ok := s.index[code]
	return ok
}

// Index returns the position of code in the set, or -1.
func (s *LabelSet) Index(code LabelCode) int {
	if i, ok := s.index[code]; ok {
		return i
	}
	return -1
}

// Parse normalizes raw and checks membership.
func (s *LabelSet) Parse(raw string) (LabelCode, error) {
	code := LabelCode(NormalizeLabel(raw))
	if !s.Contains(code) {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, raw)
	}
	return code, nil
}
