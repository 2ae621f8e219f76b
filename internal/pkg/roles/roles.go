package roles

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Label is an internal permission label.
type Label string

const (
	Director    Label = "Director"
	Staff       Label = "Staff"
	KCSOCommand Label = "KCSO_Command"
	MSPCommand  Label = "MSP_Command"
	MFDCommand  Label = "MFD_Command"
	KCSO        Label = "KCSO"
	MSP         Label = "MSP"
	MFD         Label = "MFD"
	Civilian    Label = "Civilian"
)

// Baseline is held by every identity, linked or not.
const Baseline = Civilian

// ErrInvalidRole is returned for labels outside the vocabulary.
var ErrInvalidRole = errors.New("invalid role")

// priorityOrder lists labels from highest authority to lowest.
var priorityOrder = []Label{
	Director,
	Staff,
	KCSOCommand,
	MSPCommand,
	MFDCommand,
	KCSO,
	MSP,
	MFD,
	Civilian,
}

var priorityIndex = func() map[Label]int {
	m := make(map[Label]int, len(priorityOrder))
	for i, l := range priorityOrder {
		m[l] = i
	}
	return m
}()

// Vocabulary returns every known label, highest priority first.
func Vocabulary() []Label {
	out := make([]Label, len(priorityOrder))
	copy(out, priorityOrder)
	return out
}

// Valid reports whether l belongs to the vocabulary.
func (l Label) Valid() bool {
	_, ok := priorityIndex[l]
	return ok
}

func (l Label) String() string {
	return string(l)
}

// Priority returns the rank of l; lower is higher authority.
// Unknown labels rank below the baseline.
func Priority(l Label) int {
	if p, ok := priorityIndex[l]; ok {
		return p
	}
	return len(priorityOrder)
}

// ParseLabel converts user input to a Label.
// Matching is case-insensitive; "User" is accepted as the legacy name of the baseline.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "user") {
		return Civilian, nil
	}
	for _, l := range priorityOrder {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// ParseLabels parses every entry and fails on the first unknown one.
func ParseLabels(values []string) (Set, error) {
	labels := make([]Label, 0, len(values))
	for _, v := range values {
		l, err := ParseLabel(v)
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return NewSet(labels...), nil
}

// Set is a deduplicated label set kept in priority order.
type Set []Label

// NewSet builds a set from labels, dropping duplicates.
func NewSet(labels ...Label) Set {
	seen := make(map[Label]struct{}, len(labels))
	out := make(Set, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	out.sort()
	return out
}

func (s Set) sort() {
	sort.SliceStable(s, func(i, j int) bool {
		pi, pj := Priority(s[i]), Priority(s[j])
		if pi != pj {
			return pi < pj
		}
		return s[i] < s[j]
	})
}

// Has reports whether l is in the set.
func (s Set) Has(l Label) bool {
	for _, v := range s {
		if v == l {
			return true
		}
	}
	return false
}

// Union returns a new set containing labels of both sets.
func (s Set) Union(other Set) Set {
	all := make([]Label, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	return NewSet(all...)
}

// Without returns the labels of s for which drop returns false.
func (s Set) Without(drop func(Label) bool) Set {
	out := make([]Label, 0, len(s))
	for _, l := range s {
		if !drop(l) {
			out = append(out, l)
		}
	}
	return NewSet(out...)
}

// Intersects reports whether any label is shared.
func (s Set) Intersects(other Set) bool {
	for _, l := range other {
		if s.Has(l) {
			return true
		}
	}
	return false
}

// Equal compares sets ignoring order.
func (s Set) Equal(other Set) bool {
	a, b := NewSet(s...), NewSet(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Strings returns the labels as plain strings.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, l := range s {
		out[i] = string(l)
	}
	return out
}

// Highest returns the highest-priority label of the set, or Baseline when empty.
func Highest(s Set) Label {
	best := Baseline
	for _, l := range s {
		if Priority(l) < Priority(best) {
			best = l
		}
	}
	return best
}

// Add returns a set that also contains l.
func (s Set) Add(l Label) Set {
	return s.Union(Set{l})
}

// Slice returns a copy of the labels.
func (s Set) Slice() []Label {
	out := make([]Label, len(s))
	copy(out, s)
	return out
}
