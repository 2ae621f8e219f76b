package roles

import (
	"fmt"
	"sort"
	"strings"
)

// Table maps Discord role IDs to internal labels.
// It is built once at startup and shared read-only.
type Table struct {
	byID  map[string]Set
	image Set
}

// NewTable validates the mapping. The baseline label cannot be mapped since it
// is implied for everyone.
func NewTable(mapping map[string][]Label) (*Table, error) {
	t := &Table{byID: make(map[string]Set, len(mapping))}
	var all []Label
	for id, labels := range mapping {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		for _, l := range labels {
			if !l.Valid() {
				return nil, fmt.Errorf("role %s: %w: %q", id, ErrInvalidRole, l)
			}
			if l == Baseline {
				return nil, fmt.Errorf("role %s: baseline label %s cannot be mapped", id, Baseline)
			}
		}
		set := NewSet(labels...)
		if existing, ok := t.byID[id]; ok {
			set = existing.Union(set)
		}
		t.byID[id] = set
		all = append(all, set...)
	}
	t.image = NewSet(all...)
	return t, nil
}

// MustTable is NewTable for static fixtures.
func MustTable(mapping map[string][]Label) *Table {
	t, err := NewTable(mapping)
	if err != nil {
		panic(err)
	}
	return t
}

// ResolveSet returns every label matched by any of ids, plus the baseline.
func (t *Table) ResolveSet(ids []string) Set {
	labels := []Label{Baseline}
	for _, id := range ids {
		labels = append(labels, t.byID[id]...)
	}
	return NewSet(labels...)
}

// ResolveSingle returns the highest-priority label matched by ids,
// or the baseline when nothing matches.
func (t *Table) ResolveSingle(ids []string) Label {
	return Highest(t.ResolveSet(ids))
}

// IsDerived reports whether l can be produced by some Discord role.
func (t *Table) IsDerived(l Label) bool {
	return t.image.Has(l)
}

// Image returns every label some Discord role maps to.
func (t *Table) Image() Set {
	return NewSet(t.image...)
}

// MappedIDs returns the configured Discord role IDs in stable order.
func (t *Table) MappedIDs() []string {
	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LabelsFor returns the labels a single Discord role maps to.
func (t *Table) LabelsFor(id string) Set {
	return NewSet(t.byID[id]...)
}

// Merge applies a fresh Discord observation to an existing role set.
// Labels that no Discord role produces are kept; derived labels are replaced
// by the resolution of ids.
func (t *Table) Merge(existing Set, ids []string) Set {
	manual := existing.Without(t.IsDerived)
	return manual.Union(t.ResolveSet(ids))
}

// StripDerived removes every label some Discord role produces and keeps the baseline.
func (t *Table) StripDerived(existing Set) Set {
	return existing.Without(t.IsDerived).Union(Set{Baseline})
}

// ParseMapping reads "roleId:Label|Label;roleId:Label" into a mapping.
func ParseMapping(s string) (map[string][]Label, error) {
	out := make(map[string][]Label)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rest, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("role map entry %q: missing ':'", entry)
		}
		for _, raw := range strings.Split(rest, "|") {
			l, err := ParseLabel(raw)
			if err != nil {
				return nil, fmt.Errorf("role map entry %q: %w", entry, err)
			}
			out[strings.TrimSpace(id)] = append(out[strings.TrimSpace(id)], l)
		}
	}
	return out, nil
}
