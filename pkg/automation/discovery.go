package automation

import (
	"fmt"
	"time"
)

// Discovery is an immutable snapshot of the targets found by one enumeration.
// Callers must re-discover rather than keep a snapshot indefinitely.
type Discovery struct {
	kind     Kind
	targets  []Target
	skipped  int
	filtered int
	at       time.Time
}

// NewDiscovery builds a snapshot. Targets with an empty id are counted as
// skipped; a duplicate id keeps the first occurrence.
func NewDiscovery(kind Kind, targets []Target, skipped, filtered int) Discovery {
	seen := make(map[string]bool, len(targets))
	unique := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.ID == "" {
			skipped++
			continue
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if t.Kind == "" {
			t.Kind = kind
		}
		unique = append(unique, t)
	}

	return Discovery{
		kind:     kind,
		targets:  unique,
		skipped:  skipped,
		filtered: filtered,
		at:       time.Now(),
	}
}

// Kind returns the target kind this snapshot enumerated.
func (d Discovery) Kind() Kind { return d.kind }

// Targets returns a copy of the discovered targets in discovery order.
func (d Discovery) Targets() []Target {
	out := make([]Target, len(d.targets))
	copy(out, d.targets)
	return out
}

// Len returns the number of discovered targets.
func (d Discovery) Len() int { return len(d.targets) }

// Skipped is the number of listing entries that could not be parsed.
func (d Discovery) Skipped() int { return d.skipped }

// Filtered is the number of valid entries excluded by a caller-supplied filter.
func (d Discovery) Filtered() int { return d.filtered }

// At returns when the snapshot was taken.
func (d Discovery) At() time.Time { return d.at }

// IDs returns the discovered ids in discovery order.
func (d Discovery) IDs() []string {
	ids := make([]string, len(d.targets))
	for i, t := range d.targets {
		ids[i] = t.ID
	}
	return ids
}

// Lookup finds a target by exact id.
func (d Discovery) Lookup(id string) (Target, bool) {
	for _, t := range d.targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

// Ready returns the targets whose status is ready.
func (d Discovery) Ready() []Target {
	var ready []Target
	for _, t := range d.targets {
		if t.Status == StatusReady {
			ready = append(ready, t)
		}
	}
	return ready
}

// Select applies the selection rule. With an id, an exact match is required.
// Without one, a single target is auto-selected; several targets fail with an
// *AmbiguousTargetError listing them, and none fails with ErrNoTargetsAvailable.
func (d Discovery) Select(id string) (Target, error) {
	if len(d.targets) == 0 {
		return Target{}, ErrNoTargetsAvailable
	}

	if id != "" {
		if t, ok := d.Lookup(id); ok {
			return t, nil
		}
		return Target{}, fmt.Errorf("%w: %q", ErrTargetNotFound, id)
	}

	if len(d.targets) == 1 {
		return d.targets[0], nil
	}

	return Target{}, &AmbiguousTargetError{Candidates: d.IDs()}
}
