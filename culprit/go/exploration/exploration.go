// Package exploration proposes the Changes to test next when bisecting.
package exploration

import (
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/compare"
)

// DefaultLevels is how many rounds of bisection are speculated at once for a
// differing pair.
const DefaultLevels = 2

// Insertion is a Change to be inserted into the list at Index.
type Insertion struct {
	Index  int
	Change *change.Change
}

// ChangeDetected compares two adjacent Changes.
type ChangeDetected func(a, b *change.Change) compare.Verdict

// OnUnknown is called for adjacent pairs whose comparison was inconclusive.
type OnUnknown func(a, b *change.Change)

// MidpointFunc returns the Change halfway between a and b, or nil if a and b
// are adjacent.
type MidpointFunc func(a, b *change.Change) (*change.Change, error)

// Speculate walks each adjacent pair of changes, which must be in ascending
// order. Pairs that differ are bisected up to levels deep, visiting the left
// half, then the midpoint, then the right half. Pairs that are Unknown are
// passed to onUnknown and not bisected.
//
// The returned insertions are in reverse order of discovery, so that applying
// them one after another with Apply leaves the list in ascending order. Every
// insertion for a pair records the index of the later Change of that pair in
// the original list.
//
// A Change already in changes, or already proposed by this call, is not
// proposed again and its sub-ranges are not explored.
func Speculate(changes []*change.Change, changeDetected ChangeDetected, onUnknown OnUnknown, midpoint MidpointFunc, levels int) ([]Insertion, error) {
	seen := make(map[string]bool, len(changes))
	for _, c := range changes {
		seen[c.Key()] = true
	}
	var found []Insertion

	var bisect func(a, b *change.Change, index, level int) error
	bisect = func(a, b *change.Change, index, level int) error {
		if level <= 0 {
			return nil
		}
		m, err := midpoint(a, b)
		if err != nil {
			return err
		}
		if m == nil || seen[m.Key()] {
			return nil
		}
		seen[m.Key()] = true
		if err := bisect(a, m, index, level-1); err != nil {
			return err
		}
		found = append(found, Insertion{Index: index, Change: m})
		return bisect(m, b, index, level-1)
	}

	for i := 0; i+1 < len(changes); i++ {
		a, b := changes[i], changes[i+1]
		switch changeDetected(a, b) {
		case compare.Unknown:
			onUnknown(a, b)
		case compare.Different:
			if err := bisect(a, b, i+1, levels); err != nil {
				return nil, err
			}
		}
	}

	for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
		found[i], found[j] = found[j], found[i]
	}
	return found, nil
}

// Apply inserts each Change at its recorded index, in order, and returns the
// new list. changes is not modified.
func Apply(changes []*change.Change, insertions []Insertion) []*change.Change {
	ret := make([]*change.Change, len(changes), len(changes)+len(insertions))
	copy(ret, changes)
	for _, ins := range insertions {
		ret = append(ret, nil)
		copy(ret[ins.Index+1:], ret[ins.Index:])
		ret[ins.Index] = ins.Change
	}
	return ret
}
