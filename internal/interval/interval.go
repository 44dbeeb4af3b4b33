// Package interval turns editor change events into the minimal set of
// document regions an analysis pass has to recompute, and coalesces bursts
// of such requests per document and purpose.
//
// A Set is an ordered list of non-overlapping [Start, End) character
// offsets. The empty Set is the explicit "whole document" request; a full
// recomputation is never expressed as one interval spanning the text.
package interval

import (
	"slices"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// Set is a normalized list of intervals. Empty means the whole document.
type Set []protocol.Interval

// Full returns the set that requests a whole-document recomputation.
func Full() Set {
	return nil
}

// IsFull reports whether s requests a whole-document recomputation.
func (s Set) IsFull() bool {
	return len(s) == 0
}

// Intervals returns s as the wire representation. A full set is sent as
// an empty, non-nil slice so it encodes as [] rather than null.
func (s Set) Intervals() []protocol.Interval {
	if s.IsFull() {
		return []protocol.Interval{}
	}
	return slices.Clone([]protocol.Interval(s))
}

// covers reports whether offset lies inside s. A full set covers
// everything; a zero-length interval covers its own offset.
func (s Set) covers(offset int) bool {
	if s.IsFull() {
		return true
	}
	for _, iv := range s {
		if offset >= iv.Start && (offset < iv.End || (iv.Start == iv.End && offset == iv.Start)) {
			return true
		}
	}
	return false
}

// FromEdits converts change events into the post-edit regions that need
// recomputation: [RangeOffset, RangeOffset+InsertedLength) for each edit.
// A pure deletion yields a zero-length interval at the deletion point,
// which still marks that location as changed.
func FromEdits(edits []document.Edit) Set {
	ivs := make([]protocol.Interval, 0, len(edits))
	for _, e := range edits {
		ivs = append(ivs, protocol.Interval{
			Start: e.RangeOffset,
			End:   e.RangeOffset + e.InsertedLength,
		})
	}
	return Normalize(ivs)
}

// Normalize sorts intervals and merges those that overlap or touch.
// Negative or inverted intervals are clamped. The result of normalizing
// an empty input is the full set.
func Normalize(ivs []protocol.Interval) Set {
	if len(ivs) == 0 {
		return Full()
	}

	sorted := make([]protocol.Interval, 0, len(ivs))
	for _, iv := range ivs {
		iv.Start = max(iv.Start, 0)
		iv.End = max(iv.End, iv.Start)
		sorted = append(sorted, iv)
	}
	slices.SortFunc(sorted, func(a, b protocol.Interval) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})

	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			last.End = max(last.End, iv.End)
			continue
		}
		out = append(out, iv)
	}
	return Set(out)
}

// Union merges two sets. A full operand makes the result full.
func Union(a, b Set) Set {
	if a.IsFull() || b.IsFull() {
		return Full()
	}
	merged := make([]protocol.Interval, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return Normalize(merged)
}
