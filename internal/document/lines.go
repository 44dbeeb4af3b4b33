package document

import (
	"sort"

	"github.com/dshills/langsync/internal/protocol"
)

// LineIndex maps character offsets to zero-based lines and back.
// Offsets count runes, which is the unit every offset in this module uses.
type LineIndex struct {
	starts []int // rune offset of the first character of each line
	length int   // total length in runes
}

// NewLineIndex builds an index for text.
func NewLineIndex(text string) *LineIndex {
	idx := &LineIndex{starts: []int{0}}
	n := 0
	for _, r := range text {
		n++
		if r == '\n' {
			idx.starts = append(idx.starts, n)
		}
	}
	idx.length = n
	return idx
}

// LineCount returns the number of lines (at least 1).
func (idx *LineIndex) LineCount() int {
	return len(idx.starts)
}

// Len returns the length of the indexed text in characters.
func (idx *LineIndex) Len() int {
	return idx.length
}

// LineOf returns the zero-based line containing offset. Offsets are
// clamped to the text.
func (idx *LineIndex) LineOf(offset int) int {
	offset = idx.clamp(offset)
	// First line whose start is beyond offset, minus one.
	return sort.Search(len(idx.starts), func(i int) bool {
		return idx.starts[i] > offset
	}) - 1
}

// LineStart returns the offset of the first character of line.
func (idx *LineIndex) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(idx.starts) {
		return idx.length
	}
	return idx.starts[line]
}

// PositionAt converts an offset to a line/character position.
func (idx *LineIndex) PositionAt(offset int) protocol.Position {
	offset = idx.clamp(offset)
	line := idx.LineOf(offset)
	return protocol.Position{Line: line, Character: offset - idx.starts[line]}
}

// OffsetAt converts a position back to an offset, clamping the character
// to the end of its line.
func (idx *LineIndex) OffsetAt(pos protocol.Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(idx.starts) {
		return idx.length
	}
	start := idx.starts[pos.Line]
	end := idx.length
	if pos.Line+1 < len(idx.starts) {
		end = idx.starts[pos.Line+1] - 1 // exclude the newline
	}
	off := start + max(pos.Character, 0)
	return min(off, end)
}

func (idx *LineIndex) clamp(offset int) int {
	return min(max(offset, 0), idx.length)
}
