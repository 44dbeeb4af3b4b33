package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

func iv(start, end int) protocol.Interval {
	return protocol.Interval{Start: start, End: end}
}

func TestFromEdits_PostEditRegions(t *testing.T) {
	set := FromEdits([]document.Edit{
		{RangeOffset: 10, RangeLength: 3, InsertedLength: 4},
		{RangeOffset: 2, RangeLength: 0, InsertedLength: 1},
		{RangeOffset: 20, RangeLength: 5, InsertedLength: 0},
	})
	assert.Equal(t, Set{iv(2, 3), iv(10, 14), iv(20, 20)}, set)
	assert.False(t, set.IsFull())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []protocol.Interval
		want Set
	}{
		{"empty is full", nil, nil},
		{"overlap", []protocol.Interval{iv(5, 10), iv(0, 6)}, Set{iv(0, 10)}},
		{"touching", []protocol.Interval{iv(0, 3), iv(3, 5)}, Set{iv(0, 5)}},
		{"disjoint", []protocol.Interval{iv(8, 9), iv(0, 1)}, Set{iv(0, 1), iv(8, 9)}},
		{"contained", []protocol.Interval{iv(0, 10), iv(2, 4)}, Set{iv(0, 10)}},
		{"inverted clamped", []protocol.Interval{iv(5, 2), iv(-3, 1)}, Set{iv(0, 1), iv(5, 5)}},
		{"point inside", []protocol.Interval{iv(4, 4), iv(2, 6)}, Set{iv(2, 6)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestUnion_FullAbsorbs(t *testing.T) {
	a := Set{iv(0, 2)}
	assert.True(t, Union(a, Full()).IsFull())
	assert.True(t, Union(Full(), a).IsFull())
	assert.Equal(t, Set{iv(0, 2), iv(5, 6)}, Union(a, Set{iv(5, 6)}))
}

func TestSet_Intervals(t *testing.T) {
	full := Full().Intervals()
	assert.NotNil(t, full)
	assert.Empty(t, full)

	s := Set{iv(1, 2)}
	out := s.Intervals()
	out[0].Start = 99
	assert.Equal(t, 1, s[0].Start, "Intervals returns a copy")
}

func TestSet_Covers(t *testing.T) {
	s := Set{iv(2, 4), iv(7, 7)}
	assert.True(t, s.covers(2))
	assert.True(t, s.covers(3))
	assert.False(t, s.covers(4))
	assert.True(t, s.covers(7))
	assert.False(t, s.covers(8))
	assert.True(t, Full().covers(1000))
}

func genIntervals() *rapid.Generator[[]protocol.Interval] {
	return rapid.SliceOfN(rapid.Custom(func(t *rapid.T) protocol.Interval {
		start := rapid.IntRange(0, 200).Draw(t, "start")
		length := rapid.IntRange(0, 30).Draw(t, "length")
		return iv(start, start+length)
	}), 1, 20)
}

func TestNormalize_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genIntervals().Draw(t, "intervals")
		out := Normalize(in)

		if out.IsFull() {
			t.Fatalf("non-empty input normalized to full set")
		}
		for i := 1; i < len(out); i++ {
			if out[i].Start <= out[i-1].End {
				t.Fatalf("intervals %v and %v overlap or touch", out[i-1], out[i])
			}
		}
		for _, x := range in {
			for off := x.Start; off < x.End; off++ {
				if !out.covers(off) {
					t.Fatalf("offset %d of %v lost in %v", off, x, out)
				}
			}
			if x.Start == x.End && !out.covers(x.Start) && !coveredAsEnd(out, x.Start) {
				t.Fatalf("point %d lost in %v", x.Start, out)
			}
		}
	})
}

// coveredAsEnd reports whether a zero-length input was merged into the end
// of a touching interval.
func coveredAsEnd(s Set, off int) bool {
	for _, x := range s {
		if x.End == off {
			return true
		}
	}
	return false
}

func TestUnion_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := Normalize(genIntervals().Draw(t, "a"))
		b := Normalize(genIntervals().Draw(t, "b"))

		ab := Union(a, b)
		ba := Union(b, a)
		if len(ab) != len(ba) {
			t.Fatalf("union not commutative: %v vs %v", ab, ba)
		}
		for i := range ab {
			if ab[i] != ba[i] {
				t.Fatalf("union not commutative: %v vs %v", ab, ba)
			}
		}
		again := Union(ab, a)
		for i := range ab {
			if again[i] != ab[i] {
				t.Fatalf("union not idempotent: %v vs %v", ab, again)
			}
		}
	})
}
