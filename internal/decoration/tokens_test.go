package decoration

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

func TestEncodeSemanticTokens(t *testing.T) {
	data := EncodeSemanticTokens([]SemanticToken{
		{Line: 0, Character: 5, Length: 3, Kind: 1},
		{Line: 0, Character: 0, Length: 4, Kind: 2},
		{Line: 2, Character: 3, Length: 2, Kind: 1},
		{Line: 2, Character: 7, Length: 1, Kind: 4, Modifiers: 1},
	})
	want := []int{
		0, 0, 4, 2, 0,
		0, 5, 3, 1, 0,
		2, 3, 2, 1, 0,
		0, 4, 1, 4, 1,
	}
	assert.Equal(t, want, data)
	assert.Empty(t, EncodeSemanticTokens(nil))
}

func TestSemanticTokens_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOf(rapid.Custom(func(t *rapid.T) SemanticToken {
			return SemanticToken{
				Line:      rapid.IntRange(0, 50).Draw(t, "line"),
				Character: rapid.IntRange(0, 120).Draw(t, "character"),
				Length:    rapid.IntRange(1, 20).Draw(t, "length"),
				Kind:      rapid.IntRange(0, 12).Draw(t, "kind"),
				Modifiers: rapid.IntRange(0, 3).Draw(t, "modifiers"),
			}
		})).Draw(t, "tokens")

		data := EncodeSemanticTokens(tokens)
		if len(data) != len(tokens)*tokenFields {
			t.Fatalf("encoded %d ints for %d tokens", len(data), len(tokens))
		}
		for i := 0; i < len(data); i += tokenFields {
			if data[i] < 0 || (data[i] == 0 && data[i+1] < 0) {
				t.Fatalf("token %d not in document order: %v", i/tokenFields, data[i:i+tokenFields])
			}
		}

		decoded := DecodeSemanticTokens(data)
		if diff := cmp.Diff(EncodeSemanticTokens(decoded), data); diff != "" {
			t.Fatalf("re-encoding differs (-got +want):\n%s", diff)
		}
		if len(decoded) != len(tokens) {
			t.Fatalf("decoded %d tokens, want %d", len(decoded), len(tokens))
		}
	})
}

func TestTokensFromClassifications(t *testing.T) {
	lines := document.NewLineIndex("let x\n= 1;\nx")
	tokens := TokensFromClassifications(lines, []protocol.Classification{
		{Kind: 1, Start: 0, Length: 3},
		// "x\n= 1" spans a line break.
		{Kind: 2, Start: 4, Length: 5},
		{Kind: 3, Start: 11, Length: 0},
	})
	assert.Equal(t, []SemanticToken{
		{Line: 0, Character: 0, Length: 3, Kind: 1},
		{Line: 0, Character: 4, Length: 1, Kind: 2},
		{Line: 1, Character: 0, Length: 3, Kind: 2},
	}, tokens)
}
