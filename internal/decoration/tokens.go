package decoration

import (
	"cmp"
	"slices"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/protocol"
)

// SemanticToken is a classified token located by line and character.
type SemanticToken struct {
	Line      int
	Character int
	Length    int
	Kind      int
	Modifiers int
}

// tokenFields is the number of integers each token encodes to.
const tokenFields = 5

// EncodeSemanticTokens delta-encodes tokens in document order. Each token
// becomes (deltaLine, deltaStart, length, kind, modifiers), where
// deltaStart is relative to the previous token only on the same line. The
// first token is relative to line 0, character 0.
func EncodeSemanticTokens(tokens []SemanticToken) []int {
	sorted := slices.Clone(tokens)
	slices.SortStableFunc(sorted, func(a, b SemanticToken) int {
		if c := cmp.Compare(a.Line, b.Line); c != 0 {
			return c
		}
		return cmp.Compare(a.Character, b.Character)
	})

	data := make([]int, 0, len(sorted)*tokenFields)
	var prev SemanticToken
	for _, tok := range sorted {
		deltaLine := tok.Line - prev.Line
		deltaStart := tok.Character
		if deltaLine == 0 {
			deltaStart = tok.Character - prev.Character
		}
		data = append(data, deltaLine, deltaStart, tok.Length, tok.Kind, tok.Modifiers)
		prev = tok
	}
	return data
}

// DecodeSemanticTokens reverses EncodeSemanticTokens. Trailing data that
// does not form a whole token is ignored.
func DecodeSemanticTokens(data []int) []SemanticToken {
	tokens := make([]SemanticToken, 0, len(data)/tokenFields)
	var prev SemanticToken
	for i := 0; i+tokenFields <= len(data); i += tokenFields {
		tok := SemanticToken{
			Line:      prev.Line + data[i],
			Character: data[i+1],
			Length:    data[i+2],
			Kind:      data[i+3],
			Modifiers: data[i+4],
		}
		if data[i] == 0 {
			tok.Character += prev.Character
		}
		tokens = append(tokens, tok)
		prev = tok
	}
	return tokens
}

// TokensFromClassifications converts offset-based classifications into
// semantic tokens. A classification that crosses line breaks is split
// into one token per line, since a token may not span lines.
func TokensFromClassifications(lines *document.LineIndex, classifications []protocol.Classification) []SemanticToken {
	var tokens []SemanticToken
	for _, c := range classifications {
		if c.Length <= 0 {
			continue
		}
		start := lines.PositionAt(c.Start)
		end := lines.PositionAt(c.End())
		for line := start.Line; line <= end.Line; line++ {
			from := 0
			if line == start.Line {
				from = start.Character
			}
			to := end.Character
			if line != end.Line {
				to = lineLength(lines, line)
			}
			if to <= from {
				continue
			}
			tokens = append(tokens, SemanticToken{Line: line, Character: from, Length: to - from, Kind: c.Kind})
		}
	}
	return tokens
}

// lineLength is the number of characters on line, excluding the newline.
func lineLength(lines *document.LineIndex, line int) int {
	if line+1 < lines.LineCount() {
		return lines.LineStart(line+1) - lines.LineStart(line) - 1
	}
	return lines.Len() - lines.LineStart(line)
}
