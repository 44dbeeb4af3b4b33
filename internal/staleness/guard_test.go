package staleness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/langsync/internal/document"
)

func TestToken_Current(t *testing.T) {
	doc := document.New("file:///a", "kusto", "x")
	tok := Capture(doc)
	assert.Equal(t, document.Version(1), tok.Version())
	assert.True(t, tok.Current())

	_, err := doc.Apply(document.Change{Offset: 1, Text: "y"})
	require.NoError(t, err)
	assert.False(t, tok.Current(), "version changed")

	tok = Capture(doc)
	doc.Close()
	assert.False(t, tok.Current(), "document closed")

	assert.False(t, Token{}.Current())
}

func TestApply_DiscardsStaleResult(t *testing.T) {
	doc := document.New("file:///a", "kusto", "x")
	visible := "initial"

	// Request issued at version 1.
	tok := Capture(doc)

	// The user types before the response arrives.
	_, err := doc.Apply(document.Change{Offset: 1, Text: "y"})
	require.NoError(t, err)

	applied, err := Apply(tok, "result-for-v1", nil, func(s string) { visible = s })
	require.NoError(t, err, "staleness is not an error")
	assert.False(t, applied)
	assert.Equal(t, "initial", visible)

	// A request issued at version 2 is applied.
	tok = Capture(doc)
	applied, err = Apply(tok, "result-for-v2", nil, func(s string) { visible = s })
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "result-for-v2", visible)
}

func TestApply_PropagatesError(t *testing.T) {
	doc := document.New("file:///a", "kusto", "x")
	boom := errors.New("engine exploded")

	called := false
	applied, err := Apply(Capture(doc), 0, boom, func(int) { called = true })
	assert.ErrorIs(t, err, boom)
	assert.False(t, applied)
	assert.False(t, called)
}

func TestRun(t *testing.T) {
	g := NewGuard(zaptest.NewLogger(t))
	doc := document.New("file:///a", "kusto", "x")

	var got []int
	applied, err := Run(context.Background(), g, doc, func(context.Context) (int, error) {
		return 7, nil
	}, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = Run(context.Background(), g, doc, func(context.Context) (int, error) {
		doc.Close() // closed while the request is in flight
		return 8, nil
	}, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, []int{7}, got)
}
