// Package staleness discards asynchronous results that were computed
// against a document version that is no longer current.
//
// Every consumer that issues an engine call keyed to a document follows
// the same three steps:
//
//	tok := staleness.Capture(doc)            // before the request
//	res, err := engine.DoValidation(...)     // suspension point
//	applied, err := staleness.Apply(tok, res, err, render)
//
// Apply runs render only when the document still has the captured version
// and is still open. A stale result is dropped without retry and without
// being reported as an error: responses can arrive in any order and the
// version check is the only thing that keeps an old keystroke's result
// from overwriting a newer one.
package staleness

import (
	"context"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/document"
	"github.com/dshills/langsync/internal/telemetry"
)

// Token records the document version a request was issued against.
type Token struct {
	doc     document.Versioned
	version document.Version
}

// Capture records doc's current version.
func Capture(doc document.Versioned) Token {
	return Token{doc: doc, version: doc.Version()}
}

// Version returns the captured version.
func (t Token) Version() document.Version {
	return t.version
}

// Current reports whether the document is still open and unchanged since
// the token was captured.
func (t Token) Current() bool {
	if t.doc == nil || t.doc.IsClosed() {
		return false
	}
	return t.doc.Version() == t.version
}

// Apply hands result to apply if tok is still current. It returns whether
// apply ran. A non-nil err is returned unchanged and apply is not called.
func Apply[T any](tok Token, result T, err error, apply func(T)) (bool, error) {
	if err != nil {
		return false, err
	}
	if !tok.Current() {
		recordDiscard(tok)
		return false, nil
	}
	apply(result)
	return true, nil
}

// Guard bundles a logger with the Apply check for consumers that want
// discards traced at debug level.
type Guard struct {
	logger *zap.Logger
}

// NewGuard creates a Guard. A nil logger disables tracing.
func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{logger: logger}
}

// Run captures the version of doc, calls fetch, and applies its result if
// the document did not change meanwhile.
func Run[T any](ctx context.Context, g *Guard, doc document.Versioned, fetch func(context.Context) (T, error), apply func(T)) (bool, error) {
	tok := Capture(doc)
	result, err := fetch(ctx)
	applied, err := Apply(tok, result, err, apply)
	if err == nil && !applied && g != nil {
		g.logger.Debug("discarded stale result",
			zap.String("uri", string(doc.URI())),
			zap.Int64("requested_version", int64(tok.version)),
			zap.Bool("closed", doc.IsClosed()),
		)
	}
	return applied, err
}

func recordDiscard(tok Token) {
	closed := tok.doc == nil || tok.doc.IsClosed()
	telemetry.RecordStaleDiscard(context.Background(), closed)
}
