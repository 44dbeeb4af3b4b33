// Package completion serves completion lists with a single-slot cache that
// skips the engine while the user keeps typing the same word.
package completion

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/dshills/langsync/internal/protocol"
	"github.com/dshills/langsync/internal/telemetry"
)

// Fetcher asks the engine for completions at pos.
type Fetcher func(ctx context.Context, pos protocol.Position) (protocol.CompletionList, error)

// PrefixCache remembers the last word completed and the list the engine
// returned for it. It holds one entry, never more.
//
// A cached list is reused when the current word contains the previous word
// as a substring. This is deliberately one-directional: shortening the
// word ("ab" to "a") goes back to the engine, while any word containing
// the old one reuses the list even if it was not typed by extension.
type PrefixCache struct {
	fetch  Fetcher
	logger *zap.Logger

	mu       sync.Mutex
	lastWord *string
	result   protocol.CompletionList
}

// Option configures a PrefixCache.
type Option func(*PrefixCache)

// WithLogger sets the cache's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *PrefixCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPrefixCache creates an empty cache in front of fetch.
func NewPrefixCache(fetch Fetcher, opts ...Option) *PrefixCache {
	c := &PrefixCache{fetch: fetch, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns completions for the word being typed at pos. A nil or empty
// word always goes to the engine, and an empty previous word never matches. Engine errors are returned and leave the
// cached entry as it was.
func (c *PrefixCache) Get(ctx context.Context, word *string, pos protocol.Position) (protocol.CompletionList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hasWord(c.lastWord) && hasWord(word) && strings.Contains(*word, *c.lastWord) {
		c.lastWord = cloneWord(word)
		telemetry.RecordCacheLookup(ctx, true)
		return c.result, nil
	}
	telemetry.RecordCacheLookup(ctx, false)

	list, err := c.fetch(ctx, pos)
	if err != nil {
		c.logger.Debug("completion fetch failed", zap.Error(err))
		return protocol.CompletionList{}, err
	}
	c.lastWord = cloneWord(word)
	c.result = list
	return list, nil
}

// Reset empties the cache.
func (c *PrefixCache) Reset() {
	c.mu.Lock()
	c.lastWord = nil
	c.result = protocol.CompletionList{}
	c.mu.Unlock()
}

func hasWord(word *string) bool {
	return word != nil && *word != ""
}

func cloneWord(word *string) *string {
	if word == nil {
		return nil
	}
	w := *word
	return &w
}

// WordAt returns the identifier characters immediately before offset in
// text, which may be empty. offset counts characters.
func WordAt(text string, offset int) string {
	runes := []rune(text)
	offset = min(max(offset, 0), len(runes))
	start := offset
	for start > 0 && isWordRune(runes[start-1]) {
		start--
	}
	return string(runes[start:offset])
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
