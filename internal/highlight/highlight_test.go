package highlight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/registry"
)

func resolve(t *testing.T, id language.ID) *registry.Entry {
	t.Helper()
	entry, err := registry.Default().Resolve(id)
	require.NoError(t, err)
	return entry
}

// reassemble concatenates all Source event ranges.
func reassemble(src []byte, events []Event) []byte {
	var out []byte
	for _, ev := range events {
		if ev.Kind == EventSource {
			out = append(out, src[ev.Start:ev.End]...)
		}
	}
	return out
}

func TestHighlightCoversFullRange(t *testing.T) {
	src := []byte("package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	events, err := Highlight(context.Background(), src, resolve(t, language.Go), registry.Default(), Options{})
	require.NoError(t, err)
	assert.Equal(t, src, reassemble(src, events))
}

func TestHighlightWellNested(t *testing.T) {
	src := []byte("const x = 42 // answer\n")
	events, err := Highlight(context.Background(), src, resolve(t, language.Go), registry.Default(), Options{})
	require.NoError(t, err)

	depth := 0
	for _, ev := range events {
		switch ev.Kind {
		case EventScopeStart:
			depth++
		case EventScopeEnd:
			depth--
		}
		assert.GreaterOrEqual(t, depth, 0)
	}
	assert.Zero(t, depth, "every scope must close")
}

func TestHighlightFindsScopes(t *testing.T) {
	src := []byte("package main\n\n// greet says hello\nfunc greet() string { return \"hello\" }\n")
	events, err := Highlight(context.Background(), src, resolve(t, language.Go), registry.Default(), Options{})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.Kind == EventScopeStart {
			seen[ev.Scope] = true
		}
	}
	assert.True(t, seen["keyword"], "keywords should be scoped")
	assert.True(t, seen["comment"], "comments should be scoped")
	assert.True(t, seen["string"], "strings should be scoped")
	assert.True(t, seen["function"], "function names should be scoped")
}

func TestHighlightEmptyInput(t *testing.T) {
	events, err := Highlight(context.Background(), nil, resolve(t, language.Go), registry.Default(), Options{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHighlightInvalidUTF8(t *testing.T) {
	src := []byte("package main // \xff\xfe broken\n")
	_, err := Highlight(context.Background(), src, resolve(t, language.Go), registry.Default(), Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidEncoding, errors.KindOf(err))
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestHighlightExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	src := []byte("package main\n")
	_, err := Highlight(ctx, src, resolve(t, language.Go), registry.Default(), Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindTimedOut, errors.KindOf(err))
}

func TestHighlightCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := []byte("package main\n")
	_, err := Highlight(ctx, src, resolve(t, language.Go), registry.Default(), Options{})
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}

func TestHighlightInjections(t *testing.T) {
	src := []byte("<html><script>var x = 1;</script></html>\n")
	entry := resolve(t, language.HTML)

	plain, err := Highlight(context.Background(), src, entry, registry.Default(), Options{})
	require.NoError(t, err)
	injected, err := Highlight(context.Background(), src, entry, registry.Default(), Options{Injections: true})
	require.NoError(t, err)

	hasKeyword := func(events []Event) bool {
		for _, ev := range events {
			if ev.Kind == EventScopeStart && ev.Scope == "keyword" {
				return true
			}
		}
		return false
	}
	// The HTML query alone has no keyword scope for "var"; the injected
	// JavaScript pass adds one.
	assert.False(t, hasKeyword(plain))
	assert.True(t, hasKeyword(injected))

	// Coverage invariant still holds with injections.
	assert.Equal(t, src, reassemble(src, injected))
}

func TestParseOptions(t *testing.T) {
	assert.False(t, ParseOptions(nil).Injections)
	assert.True(t, ParseOptions([]string{"injections"}).Injections)
	assert.False(t, ParseOptions([]string{"injections", "no-injections"}).Injections)
	// Unknown options are ignored, not fatal.
	assert.True(t, ParseOptions([]string{"sparkles", "injections", "42"}).Injections)
}
