package highlight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/registry"
)

func renderGo(t *testing.T, src string) []string {
	t.Helper()
	entry, err := registry.Default().Resolve(language.Go)
	require.NoError(t, err)
	events, err := Highlight(context.Background(), []byte(src), entry, registry.Default(), Options{})
	require.NoError(t, err)
	return NewHTMLRenderer().Render([]byte(src), events)
}

func TestRenderLineCount(t *testing.T) {
	lines := renderGo(t, "package main\n\nfunc main() {}\n")
	assert.Len(t, lines, 3)
}

func TestRenderNoTrailingNewline(t *testing.T) {
	lines := renderGo(t, "package main")
	assert.Len(t, lines, 1)
}

func TestRenderEmpty(t *testing.T) {
	assert.Empty(t, NewHTMLRenderer().Render(nil, nil))
}

func TestRenderScopeCoveringTrailingNewline(t *testing.T) {
	// A capture that includes the file's final newline must not produce
	// an extra line holding nothing but reopened span tags.
	src := []byte("a\n")
	events := []Event{
		{Kind: EventScopeStart, Scope: "string"},
		{Kind: EventSource, Start: 0, End: 2},
		{Kind: EventScopeEnd},
	}
	lines := NewHTMLRenderer().Render(src, events)
	require.Len(t, lines, 1)
	assert.Equal(t, `<span class="string">a</span>`, lines[0])
}

func TestRenderScopeCoveringTrailingNewlineMultiline(t *testing.T) {
	src := []byte("a\nb\n")
	events := []Event{
		{Kind: EventScopeStart, Scope: "comment"},
		{Kind: EventSource, Start: 0, End: 4},
		{Kind: EventScopeEnd},
	}
	lines := NewHTMLRenderer().Render(src, events)
	require.Len(t, lines, 2)
	assert.Equal(t, `<span class="comment">a</span>`, lines[0])
	assert.Equal(t, `<span class="comment">b</span>`, lines[1])
}

func TestRenderSpans(t *testing.T) {
	lines := renderGo(t, "// a comment\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `<span class="comment">`)
	assert.Contains(t, lines[0], "</span>")
}

func TestRenderEscapesHTML(t *testing.T) {
	lines := renderGo(t, "package main // a < b && c > d\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "&lt;")
	assert.Contains(t, lines[0], "&gt;")
	assert.Contains(t, lines[0], "&amp;&amp;")
	assert.NotContains(t, lines[0], "a < b")
}

func TestRenderSpanReopenedAcrossLines(t *testing.T) {
	// A raw string spanning two lines must produce balanced spans on both.
	lines := renderGo(t, "package main\n\nvar s = `first\nsecond`\n")
	require.Len(t, lines, 4)
	for i, line := range lines {
		opens := strings.Count(line, "<span")
		closes := strings.Count(line, "</span>")
		assert.Equal(t, opens, closes, "line %d should be self-contained: %q", i, line)
	}
	assert.Contains(t, lines[2], `<span class="string">`)
	assert.Contains(t, lines[3], `<span class="string">`)
}

func TestClassForDefaultsAndOverrides(t *testing.T) {
	r := NewHTMLRenderer()
	assert.Equal(t, "constant-builtin", r.ClassFor("constant.builtin"))
	assert.Equal(t, "keyword", r.ClassFor("keyword"))

	path := filepath.Join(t.TempDir(), "classes.yml")
	require.NoError(t, os.WriteFile(path, []byte("keyword: tok-kw\n"), 0o644))
	require.NoError(t, r.LoadClassMap(path))
	assert.Equal(t, "tok-kw", r.ClassFor("keyword"))
	assert.Equal(t, "string", r.ClassFor("string"))
}

func TestLoadClassMapMissingFile(t *testing.T) {
	err := NewHTMLRenderer().LoadClassMap("/nonexistent/classes.yml")
	assert.Error(t, err)
}
