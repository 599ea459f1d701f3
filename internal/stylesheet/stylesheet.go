// Package stylesheet turns a chroma color style into CSS for the scope
// classes the HTML renderer emits.
package stylesheet

import (
	"fmt"
	"sort"
	"strings"

	chroma "github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// scopeTokens maps each highlight scope to the chroma token types tried
// in order when extracting a color.
var scopeTokens = map[string][]chroma.TokenType{
	"comment":          {chroma.Comment},
	"string":           {chroma.LiteralString},
	"escape":           {chroma.LiteralStringEscape, chroma.LiteralString},
	"number":           {chroma.LiteralNumber},
	"constant.builtin": {chroma.KeywordConstant, chroma.NameConstant, chroma.LiteralNumber},
	"function":         {chroma.NameFunction, chroma.Name},
	"type":             {chroma.KeywordType, chroma.NameClass},
	"property":         {chroma.NameProperty, chroma.NameAttribute, chroma.Name},
	"variable":         {chroma.NameVariable, chroma.Name},
	"keyword":          {chroma.Keyword},
	"attribute":        {chroma.NameAttribute, chroma.NameDecorator},
	"tag":              {chroma.NameTag, chroma.Keyword},
}

// Names lists the chroma styles available to Generate.
func Names() []string {
	names := styles.Names()
	sort.Strings(names)
	return names
}

// Generate renders a stylesheet for the named chroma style, covering the
// given scope names. Scopes without a color in the style are omitted.
func Generate(styleName string, scopes []string) (string, error) {
	style := styles.Get(strings.ToLower(strings.TrimSpace(styleName)))
	if style == nil || style == styles.Fallback && !knownStyle(styleName) {
		return "", fmt.Errorf("unknown style %q", styleName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "/* prismd stylesheet, chroma style %q */\n", style.Name)

	bg := style.Get(chroma.Background)
	if bg.Background.IsSet() || bg.Colour.IsSet() {
		sb.WriteString("pre.prismd {\n")
		if bg.Background.IsSet() {
			fmt.Fprintf(&sb, "  background-color: %s;\n", bg.Background.String())
		}
		if bg.Colour.IsSet() {
			fmt.Fprintf(&sb, "  color: %s;\n", bg.Colour.String())
		}
		sb.WriteString("}\n")
	}

	for _, scope := range scopes {
		tokens, ok := scopeTokens[scope]
		if !ok {
			continue
		}
		color, bold, italic := pick(style, tokens)
		if color == "" && !bold && !italic {
			continue
		}
		fmt.Fprintf(&sb, ".%s {\n", strings.ReplaceAll(scope, ".", "-"))
		if color != "" {
			fmt.Fprintf(&sb, "  color: %s;\n", color)
		}
		if bold {
			sb.WriteString("  font-weight: bold;\n")
		}
		if italic {
			sb.WriteString("  font-style: italic;\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String(), nil
}

func pick(style *chroma.Style, tokens []chroma.TokenType) (color string, bold, italic bool) {
	for _, tt := range tokens {
		entry := style.Get(tt)
		if entry.Colour.IsSet() {
			return entry.Colour.String(),
				entry.Bold == chroma.Yes,
				entry.Italic == chroma.Yes
		}
	}
	return "", false, false
}

func knownStyle(name string) bool {
	lookup := strings.ToLower(strings.TrimSpace(name))
	for _, n := range styles.Names() {
		if n == lookup {
			return true
		}
	}
	return false
}
