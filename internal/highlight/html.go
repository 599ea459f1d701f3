package highlight

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HTMLRenderer converts a highlight event stream into one HTML string per
// input line, with scope names rendered as span classes. The markup is a
// fragment: wrapping it in <pre><code> and styling the classes is the
// caller's concern.
type HTMLRenderer struct {
	// classes overrides the default scope→class mapping.
	classes map[string]string
}

// NewHTMLRenderer returns a renderer with the default class mapping
// (scope name with dots replaced by dashes).
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// LoadClassMap reads a YAML file of scope→class overrides, e.g.
//
//	constant.builtin: tok-const
//	keyword: tok-kw
func (r *HTMLRenderer) LoadClassMap(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read class map: %w", err)
	}
	classes := make(map[string]string)
	if err := yaml.Unmarshal(data, &classes); err != nil {
		return fmt.Errorf("parse class map: %w", err)
	}
	r.classes = classes
	return nil
}

// ClassFor maps a scope name to a CSS class.
func (r *HTMLRenderer) ClassFor(scope string) string {
	if c, ok := r.classes[scope]; ok {
		return c
	}
	return strings.ReplaceAll(scope, ".", "-")
}

// Render walks the event stream and produces one string per source line.
// Open scopes are closed at each line break and reopened on the next line
// so every returned string is a self-contained fragment.
func (r *HTMLRenderer) Render(src []byte, events []Event) []string {
	if len(src) == 0 {
		return nil
	}

	var (
		lines []string
		line  strings.Builder
		open  []string
		// hasSource tracks whether the current line holds actual source
		// bytes, as opposed to span tags reopened after a line break.
		hasSource bool
	)

	openSpans := func() {
		for _, scope := range open {
			line.WriteString(`<span class="`)
			line.WriteString(r.ClassFor(scope))
			line.WriteString(`">`)
		}
	}
	closeSpans := func() {
		for range open {
			line.WriteString("</span>")
		}
	}
	endLine := func() {
		closeSpans()
		lines = append(lines, line.String())
		line.Reset()
		openSpans()
		hasSource = false
	}

	for _, ev := range events {
		switch ev.Kind {
		case EventScopeStart:
			open = append(open, ev.Scope)
			line.WriteString(`<span class="`)
			line.WriteString(r.ClassFor(ev.Scope))
			line.WriteString(`">`)
		case EventScopeEnd:
			if len(open) > 0 {
				open = open[:len(open)-1]
				line.WriteString("</span>")
			}
		case EventSource:
			chunk := src[ev.Start:ev.End]
			for {
				nl := bytes.IndexByte(chunk, '\n')
				if nl < 0 {
					if len(chunk) > 0 {
						writeEscaped(&line, chunk)
						hasSource = true
					}
					break
				}
				if nl > 0 {
					writeEscaped(&line, chunk[:nl])
					hasSource = true
				}
				endLine()
				chunk = chunk[nl+1:]
			}
		}
	}

	// Flush the final line only when it carries source bytes; a scope
	// event covering the trailing newline leaves reopened span tags in
	// the builder that would otherwise become a phantom empty line.
	if hasSource || len(src) > 0 && src[len(src)-1] != '\n' {
		closeSpans()
		lines = append(lines, line.String())
	}

	return lines
}


func writeEscaped(sb *strings.Builder, chunk []byte) {
	for _, b := range chunk {
		switch b {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		default:
			sb.WriteByte(b)
		}
	}
}
