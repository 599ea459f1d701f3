// Package highlight runs a compiled grammar and query set over raw bytes
// and produces an ordered highlight event stream, plus renderers that turn
// event streams into output representations.
//
// Highlighting is CPU-bound and synchronous; cancellation is cooperative.
// The context deadline is observed at natural traversal boundaries (between
// query matches) and inside the parser itself, so worst-case overrun is the
// cost of a single traversal step.
package highlight

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/registry"
)

// matchCheckStride is how many query matches are processed between
// deadline checks.
const matchCheckStride = 64

const injectionCapturePrefix = "injection.content."

// Highlight parses src with entry's grammar, runs the highlight query, and
// returns a well-nested event stream covering the full byte range.
// Uncategorized bytes appear as plain Source events (the implicit default
// scope).
//
// src is borrowed: it is read, never copied or mutated, and must stay alive
// until Highlight returns. Invalid UTF-8 surfaces as an invalidEncoding
// failure during event emission; there is no up-front validation pass.
func Highlight(ctx context.Context, src []byte, entry *registry.Entry, res registry.Resolver, opts Options) ([]Event, error) {
	if len(src) == 0 {
		return nil, nil
	}

	scopes := newScopeTable()
	claims := make([]uint16, len(src))
	if err := claim(ctx, src, entry, res, opts, scopes, claims, 0); err != nil {
		return nil, err
	}
	return emit(src, claims, scopes)
}

// scopeTable interns scope names for the duration of one render. Claim
// values are index+1 so that zero stays "unclaimed".
type scopeTable struct {
	byName map[string]uint16
	names  []string
}

func newScopeTable() *scopeTable {
	return &scopeTable{byName: make(map[string]uint16, 16)}
}

func (t *scopeTable) intern(name string) uint16 {
	if v, ok := t.byName[name]; ok {
		return v
	}
	t.names = append(t.names, name)
	v := uint16(len(t.names)) // 1-based
	t.byName[name] = v
	return v
}

func (t *scopeTable) name(v uint16) string {
	return t.names[v-1]
}

// claim fills claims[i] with the interned scope for byte base+i of the
// original buffer. First pattern wins: later catch-all captures do not
// overwrite earlier specific ones. depth guards injection recursion.
func claim(ctx context.Context, src []byte, entry *registry.Entry, res registry.Resolver, opts Options, scopes *scopeTable, claims []uint16, depth int) error {
	parser := sitter.NewParser()
	parser.SetLanguage(entry.Lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return mapContextErr(ctx, err)
	}
	if tree == nil {
		return errors.Internal("parser produced no tree", nil)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return errors.Internal("parse tree has no root", nil)
	}

	qc := sitter.NewQueryCursor()
	qc.Exec(entry.Highlight, root)

	processed := 0
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, src)

		processed++
		if processed%matchCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return mapContextErr(ctx, err)
			}
		}

		for _, c := range m.Captures {
			start := int(c.Node.StartByte())
			end := int(c.Node.EndByte())
			if start >= end || start >= len(claims) {
				continue
			}
			if end > len(claims) {
				end = len(claims)
			}
			idx := scopes.intern(entry.ScopeNames[c.Index])
			for i := start; i < end; i++ {
				if claims[i] == 0 {
					claims[i] = idx
				}
			}
		}
	}

	if opts.Injections && entry.Injection != nil && depth == 0 {
		if err := claimInjections(ctx, src, entry, res, opts, scopes, claims, root); err != nil {
			return err
		}
	}

	return nil
}

// claimInjections re-highlights embedded-language regions located by the
// injection query, replacing the base claims inside each region. One level
// deep: an injected document's own injections are not followed.
func claimInjections(ctx context.Context, src []byte, entry *registry.Entry, res registry.Resolver, opts Options, scopes *scopeTable, claims []uint16, root *sitter.Node) error {
	names := make([]string, entry.Injection.CaptureCount())
	for i := range names {
		names[i] = entry.Injection.CaptureNameForId(uint32(i))
	}

	qc := sitter.NewQueryCursor()
	qc.Exec(entry.Injection, root)

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, src)

		for _, c := range m.Captures {
			capName := names[c.Index]
			if !strings.HasPrefix(capName, injectionCapturePrefix) {
				continue
			}
			id := language.FromName(strings.TrimPrefix(capName, injectionCapturePrefix))
			injected, err := res.Resolve(id)
			if err != nil {
				// An injection into an unregistered language degrades to
				// the outer highlighting, it does not fail the file.
				continue
			}

			start := int(c.Node.StartByte())
			end := int(c.Node.EndByte())
			if start >= end || start >= len(src) {
				continue
			}
			if end > len(src) {
				end = len(src)
			}

			region := claims[start:end]
			for i := range region {
				region[i] = 0
			}
			if err := claim(ctx, src[start:end], injected, res, opts, scopes, region, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// emit compresses per-byte claims into the event stream, validating UTF-8
// chunk by chunk as events are produced.
func emit(src []byte, claims []uint16, scopes *scopeTable) ([]Event, error) {
	events := make([]Event, 0, 64)

	flush := func(start, end int, scope uint16) error {
		chunk := src[start:end]
		if !utf8.Valid(chunk) {
			off := invalidOffset(chunk)
			return errors.InvalidEncoding(fmt.Errorf("invalid UTF-8 byte at offset %d", start+off))
		}
		if scope != 0 {
			events = append(events, Event{Kind: EventScopeStart, Scope: scopes.name(scope)})
		}
		events = append(events, Event{Kind: EventSource, Start: uint32(start), End: uint32(end)})
		if scope != 0 {
			events = append(events, Event{Kind: EventScopeEnd})
		}
		return nil
	}

	runStart := 0
	current := claims[0]
	for i := 1; i < len(claims); i++ {
		if claims[i] == current {
			continue
		}
		if err := flush(runStart, i, current); err != nil {
			return nil, err
		}
		runStart = i
		current = claims[i]
	}
	if err := flush(runStart, len(claims), current); err != nil {
		return nil, err
	}

	return events, nil
}

func invalidOffset(chunk []byte) int {
	for i := 0; i < len(chunk); {
		r, size := utf8.DecodeRune(chunk[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return 0
}

func mapContextErr(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.TimedOut("deadline expired during highlighting")
	case context.Canceled:
		return errors.Cancelled("highlighting aborted")
	default:
		return errors.Internal("parse failed", err)
	}
}
