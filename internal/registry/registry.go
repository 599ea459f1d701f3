// Package registry holds the process-wide table of compiled grammars and
// their highlight, injection, and locals queries.
//
// The table is built exactly once, on first use, and is immutable
// afterwards: concurrent Resolve calls after initialization touch no locks.
// Adding a language means registering a new grammar and query set here
// before serving traffic; there is no runtime registration path.
package registry

import (
	"embed"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	bashlang "github.com/smacker/go-tree-sitter/bash"
	clang "github.com/smacker/go-tree-sitter/c"
	cpplang "github.com/smacker/go-tree-sitter/cpp"
	golang "github.com/smacker/go-tree-sitter/golang"
	htmllang "github.com/smacker/go-tree-sitter/html"
	jslang "github.com/smacker/go-tree-sitter/javascript"
	python "github.com/smacker/go-tree-sitter/python"
	rust "github.com/smacker/go-tree-sitter/rust"
	toml "github.com/smacker/go-tree-sitter/toml"
	yaml "github.com/smacker/go-tree-sitter/yaml"
	tsxlang "github.com/smacker/go-tree-sitter/typescript/tsx"
	tslang "github.com/smacker/go-tree-sitter/typescript/typescript"
	tsjson "github.com/tree-sitter/tree-sitter-json/bindings/go"

	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/language"
)

//go:embed queries
var queryFS embed.FS

// Entry is one language's compiled grammar and query set. Entries are
// shared read-only across all workers; queries and grammars live for the
// process lifetime and are never closed.
type Entry struct {
	ID      language.ID
	Lang    *sitter.Language
	// Highlight maps syntax structure to named scopes.
	Highlight *sitter.Query
	// Injection locates embedded-language regions; nil when the language
	// has none.
	Injection *sitter.Query
	// Locals classifies definitions and references; nil when the language
	// ships no locals query.
	Locals *sitter.Query

	// ScopeNames are the highlight query's capture names, indexed by
	// capture id.
	ScopeNames []string
}

var (
	once    sync.Once
	entries map[language.ID]*Entry
)

// Resolver resolves a language identifier to its grammar entry. Satisfied
// by this package's Resolve; declared so the renderer can take a narrow
// dependency.
type Resolver interface {
	Resolve(id language.ID) (*Entry, error)
}

// Table is the process-wide registry. The zero value is ready for use.
type Table struct{}

// Default returns the shared registry.
func Default() *Table { return &Table{} }

// Resolve returns the entry for id, or an unknownLanguage failure when id
// is Unspecified or has no compiled grammar. First call populates the
// table; population is idempotent and safe under concurrent first use.
func (*Table) Resolve(id language.ID) (*Entry, error) {
	once.Do(populate)
	if e, ok := entries[id]; ok {
		return e, nil
	}
	return nil, errors.UnknownLanguage(id.String())
}

// Languages lists the registered languages in wire order.
func (*Table) Languages() []language.ID {
	once.Do(populate)
	out := make([]language.ID, 0, len(entries))
	for _, id := range language.All() {
		if _, ok := entries[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// ScopeNames returns the union of every registered language's scope names,
// deterministically ordered.
func (t *Table) ScopeNames() []string {
	once.Do(populate)
	seen := make(map[string]struct{})
	var out []string
	for _, id := range t.Languages() {
		for _, name := range entries[id].ScopeNames {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func populate() {
	specs := []struct {
		id   language.ID
		lang *sitter.Language
	}{
		{language.Go, golang.GetLanguage()},
		{language.Rust, rust.GetLanguage()},
		{language.Python, python.GetLanguage()},
		{language.JavaScript, jslang.GetLanguage()},
		{language.TypeScript, tslang.GetLanguage()},
		{language.TSX, tsxlang.GetLanguage()},
		{language.JSON, sitter.NewLanguage(tsjson.Language())},
		{language.YAML, yaml.GetLanguage()},
		{language.TOML, toml.GetLanguage()},
		{language.Bash, bashlang.GetLanguage()},
		{language.C, clang.GetLanguage()},
		{language.CPP, cpplang.GetLanguage()},
		{language.HTML, htmllang.GetLanguage()},
	}

	entries = make(map[language.ID]*Entry, len(specs))
	for _, s := range specs {
		entry, err := compile(s.id, s.lang)
		if err != nil {
			// A language whose query set fails to compile is left out of
			// the table; its files fail with unknownLanguage instead of
			// crashing the process.
			continue
		}
		entries[s.id] = entry
	}
}

func compile(id language.ID, lang *sitter.Language) (*Entry, error) {
	src, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", id))
	if err != nil {
		return nil, fmt.Errorf("highlight query for %s: %w", id, err)
	}
	highlight, err := sitter.NewQuery(src, lang)
	if err != nil {
		return nil, fmt.Errorf("compile highlight query for %s: %w", id, err)
	}

	e := &Entry{ID: id, Lang: lang, Highlight: highlight}

	names := make([]string, highlight.CaptureCount())
	for i := range names {
		names[i] = highlight.CaptureNameForId(uint32(i))
	}
	e.ScopeNames = names

	// Injection and locals queries are optional per language.
	if src, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.injections.scm", id)); err == nil {
		if q, err := sitter.NewQuery(src, lang); err == nil {
			e.Injection = q
		}
	}
	if src, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.locals.scm", id)); err == nil {
		if q, err := sitter.NewQuery(src, lang); err == nil {
			e.Locals = q
		}
	}

	return e, nil
}

var _ Resolver = (*Table)(nil)
