// Package language defines the closed set of languages the service can
// highlight and the mapping between wire identifiers, names, and file paths.
//
// Wire values are stable small integers: once a language has shipped with a
// value, that value is never reused. Unspecified (0) is reserved for "the
// client did not say"; it is not a registrable language.
package language

import (
	"path/filepath"
	"strings"
)

// ID identifies a language on the wire and in the grammar registry.
type ID uint8

const (
	Unspecified ID = iota
	Go
	Rust
	Python
	JavaScript
	TypeScript
	TSX
	JSON
	YAML
	TOML
	Bash
	C
	CPP
	HTML

	// count of defined IDs, used for bounds checks. Keep last.
	sentinel
)

var names = map[ID]string{
	Unspecified: "unspecified",
	Go:          "go",
	Rust:        "rust",
	Python:      "python",
	JavaScript:  "javascript",
	TypeScript:  "typescript",
	TSX:         "tsx",
	JSON:        "json",
	YAML:        "yaml",
	TOML:        "toml",
	Bash:        "bash",
	C:           "c",
	CPP:         "cpp",
	HTML:        "html",
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(names))
	for id, name := range names {
		m[name] = id
	}
	// Aliases accepted from clients and the CLI.
	m["js"] = JavaScript
	m["ts"] = TypeScript
	m["py"] = Python
	m["rs"] = Rust
	m["sh"] = Bash
	m["shell"] = Bash
	m["c++"] = CPP
	m["cxx"] = CPP
	m["yml"] = YAML
	return m
}()

// String returns the canonical name of the language.
func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return "unspecified"
}

// Valid reports whether id is a defined wire value (including Unspecified).
func (id ID) Valid() bool {
	return id < sentinel
}

// FromName resolves a language name or common alias. Unknown names resolve
// to Unspecified.
func FromName(name string) ID {
	if id, ok := byName[strings.TrimSpace(strings.ToLower(name))]; ok {
		return id
	}
	return Unspecified
}

// All lists every registrable language in wire-value order.
func All() []ID {
	out := make([]ID, 0, int(sentinel)-1)
	for id := Go; id < sentinel; id++ {
		out = append(out, id)
	}
	return out
}

var extMap = map[string]ID{
	".go":    Go,
	".rs":    Rust,
	".py":    Python,
	".js":    JavaScript,
	".jsx":   JavaScript,
	".mjs":   JavaScript,
	".cjs":   JavaScript,
	".ts":    TypeScript,
	".tsx":   TSX,
	".json":  JSON,
	".jsonc": JSON,
	".yaml":  YAML,
	".yml":   YAML,
	".toml":  TOML,
	".sh":    Bash,
	".bash":  Bash,
	".zsh":   Bash,
	".c":     C,
	".h":     C,
	".cpp":   CPP,
	".cc":    CPP,
	".cxx":   CPP,
	".hpp":   CPP,
	".hh":    CPP,
	".html":  HTML,
	".htm":   HTML,
}

var fileMap = map[string]ID{
	".bashrc":    Bash,
	".zshrc":     Bash,
	"Cargo.toml": TOML,
	"go.mod":     Go,
}

// Detect infers a language from a file path, falling back to Unspecified.
// Used when a request leaves the language field unset.
func Detect(path string) ID {
	base := filepath.Base(path)
	if id, ok := fileMap[base]; ok {
		return id
	}
	ext := strings.ToLower(filepath.Ext(base))
	if id, ok := extMap[ext]; ok {
		return id
	}
	return Unspecified
}

// DetectWithShebang is Detect plus a shebang-line fallback for extensionless
// scripts.
func DetectWithShebang(path string, firstLine string) ID {
	if id := Detect(path); id != Unspecified {
		return id
	}
	if !strings.HasPrefix(firstLine, "#!") {
		return Unspecified
	}
	lower := strings.ToLower(firstLine)
	switch {
	case strings.Contains(lower, "python"):
		return Python
	case strings.Contains(lower, "bash") || strings.Contains(lower, "zsh") || strings.Contains(lower, "sh"):
		return Bash
	case strings.Contains(lower, "node"):
		return JavaScript
	default:
		return Unspecified
	}
}
