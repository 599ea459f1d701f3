package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringRoundTrip(t *testing.T) {
	for _, id := range All() {
		assert.Equal(t, id, FromName(id.String()), "round trip for %s", id)
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name string
		want ID
	}{
		{"go", Go},
		{"GO", Go},
		{"  rust ", Rust},
		{"js", JavaScript},
		{"ts", TypeScript},
		{"c++", CPP},
		{"yml", YAML},
		{"shell", Bash},
		{"cobol", Unspecified},
		{"", Unspecified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromName(tt.name), "FromName(%q)", tt.name)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		path string
		want ID
	}{
		{"main.go", Go},
		{"src/lib.rs", Rust},
		{"app/page.tsx", TSX},
		{"deploy/Cargo.toml", TOML},
		{"go.mod", Go},
		{"README.md", Unspecified},
		{"no_extension", Unspecified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.path), "Detect(%q)", tt.path)
	}
}

func TestDetectWithShebang(t *testing.T) {
	assert.Equal(t, Python, DetectWithShebang("runme", "#!/usr/bin/env python3"))
	assert.Equal(t, Bash, DetectWithShebang("runme", "#!/bin/bash"))
	assert.Equal(t, Unspecified, DetectWithShebang("runme", "plain text"))
	// Extension wins over shebang.
	assert.Equal(t, Go, DetectWithShebang("main.go", "#!/bin/bash"))
}

func TestValid(t *testing.T) {
	assert.True(t, Unspecified.Valid())
	assert.True(t, CPP.Valid())
	assert.False(t, ID(200).Valid())
}
