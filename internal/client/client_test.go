package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/protocol"
)

func TestRenderRoundTrip(t *testing.T) {
	var gotFrame []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/html", r.URL.Path)
		var err error
		gotFrame, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", frameContentType)
		_, _ = w.Write(protocol.EncodeResponse(&engine.Response{
			Documents: []engine.Document{
				{Ident: 1, Filename: "a.go", Language: language.Go, Lines: []string{"x"}},
			},
		}))
	}))
	defer ts.Close()

	c := New(ts.URL)
	resp, err := c.Render(context.Background(), &engine.Request{Files: []engine.File{
		{Ident: 1, Filename: "a.go", Language: language.Go, Contents: []byte("package a\n")},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, []string{"x"}, resp.Documents[0].Lines)

	decoded, err := protocol.DecodeRequest(gotFrame, protocol.Limits{})
	require.NoError(t, err)
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, "a.go", decoded.Files[0].Filename)
}

func TestRenderSurfacesRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":  errors.CodeTimeoutTooLarge,
			"error": "requested per-file timeout too large",
		})
	}))
	defer ts.Close()

	_, err := New(ts.URL).Render(context.Background(), &engine.Request{})
	require.Error(t, err)
	var re *errors.RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, errors.CodeTimeoutTooLarge, re.Code)
}

func TestNewAcceptsBareHostPort(t *testing.T) {
	c := New("localhost:8443")
	assert.Equal(t, "http://localhost:8443", c.baseURL)
}

func TestLanguages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/languages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"languages": []string{"go", "rust"},
			"scopes":    []string{"keyword"},
		})
	}))
	defer ts.Close()

	langs, err := New(ts.URL).Languages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, langs)
}
