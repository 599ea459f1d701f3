package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismd/prismd/internal/config"
	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/highlight"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/pool"
	"github.com/prismd/prismd/internal/protocol"
	"github.com/prismd/prismd/internal/registry"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MaxRequestBytes = 1 << 20
	cfg.Server.MaxFileBytes = 1 << 16
	if mutate != nil {
		mutate(cfg)
	}

	p := pool.New(pool.Config{MaxWorkers: 4, QueueDepth: 64})
	t.Cleanup(p.Close)
	reg := registry.Default()
	coord := engine.NewCoordinator(engine.Config{
		Registry:       reg,
		Pool:           p,
		Renderer:       highlight.NewHTMLRenderer(),
		DefaultTimeout: cfg.DefaultTimeout(),
		MaxTimeout:     cfg.MaxTimeout(),
	})

	ts := httptest.NewServer(New(cfg, coord, reg, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postFrame(t *testing.T, ts *httptest.Server, frame []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/html", FrameContentType, bytes.NewReader(frame))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHTMLEndpointRendersBatch(t *testing.T) {
	ts := newTestServer(t, nil)

	frame := protocol.EncodeRequest(&engine.Request{Files: []engine.File{
		{Ident: 1, Filename: "main.go", Language: language.Go, Contents: []byte("package main\n")},
		{Ident: 2, Filename: "nope.xyz", Contents: []byte("x")},
	}})

	resp, body := postFrame(t, ts, frame)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, FrameContentType, resp.Header.Get("Content-Type"))

	decoded, err := protocol.DecodeResponse(body)
	require.NoError(t, err)
	require.Len(t, decoded.Documents, 1)
	require.Len(t, decoded.Failures, 1)
	assert.Equal(t, uint16(1), decoded.Documents[0].Ident)
	assert.Contains(t, decoded.Documents[0].Lines[0], "<span")
	assert.Equal(t, errors.KindUnknownLanguage, decoded.Failures[0].Reason)
}

func TestHTMLEndpointRejectsMalformedFrame(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := postFrame(t, ts, []byte("not a frame"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, errors.CodeMalformedFrame, e["code"])
}

func TestHTMLEndpointRejectsOversizedPayload(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxRequestBytes = 256
	})

	frame := protocol.EncodeRequest(&engine.Request{Files: []engine.File{
		{Ident: 1, Filename: "big.go", Language: language.Go, Contents: make([]byte, 1024)},
	}})

	resp, body := postFrame(t, ts, frame)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, errors.CodePayloadTooLarge, e["code"])
}

func TestHTMLEndpointRejectsOversizedFile(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxFileBytes = 64
	})

	frame := protocol.EncodeRequest(&engine.Request{Files: []engine.File{
		{Ident: 1, Filename: "big.go", Language: language.Go, Contents: make([]byte, 128)},
	}})

	resp, body := postFrame(t, ts, frame)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, errors.CodeFileTooLarge, e["code"])
}

func TestHTMLEndpointRejectsOverMaxTimeout(t *testing.T) {
	ts := newTestServer(t, nil)

	frame := protocol.EncodeRequest(&engine.Request{
		TimeoutMS: uint32(config.Default().MaxTimeout().Milliseconds()) + 1,
		Files: []engine.File{
			{Ident: 1, Filename: "a.go", Language: language.Go, Contents: []byte("package a\n")},
		},
	})

	resp, body := postFrame(t, ts, frame)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, errors.CodeTimeoutTooLarge, e["code"])
}

func TestLanguagesEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/languages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Languages []string `json:"languages"`
		Scopes    []string `json:"scopes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Languages, "go")
	assert.Contains(t, out.Languages, "rust")
	assert.Contains(t, out.Scopes, "keyword")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/html")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerStartAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	p := pool.New(pool.Config{MaxWorkers: 2, QueueDepth: 16})
	t.Cleanup(p.Close)
	reg := registry.Default()
	coord := engine.NewCoordinator(engine.Config{
		Registry:       reg,
		Pool:           p,
		Renderer:       highlight.NewHTMLRenderer(),
		DefaultTimeout: time.Second,
		MaxTimeout:     time.Minute,
	})
	srv := New(cfg, coord, reg, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}
