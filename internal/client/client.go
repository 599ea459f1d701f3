// Package client is the thin HTTP client behind the render subcommand.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/protocol"
)

const frameContentType = "application/x-prismd-frame"

// Client talks to one prismd server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New builds a client for addr, which may be a bare host:port or a full
// http URL.
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		httpc:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Render posts one batch and returns the decoded response. Request-level
// rejections come back as *errors.RequestError.
func (c *Client) Render(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	frame := protocol.EncodeRequest(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/html", bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", frameContentType)

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting batch: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeRejection(httpResp.StatusCode, body)
	}
	return protocol.DecodeResponse(body)
}

// Languages fetches the server's registered language names.
func (c *Client) Languages(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/languages", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching languages: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", httpResp.Status)
	}
	var out struct {
		Languages []string `json:"languages"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding languages: %w", err)
	}
	return out.Languages, nil
}

func decodeRejection(status int, body []byte) error {
	var e struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		return &errors.RequestError{Code: e.Code, Message: e.Error}
	}
	return fmt.Errorf("server returned status %d", status)
}
