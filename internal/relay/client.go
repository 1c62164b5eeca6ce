// client.go - HTTP client for the relayer that owns the commitment tree,
// the encrypted-output log and the spent-nullifier set.

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"privacycash/internal/log"
	"privacycash/internal/shielded"
)

var ErrRemoteProtocol = errors.New("relayer protocol error")

// ProtocolError is a non-2xx response or a response that violates the
// endpoint's contract.
type ProtocolError struct {
	Path    string
	Status  int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("relayer %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("relayer %s: status %d: %s", e.Path, e.Status, e.Message)
}

func (e *ProtocolError) Unwrap() error { return ErrRemoteProtocol }

func contractError(p, format string, args ...any) error {
	return &ProtocolError{Path: p, Message: fmt.Sprintf(format, args...)}
}

// Client talks to one relayer.
type Client struct {
	c    *http.Client
	addr *url.URL

	feeConfig atomic.Pointer[FeeConfig]
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.c = hc }
}

// NewClient creates a relayer client for the given base URL.
func NewClient(addr string, opts ...Option) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.Wrap(err, "parse relayer url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("relayer url %q must be absolute", addr)
	}
	tr := &http.Transport{
		IdleConnTimeout:    10 * time.Second,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024,
		ReadBufferSize:     1 * 1024 * 1024,
	}
	c := &Client{
		c:    &http.Client{Transport: tr, Timeout: 30 * time.Second},
		addr: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Addr returns the relayer base URL.
func (c *Client) Addr() string { return c.addr.String() }

// request performs a JSON request and returns the body of a 2xx response.
// Any other status becomes a *ProtocolError carrying the relayer's message.
func (c *Client) request(ctx context.Context, method string, jsonBody any, query url.Values, urlPath ...string) ([]byte, error) {
	u := *c.addr
	u.Path = path.Join("/", u.Path, path.Join(urlPath...))
	u.RawQuery = query.Encode()

	var body io.Reader
	if jsonBody != nil {
		b, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "privacycash-engine/1.0")

	log.Debugf("%s %s", method, u.String())
	resp, err := c.c.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, u.Path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", u.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{Path: u.Path, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// getJSON decodes a GET response into out.
func (c *Client) getJSON(ctx context.Context, out any, query url.Values, urlPath ...string) error {
	data, err := c.request(ctx, http.MethodGet, nil, query, urlPath...)
	if err != nil {
		return err
	}
	return decode(data, out, urlPath...)
}

// postJSON sends body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, body, out any, urlPath ...string) error {
	data, err := c.request(ctx, http.MethodPost, body, nil, urlPath...)
	if err != nil {
		return err
	}
	return decode(data, out, urlPath...)
}

func decode(data []byte, out any, urlPath ...string) error {
	if err := json.Unmarshal(data, out); err != nil {
		return contractError(path.Join(urlPath...), "malformed response: %v", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} when present
// and falls back to the raw body.
func errorMessage(body []byte) string {
	var m struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil {
		if m.Error != "" {
			return m.Error
		}
		if m.Message != "" {
			return m.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// assetQuery selects a token tree; the native asset uses the default tree.
func assetQuery(asset shielded.Asset) url.Values {
	q := url.Values{}
	if !asset.IsNative() {
		q.Set("token", asset.Name)
	}
	return q
}
