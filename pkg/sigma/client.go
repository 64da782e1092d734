// Package sigma is the Sigma Computing REST API client: credential
// configuration, the cached bearer-token session, and authenticated
// request execution. All failures surface as *Error values; see errors.go
// for the taxonomy.
package sigma

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 30 * time.Second

// Credentials is the immutable configuration for one Sigma organization,
// supplied once at process start.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client executes authenticated requests against the Sigma API. It owns
// the token cache; the cache is the only shared mutable state and is safe
// for concurrent use.
type Client struct {
	baseURL string
	creds   Credentials
	httpc   *http.Client

	mu    sync.RWMutex
	token token
}

// NewClient builds a Client from credentials. The HTTP client can be
// overridden with SetHTTPClient (tests use this for stub upstreams).
func NewClient(creds Credentials) *Client {
	return &Client{
		baseURL: strings.TrimRight(creds.BaseURL, "/"),
		creds:   creds,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
}

// SetHTTPClient replaces the underlying HTTP client. Call before first use.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpc = hc
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is the normalized outcome of one upstream call. JSON bodies are
// decoded into Payload; anything else (export downloads) is kept as raw
// bytes with its content type.
type Response struct {
	Status      int
	ContentType string
	Payload     any
	Raw         []byte
}

// IsEmpty reports whether the upstream answered with no content, which the
// export/download flow uses to signal "not ready yet".
func (r *Response) IsEmpty() bool {
	return r.Status == http.StatusNoContent || len(r.Raw) == 0 && r.Payload == nil
}

// Do executes one authenticated request. endpoint is an absolute API path
// like "/v2/workbooks". query may be nil; a non-nil body is JSON-encoded.
// Non-2xx responses and transport failures (including timeouts) come back
// as upstream-kind errors, a failed token refresh as an auth-kind error.
func (c *Client) Do(ctx context.Context, method, endpoint string, query url.Values, body any) (*Response, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, Wrap(err, KindInvalidArgument, "encoding request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, Wrap(err, KindUpstream, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, Wrap(err, KindUpstream, "calling Sigma API")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(err, KindUpstream, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewUpstreamError(resp.StatusCode, string(data))
	}

	out := &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Raw:         data,
	}
	if len(data) > 0 && strings.HasPrefix(out.ContentType, "application/json") {
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, NewUpstreamError(resp.StatusCode, "malformed JSON response: "+err.Error())
		}
		out.Payload = payload
	}
	return out, nil
}
