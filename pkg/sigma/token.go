package sigma

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	tokenEndpoint = "/v2/auth/token"

	// Tokens are replaced this long before their actual expiry so no
	// request is ever sent with a token about to lapse mid-flight.
	refreshMargin = 5 * time.Minute

	// Sigma tokens live for an hour; used when the exchange response
	// omits expires_in.
	defaultTokenLifetime = time.Hour
)

// token is one cached bearer token. Replaced wholesale on refresh, never
// mutated in place.
type token struct {
	value     string
	expiresAt time.Time
}

func (t token) valid(now time.Time) bool {
	return t.value != "" && now.Before(t.expiresAt.Add(-refreshMargin))
}

// Token returns a bearer token that is valid for at least the refresh
// margin. The common case is a read-locked cache hit. When a refresh is
// needed the exchange runs under the write lock, so concurrent callers
// block on the single in-flight exchange instead of issuing their own;
// at most one exchange happens per expiry cycle.
func (c *Client) Token(ctx context.Context) (string, error) {
	now := time.Now()

	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok.valid(now) {
		return tok.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while this one waited for the lock.
	if c.token.valid(time.Now()) {
		return c.token.value, nil
	}

	tok, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	return tok.value, nil
}

// exchange performs the client-credentials grant against the token
// endpoint. Failures are auth-kind errors and are never retried here.
func (c *Client) exchange(ctx context.Context) (token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return token{}, Wrap(err, KindAuth, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return token{}, Wrap(err, KindAuth, "token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token{}, Wrap(err, KindAuth, "reading token response")
	}
	if resp.StatusCode != http.StatusOK {
		return token{}, NewError(KindAuth, "token exchange returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return token{}, Wrap(err, KindAuth, "malformed token response")
	}
	if decoded.AccessToken == "" {
		return token{}, NewError(KindAuth, "token response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if decoded.ExpiresIn > 0 {
		lifetime = time.Duration(decoded.ExpiresIn) * time.Second
	}
	return token{value: decoded.AccessToken, expiresAt: time.Now().Add(lifetime)}, nil
}
