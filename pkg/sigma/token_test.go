package sigma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAuthStub returns a client wired to a stub token endpoint and an
// exchange counter.
func newAuthStub(t *testing.T, status int, body string) (*Client, *atomic.Int64) {
	t.Helper()
	var exchanges atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/auth/token", func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		w.WriteHeader(status)
		w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(Credentials{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}), &exchanges
}

func authBody(token string, expiresIn int64) string {
	b, _ := json.Marshal(map[string]any{"access_token": token, "expires_in": expiresIn})
	return string(b)
}

func TestTokenFirstCallExchanges(t *testing.T) {
	client, exchanges := newAuthStub(t, http.StatusOK, authBody("tok-1", 3600))

	tok, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), exchanges.Load())

	// Fresh token: the second call is a cache hit.
	tok, err = client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), exchanges.Load())
}

func TestTokenRefreshesInsideMargin(t *testing.T) {
	client, exchanges := newAuthStub(t, http.StatusOK, authBody("tok-fresh", 3600))

	// 4 minutes of lifetime left is inside the 5-minute margin.
	client.token = token{value: "tok-stale", expiresAt: time.Now().Add(4 * time.Minute)}

	tok, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", tok)
	assert.Equal(t, int64(1), exchanges.Load())
}

func TestTokenNoRefreshOutsideMargin(t *testing.T) {
	client, exchanges := newAuthStub(t, http.StatusOK, authBody("tok-fresh", 3600))

	client.token = token{value: "tok-current", expiresAt: time.Now().Add(10 * time.Minute)}

	tok, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-current", tok)
	assert.Equal(t, int64(0), exchanges.Load())
}

func TestTokenConcurrentCallersSingleExchange(t *testing.T) {
	client, exchanges := newAuthStub(t, http.StatusOK, authBody("tok-shared", 3600))

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = client.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), exchanges.Load(), "concurrent callers must share one exchange")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-shared", tokens[i])
	}
}

func TestTokenExchangeFailureIsAuthError(t *testing.T) {
	client, _ := newAuthStub(t, http.StatusUnauthorized, `{"message":"bad credentials"}`)

	_, err := client.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	assert.Contains(t, err.Error(), "401")
}

func TestTokenMalformedResponseIsAuthError(t *testing.T) {
	client, _ := newAuthStub(t, http.StatusOK, "not json")

	_, err := client.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
}

func TestTokenMissingAccessToken(t *testing.T) {
	client, _ := newAuthStub(t, http.StatusOK, `{"expires_in": 3600}`)

	_, err := client.Token(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
}

func TestTokenDefaultLifetimeApplied(t *testing.T) {
	client, _ := newAuthStub(t, http.StatusOK, `{"access_token":"tok-1"}`)

	_, err := client.Token(context.Background())
	require.NoError(t, err)

	remaining := time.Until(client.token.expiresAt)
	assert.Greater(t, remaining, 55*time.Minute)
	assert.LessOrEqual(t, remaining, time.Hour)
}
