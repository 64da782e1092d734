package sigma

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAPIStub wires a client to a stub API. The auth endpoint always
// succeeds; everything else goes to handler.
func newAPIStub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(authBody("stub-token", 3600)))
	})
	mux.HandleFunc("/", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(Credentials{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
}

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	resp, err := client.Do(context.Background(), http.MethodGet, "/v2/workbooks", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer stub-token", gotAuth)
	assert.Equal(t, map[string]any{"ok": true}, resp.Payload)
}

func TestDoEncodesQueryAndBody(t *testing.T) {
	var gotQuery url.Values
	var gotContentType string
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	query := url.Values{"limit": {"2"}}
	_, err := client.Do(context.Background(), http.MethodPost, "/v2/workbooks", query, map[string]any{"name": "wb"})
	require.NoError(t, err)
	assert.Equal(t, "2", gotQuery.Get("limit"))
	assert.Equal(t, "application/json", gotContentType)
}

func TestDoWrapsUpstreamFailure(t *testing.T) {
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"nope"}`))
	})

	_, err := client.Do(context.Background(), http.MethodGet, "/v2/workbooks", nil, nil)
	require.Error(t, err)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindUpstream, se.Kind)
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.Contains(t, se.Body, "nope")
}

func TestDoKeepsBinaryBodiesRaw(t *testing.T) {
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 data"))
	})

	resp, err := client.Do(context.Background(), http.MethodGet, "/v2/query/q1/download", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, resp.Payload)
	assert.Equal(t, "application/pdf", resp.ContentType)
	assert.Equal(t, []byte("%PDF-1.7 data"), resp.Raw)
}

func TestDoNoContentIsEmpty(t *testing.T) {
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := client.Do(context.Background(), http.MethodGet, "/v2/query/q1/download", nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.IsEmpty())
}

func TestDoTimeoutIsUpstreamError(t *testing.T) {
	client := newAPIStub(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.SetHTTPClient(&http.Client{Timeout: 20 * time.Millisecond})

	// The auth exchange shares the stalled handler's server but not its
	// path, so the token call succeeds and the tool call times out.
	_, err := client.Do(context.Background(), http.MethodGet, "/v2/workbooks", nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUpstream))
}
