package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

func clearSigmaEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SIGMA_BASE_URL", "SIGMA_CLIENT_ID", "SIGMA_CLIENT_SECRET", "SIGMA_HTTP_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearSigmaEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.sigmacomputing.com", cfg.BaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.ClientID)
}

func TestLoadFromFile(t *testing.T) {
	clearSigmaEnv(t)

	path := filepath.Join(t.TempDir(), "sigma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"base_url: https://api.eu.sigmacomputing.com\nclient_id: file-id\nclient_secret: file-secret\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.eu.sigmacomputing.com", cfg.BaseURL)
	assert.Equal(t, "file-id", cfg.ClientID)
	assert.Equal(t, "file-secret", cfg.ClientSecret)
	assert.Equal(t, ":8080", cfg.HTTPAddr, "file without http_addr keeps the default")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearSigmaEnv(t)

	path := filepath.Join(t.TempDir(), "sigma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"client_id: file-id\nclient_secret: file-secret\n",
	), 0o600))

	t.Setenv("SIGMA_CLIENT_ID", "env-id")
	t.Setenv("SIGMA_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.ClientID)
	assert.Equal(t, "file-secret", cfg.ClientSecret)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoadMissingFile(t *testing.T) {
	clearSigmaEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, sigma.IsKind(err, sigma.KindConfig))
}

func TestLoadMalformedFile(t *testing.T) {
	clearSigmaEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_id: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, sigma.IsKind(err, sigma.KindConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"complete", Config{BaseURL: "https://api.sigmacomputing.com", ClientID: "id", ClientSecret: "secret"}, ""},
		{"missing base URL", Config{ClientID: "id", ClientSecret: "secret"}, "base URL"},
		{"missing client ID", Config{BaseURL: "https://api.sigmacomputing.com", ClientSecret: "secret"}, "client ID"},
		{"missing client secret", Config{BaseURL: "https://api.sigmacomputing.com", ClientID: "id"}, "client secret"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, sigma.IsKind(err, sigma.KindConfig))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "clie***3456", maskSensitive("clientid123456"))
	assert.Equal(t, "***", maskSensitive("short"))
	assert.Equal(t, "***", maskSensitive(""))
}
