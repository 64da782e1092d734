// Package config loads process configuration: environment variables
// first, with an optional YAML file underneath. Missing credentials are a
// startup-time fatal error, never a dispatch-time one.
package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

const defaultBaseURL = "https://api.sigmacomputing.com"

// Config holds server configuration.
type Config struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	HTTPAddr     string `yaml:"http_addr"`
}

// Load builds a Config from an optional YAML file and the environment.
// Environment variables win over file values; file values win over
// defaults. path may be empty.
func Load(path string) (*Config, error) {
	cfg := &Config{
		BaseURL:  defaultBaseURL,
		HTTPAddr: ":8080",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, sigma.Wrap(err, sigma.KindConfig, "reading config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, sigma.Wrap(err, sigma.KindConfig, "parsing config file")
		}
	}

	if v := os.Getenv("SIGMA_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SIGMA_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("SIGMA_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("SIGMA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	return cfg, nil
}

// Validate checks that every required value is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return sigma.NewError(sigma.KindConfig, "base URL is required (SIGMA_BASE_URL)")
	}
	if c.ClientID == "" {
		return sigma.NewError(sigma.KindConfig, "client ID is required (SIGMA_CLIENT_ID)")
	}
	if c.ClientSecret == "" {
		return sigma.NewError(sigma.KindConfig, "client secret is required (SIGMA_CLIENT_SECRET)")
	}
	return nil
}

// Credentials returns the immutable credential set for the API client.
func (c *Config) Credentials() sigma.Credentials {
	return sigma.Credentials{
		BaseURL:      c.BaseURL,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// LogConfiguration logs the effective configuration with secrets masked.
func (c *Config) LogConfiguration() {
	log.Printf("Sigma base URL: %s", c.BaseURL)
	log.Printf("Client ID: %s", maskSensitive(c.ClientID))
}

// maskSensitive masks sensitive values for logging.
func maskSensitive(v string) string {
	if len(v) > 8 {
		return v[:4] + "***" + v[len(v)-4:]
	}
	return "***"
}
