// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the credential batch processor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/shineum/mailcode-lite/internal/credential"
	"github.com/shineum/mailcode-lite/internal/pipeline"
)

// Config holds the complete application configuration.
type Config struct {
	Batch     BatchConfig         `yaml:"batch"`
	Token     TokenConfig         `yaml:"token"`
	Mailbox   MailboxConfig       `yaml:"mailbox"`
	Transport TransportConfig     `yaml:"transport"`
	Server    ServerConfig        `yaml:"server"`
	Report    ReportConfig        `yaml:"report"`
	Patterns  map[string][]string `yaml:"patterns"`
	Logging   LoggingConfig       `yaml:"logging"`
}

// BatchConfig holds batch processing defaults.
type BatchConfig struct {
	Concurrency     int      `yaml:"concurrency"`
	Mode            string   `yaml:"mode"`
	Types           []string `yaml:"types"`
	Top             int      `yaml:"top"`
	DefaultClientID string   `yaml:"default_client_id"`
	Timezone        string   `yaml:"timezone"`
}

// TokenConfig selects and configures the token refresh backend.
type TokenConfig struct {
	// Backend is "proxy" or "oauth".
	Backend  string `yaml:"backend"`
	ProxyURL string `yaml:"proxy_url"`
	Tenant   string `yaml:"tenant"`

	// Scopes is sent with oauth refresh grants; empty keeps the scopes of
	// the original grant.
	Scopes []string `yaml:"scopes"`
}

// MailboxConfig holds the mailbox listing endpoint.
type MailboxConfig struct {
	MessagesURL string `yaml:"messages_url"`
}

// TransportConfig holds HTTP client settings shared by all upstream calls.
type TransportConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseRetryDelay time.Duration `yaml:"base_retry_delay"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen string          `yaml:"listen"`
	TLS    ServerTLSConfig `yaml:"tls"`
}

// ServerTLSConfig holds TLS settings for the HTTP API.
type ServerTLSConfig struct {
	// Mode is "off", "file" or "self-signed".
	Mode     string   `yaml:"mode"`
	CertFile string   `yaml:"cert_file"`
	KeyFile  string   `yaml:"key_file"`
	Hosts    []string `yaml:"hosts"`
}

// ReportConfig selects where batch summaries are sent.
type ReportConfig struct {
	// Provider is "stdout", "ses" or "none".
	Provider string    `yaml:"provider"`
	SES      SESConfig `yaml:"ses"`
}

// SESConfig holds AWS SES v2 settings for summary reports.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
	Recipient       string `yaml:"recipient"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and required backend parameters.
// Mode aliases are rewritten to their canonical names.
func (c *Config) Validate() error {
	mode, err := pipeline.ParseMode(c.Batch.Mode)
	if err != nil {
		return fmt.Errorf("invalid batch mode: %w", err)
	}
	c.Batch.Mode = string(mode)

	switch c.Token.Backend {
	case "proxy":
		if c.Token.ProxyURL == "" {
			return fmt.Errorf("token backend %q requires TOKEN_PROXY_URL", c.Token.Backend)
		}
	case "oauth":
	default:
		return fmt.Errorf("invalid token backend %q", c.Token.Backend)
	}

	switch c.Report.Provider {
	case "stdout", "none", "":
	case "ses":
		if !c.SESConfigured() {
			return fmt.Errorf("report provider ses requires SES_REGION, SES_SENDER and SES_RECIPIENT")
		}
	default:
		return fmt.Errorf("invalid report provider %q", c.Report.Provider)
	}

	switch c.Server.TLS.Mode {
	case "off", "self-signed", "":
	case "file":
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server tls mode file requires SERVER_TLS_CERT_FILE and SERVER_TLS_KEY_FILE")
		}
	default:
		return fmt.Errorf("invalid server tls mode %q", c.Server.TLS.Mode)
	}

	if c.Batch.Timezone != "" {
		if _, err := time.LoadLocation(c.Batch.Timezone); err != nil {
			return fmt.Errorf("invalid batch timezone: %w", err)
		}
	}

	return nil
}

// SESConfigured returns true if the SES region, sender and recipient are set.
func (c *Config) SESConfigured() bool {
	return c.Report.SES.Region != "" &&
		c.Report.SES.Sender != "" &&
		c.Report.SES.Recipient != ""
}

// Location returns the timezone used to render message dates.
func (c *Config) Location() *time.Location {
	if c.Batch.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Batch.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Batch.Concurrency = 10
	c.Batch.Mode = "fetch-code"
	c.Batch.Top = 50
	c.Batch.DefaultClientID = credential.DefaultClientID
	c.Token.Backend = "oauth"
	c.Token.Tenant = "common"
	c.Transport.Timeout = 30 * time.Second
	c.Transport.MaxRetries = 2
	c.Transport.BaseRetryDelay = 500 * time.Millisecond
	c.Server.Listen = ":8080"
	c.Server.TLS.Mode = "off"
	c.Report.Provider = "stdout"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Batch.Concurrency = n
		}
	}
	if v := os.Getenv("BATCH_MODE"); v != "" {
		c.Batch.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("BATCH_TYPES"); v != "" {
		c.Batch.Types = splitList(v)
	}
	if v := os.Getenv("BATCH_TOP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Batch.Top = n
		}
	}
	if v := os.Getenv("BATCH_TIMEZONE"); v != "" {
		c.Batch.Timezone = v
	}
	if v := os.Getenv("DEFAULT_CLIENT_ID"); v != "" {
		c.Batch.DefaultClientID = v
	}

	if v := os.Getenv("TOKEN_BACKEND"); v != "" {
		c.Token.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TOKEN_PROXY_URL"); v != "" {
		c.Token.ProxyURL = v
	}
	if v := os.Getenv("TOKEN_TENANT"); v != "" {
		c.Token.Tenant = v
	}
	if v := os.Getenv("TOKEN_SCOPES"); v != "" {
		c.Token.Scopes = strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
	}

	if v := os.Getenv("MAILBOX_MESSAGES_URL"); v != "" {
		c.Mailbox.MessagesURL = v
	}

	if v := os.Getenv("TRANSPORT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Transport.Timeout = d
		}
	}
	if v := os.Getenv("TRANSPORT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transport.MaxRetries = n
		}
	}

	if v := os.Getenv("SERVER_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("SERVER_TLS_MODE"); v != "" {
		c.Server.TLS.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("SERVER_TLS_CERT_FILE"); v != "" {
		c.Server.TLS.CertFile = v
	}
	if v := os.Getenv("SERVER_TLS_KEY_FILE"); v != "" {
		c.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("SERVER_TLS_HOSTS"); v != "" {
		c.Server.TLS.Hosts = splitList(v)
	}

	if v := os.Getenv("REPORT_PROVIDER"); v != "" {
		c.Report.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SES_REGION"); v != "" {
		c.Report.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.Report.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.Report.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.Report.SES.Sender = v
	}
	if v := os.Getenv("SES_RECIPIENT"); v != "" {
		c.Report.SES.Recipient = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
