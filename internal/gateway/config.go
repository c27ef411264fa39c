package gateway

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/security"
)

// Config is the gateway.http module section.
type Config struct {
	Bind        string                   `yaml:"bind"`
	MetricsPath string                   `yaml:"metrics_path"`
	Auth        AuthConfig               `yaml:"auth"`
	Webhooks    map[string]WebhookSource `yaml:"webhooks"`

	// Inbound webhook bodies. Zero values take the security package
	// defaults.
	MaxBodyBytes int `yaml:"max_body_bytes"`
	MaxJSONDepth int `yaml:"max_json_depth"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) defaults() {
	c.Bind = cmp.Or(c.Bind, "127.0.0.1:8080")
	c.MetricsPath = cmp.Or(c.MetricsPath, "/metrics")
	c.ReadTimeout = cmp.Or(c.ReadTimeout, 10*time.Second)
	c.WriteTimeout = cmp.Or(c.WriteTimeout, 30*time.Second)
	c.ShutdownTimeout = cmp.Or(c.ShutdownTimeout, 5*time.Second)
}

func (c *Config) payloadLimits() security.PayloadLimits {
	return security.PayloadLimits{MaxSize: c.MaxBodyBytes, MaxDepth: c.MaxJSONDepth}
}

func (c *Config) validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: bind %q: %w", c.Bind, err))
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("gateway: metrics_path %q must start with /", c.MetricsPath))
	}
	if c.MaxBodyBytes < 0 || c.MaxJSONDepth < 0 {
		errs = append(errs, errors.New("gateway: max_body_bytes and max_json_depth must not be negative"))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: auth.basic_user and auth.basic_pass go together"))
	}
	for source := range c.Webhooks {
		if source == "" || strings.ContainsAny(source, "/?#") {
			errs = append(errs, fmt.Errorf("gateway: webhook source %q is not a path segment", source))
		}
	}
	return errors.Join(errs...)
}

// AuthConfig protects the admin endpoints. Either method may be used;
// with neither the endpoints are open.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

func (a AuthConfig) enabled() bool {
	return a.BearerToken != "" || a.BasicUser != ""
}

// WebhookSource configures one /webhooks/{source} endpoint. Secret turns
// on X-Signature-256 checks for sources whose handler does not
// authenticate requests itself.
type WebhookSource struct {
	Secret string `yaml:"secret"`
}
