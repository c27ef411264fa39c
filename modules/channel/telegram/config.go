package telegram

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// tokenPattern is the shape of a bot token: <bot id>:<secret>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// maxTelegramText is the Bot API limit for one text message.
const maxTelegramText = 4096

// Update delivery modes.
const (
	modePolling = "polling"
	modeWebhook = "webhook"
)

// Config is the channel.telegram module section.
type Config struct {
	Token string `yaml:"token"`

	// Mode is "polling" (default) or "webhook". Webhook mode needs the
	// gateway.http module and a public WebhookURL routed to
	// /webhooks/telegram.
	Mode           string   `yaml:"mode"`
	PollingTimeout int      `yaml:"polling_timeout"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookSecret  string   `yaml:"webhook_secret"`
	AllowedUpdates []string `yaml:"allowed_updates"`

	AllowAll    bool     `yaml:"allow_all"`
	AllowUsers  []string `yaml:"allow_users"`
	AllowGroups []string `yaml:"allow_groups"`

	// MaxMessageLength is where long replies are split.
	MaxMessageLength int           `yaml:"max_message_length"`
	APIURL           string        `yaml:"api_url"`
	ProxyURL         string        `yaml:"proxy_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

func (c *Config) defaults() {
	c.Mode = cmp.Or(c.Mode, modePolling)
	c.PollingTimeout = cmp.Or(c.PollingTimeout, 30)
	c.MaxMessageLength = cmp.Or(c.MaxMessageLength, 4000)
	c.APIURL = cmp.Or(c.APIURL, "https://api.telegram.org")
	c.RequestTimeout = cmp.Or(c.RequestTimeout, 60*time.Second)
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message", "edited_message", "callback_query"}
	}
}

// validate runs after defaults and reports every problem at once.
func (c *Config) validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("telegram: "+format, args...))
	}

	switch {
	case c.Token == "":
		add("token is required")
	case !tokenPattern.MatchString(c.Token):
		add("token format invalid (expected <bot_id>:<secret>)")
	}

	switch c.Mode {
	case modePolling:
		if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
			add("polling_timeout must be 0-50, got %d", c.PollingTimeout)
		}
		if time.Duration(c.PollingTimeout)*time.Second >= c.RequestTimeout {
			add("request_timeout (%s) must exceed polling_timeout (%ds)", c.RequestTimeout, c.PollingTimeout)
		}
	case modeWebhook:
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			add("webhook_url must be an https URL in webhook mode, got %q", c.WebhookURL)
		}
	default:
		add("mode %q is neither %q nor %q", c.Mode, modePolling, modeWebhook)
	}

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		add("api_url must be an http or https URL, got %q", c.APIURL)
	}
	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		switch {
		case err != nil || u.Host == "":
			add("proxy_url %q is not a URL", c.ProxyURL)
		case u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" && u.Scheme != "socks5h":
			add("proxy_url scheme %q not supported", u.Scheme)
		}
	}
	if c.MaxMessageLength < 1 || c.MaxMessageLength > maxTelegramText {
		add("max_message_length must be 1-%d, got %d", maxTelegramText, c.MaxMessageLength)
	}
	return errors.Join(errs...)
}
