package bot

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/cron"
	"github.com/flemzord/omnihear/internal/media"
	"github.com/flemzord/omnihear/internal/security"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Config.defaults.
const (
	DefaultMaxFileSize  = 20 << 20
	DefaultPendingTTL   = 30 * time.Minute
	defaultPrefTTL      = 30 * 24 * time.Hour
	defaultWorkers      = 4
	defaultInboxSize    = 64
	defaultJobTimeout   = 10 * time.Minute
	defaultMaxTokens    = 8192
	defaultLyricsWords  = 12
	defaultLaneMaxIdle  = 30 * time.Minute
	defaultCleanupCron  = "*/5 * * * *"
	defaultMenuColumns  = 2
	defaultLanguageCode = "en"
)

// Language is one selectable output language.
type Language struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Label is the keyboard text. Defaults to Name.
	Label string `yaml:"label"`
}

// Config is the `bot:` section of the config file.
type Config struct {
	Modes []ModeConfig `yaml:"modes"`
	// DefaultMode processes media right away for users without a /mode
	// choice. Empty shows the menu.
	DefaultMode string `yaml:"default_mode"`
	MenuColumns int    `yaml:"menu_columns"`

	Languages       []Language `yaml:"languages"`
	DefaultLanguage string     `yaml:"default_language"`
	// LanguageHint passes the chosen language to the transcriber instead of
	// letting it detect the spoken language.
	LanguageHint bool `yaml:"language_hint"`

	// Transcribers orders the speech-to-text chain by backend name.
	Transcribers []string `yaml:"transcribers"`

	MaxFileSize   int64         `yaml:"max_file_size"`
	PendingTTL    time.Duration `yaml:"pending_ttl"`
	PreferenceTTL time.Duration `yaml:"preference_ttl"`
	LaneMaxIdle   time.Duration `yaml:"lane_max_idle"`
	CleanupCron   string        `yaml:"cleanup_schedule"`

	Workers    int           `yaml:"workers"`
	InboxSize  int           `yaml:"inbox_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`

	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`

	LyricsSearchWords int `yaml:"lyrics_search_words"`

	Convert   media.Config             `yaml:"convert"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
	Messages  Messages                 `yaml:"messages"`
}

// DecodeConfig decodes node (which may be empty) and applies defaults.
func DecodeConfig(node *yaml.Node) (Config, error) {
	var cfg Config
	if node != nil && node.Kind != 0 {
		if err := node.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("bot: decode config: %w", err)
		}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) defaults() {
	if len(c.Modes) == 0 {
		c.Modes = defaultModes()
	}
	if c.MenuColumns <= 0 {
		c.MenuColumns = defaultMenuColumns
	}
	if len(c.Languages) == 0 {
		c.Languages = []Language{
			{Code: "en", Name: "English", Label: "🇬🇧 English"},
			{Code: "fa", Name: "Persian", Label: "🇮🇷 فارسی"},
			{Code: "fr", Name: "French", Label: "🇫🇷 Français"},
			{Code: "de", Name: "German", Label: "🇩🇪 Deutsch"},
			{Code: "es", Name: "Spanish", Label: "🇪🇸 Español"},
			{Code: "ar", Name: "Arabic", Label: "🇸🇦 العربية"},
		}
	}
	for i := range c.Languages {
		if c.Languages[i].Name == "" {
			c.Languages[i].Name = c.Languages[i].Code
		}
		if c.Languages[i].Label == "" {
			c.Languages[i].Label = c.Languages[i].Name
		}
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaultLanguageCode
	}
	if len(c.Transcribers) == 0 {
		c.Transcribers = []string{"groq", "assemblyai"}
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = DefaultPendingTTL
	}
	if c.PreferenceTTL <= 0 {
		c.PreferenceTTL = defaultPrefTTL
	}
	if c.LaneMaxIdle <= 0 {
		c.LaneMaxIdle = defaultLaneMaxIdle
	}
	if c.CleanupCron == "" {
		c.CleanupCron = defaultCleanupCron
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.LyricsSearchWords <= 0 {
		c.LyricsSearchWords = defaultLyricsWords
	}
	c.Messages = c.Messages.withDefaults()
}

func (c *Config) validate() error {
	var errs []error

	names := make(map[string]bool, len(c.Modes))
	for _, m := range c.Modes {
		key := strings.ToLower(m.Name)
		if names[key] {
			errs = append(errs, fmt.Errorf("bot: duplicate mode %q", m.Name))
		}
		names[key] = true
		if _, err := compileMode(m); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DefaultMode != "" && !names[strings.ToLower(c.DefaultMode)] {
		errs = append(errs, fmt.Errorf("bot: default_mode %q is not a configured mode", c.DefaultMode))
	}

	codes := make([]string, 0, len(c.Languages))
	for _, l := range c.Languages {
		if l.Code == "" {
			errs = append(errs, errors.New("bot: language without a code"))
			continue
		}
		code := strings.ToLower(l.Code)
		if slices.Contains(codes, code) {
			errs = append(errs, fmt.Errorf("bot: duplicate language %q", l.Code))
		}
		codes = append(codes, code)
	}
	if !slices.Contains(codes, strings.ToLower(c.DefaultLanguage)) {
		errs = append(errs, fmt.Errorf("bot: default_language %q is not in languages", c.DefaultLanguage))
	}

	if err := cron.ValidateSchedule(c.CleanupCron); err != nil {
		errs = append(errs, fmt.Errorf("bot: cleanup_schedule: %w", err))
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, errors.New("bot: temperature must be within [0, 2]"))
	}
	return errors.Join(errs...)
}
