package config

import (
	"errors"
	"fmt"
	"strings"
)

// envModule ties an environment variable to the module sections it enables.
type envModule struct {
	key      string
	sections []string
}

var envModules = []envModule{
	{key: "GROQ_API_KEY", sections: []string{
		"stt.groq:\n    api_key: ${GROQ_API_KEY}",
		"provider.groq:\n    api_key: ${GROQ_API_KEY}",
	}},
	{key: "ASSEMBLYAI_API_KEY", sections: []string{
		"stt.assemblyai:\n    api_key: ${ASSEMBLYAI_API_KEY}",
	}},
	{key: "SAMBANOVA_API_KEY", sections: []string{
		"provider.sambanova:\n    api_key: ${SAMBANOVA_API_KEY}",
	}},
	{key: "GENIUS_API_KEY", sections: []string{
		"lyrics.genius:\n    api_key: ${GENIUS_API_KEY}",
	}},
}

// FromEnv synthesizes a configuration from the well-known credential
// variables, for deployments that ship no config file. TELEGRAM_BOT_TOKEN is
// required; each other key enables the modules that use it.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	if v, ok := lookup("TELEGRAM_BOT_TOKEN"); !ok || v == "" {
		return nil, errors.New("config: TELEGRAM_BOT_TOKEN is not set")
	}

	var b strings.Builder
	b.WriteString("version: \"1\"\nmodules:\n")
	b.WriteString("  channel.telegram:\n")
	b.WriteString("    token: ${TELEGRAM_BOT_TOKEN}\n")
	b.WriteString("    proxy_url: ${PROXY_URL:-}\n")
	b.WriteString("    allow_all: true\n")

	for _, m := range envModules {
		if v, ok := lookup(m.key); !ok || v == "" {
			continue
		}
		for _, s := range m.sections {
			b.WriteString("  " + s + "\n")
		}
	}

	cfg, err := parse([]byte(b.String()), lookup)
	if err != nil {
		return nil, fmt.Errorf("config: environment config: %w", err)
	}
	return cfg, nil
}
