// Package config loads the omnihear YAML configuration, expands environment
// variables and checks its structure.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs ("channel.telegram", "stt.groq", ...) to their
	// raw YAML configuration.
	Modules map[string]yaml.Node `yaml:"modules"`

	// Bot holds the pipeline settings (modes, languages, limits, messages).
	// It is decoded by the bot package.
	Bot yaml.Node `yaml:"bot,omitempty"`

	// Telemetry configures trace export. Tracing is off when empty.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	// OTLPEndpoint is the host:port of an OTLP/HTTP collector.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
	// SampleRatio in [0,1]. Zero means the default of 1.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// Enabled reports whether traces should be exported.
func (t TelemetryConfig) Enabled() bool { return t.OTLPEndpoint != "" }

// BotSection is the module config key under which the bot section is
// handed to the bot module.
const BotSection = "bot"

// ModuleConfigs returns the module sections plus the bot section keyed by
// BotSection, ready for core.AppContext.WithModuleConfigs.
func (c *Config) ModuleConfigs() map[string]yaml.Node {
	out := make(map[string]yaml.Node, len(c.Modules)+1)
	for id, node := range c.Modules {
		out[id] = node
	}
	out[BotSection] = c.Bot
	return out
}
