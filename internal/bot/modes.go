package bot

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/flemzord/omnihear/internal/provider"
)

// ModeConfig describes one processing mode as written in the config file.
type ModeConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`

	// System and Prompt are text/template sources rendered with PromptData.
	// A mode without Prompt replies with the transcript only.
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`

	// NeedsLLM marks modes that make no sense without a language model.
	// They are hidden when no provider serves Role.
	NeedsLLM bool          `yaml:"needs_llm"`
	Role     provider.Role `yaml:"role"`

	// Lyrics searches the transcript on the lyrics service.
	Lyrics bool `yaml:"lyrics"`

	// Language forces the output language regardless of the user choice.
	Language string `yaml:"language"`
}

// PromptData is the data available to mode templates.
type PromptData struct {
	Language     string
	LanguageName string
	Transcript   string
	// Song is "Artist - Title" of the best lyrics match, if any.
	Song string
}

// Mode is a compiled ModeConfig.
type Mode struct {
	ModeConfig
	system *template.Template
	prompt *template.Template
}

// HasPrompt reports whether the mode sends anything to a language model.
func (m *Mode) HasPrompt() bool { return m.prompt != nil }

// Render builds the chat messages for data.
func (m *Mode) Render(data PromptData) ([]provider.LLMMessage, error) {
	if m.prompt == nil {
		return nil, nil
	}
	var msgs []provider.LLMMessage
	if m.system != nil {
		var sb strings.Builder
		if err := m.system.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("bot: render %s system prompt: %w", m.Name, err)
		}
		msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: sb.String()})
	}
	var sb strings.Builder
	if err := m.prompt.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("bot: render %s prompt: %w", m.Name, err)
	}
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: sb.String()})
	return msgs, nil
}

func compileMode(cfg ModeConfig) (*Mode, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("bot: mode without a name")
	}
	if strings.ContainsAny(cfg.Name, ": ") {
		return nil, fmt.Errorf("bot: mode name %q must not contain spaces or colons", cfg.Name)
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	if cfg.Role == "" {
		cfg.Role = provider.RolePrimary
	}
	if cfg.NeedsLLM && cfg.Prompt == "" {
		return nil, fmt.Errorf("bot: mode %q needs_llm but has no prompt", cfg.Name)
	}

	m := &Mode{ModeConfig: cfg}
	var err error
	if cfg.System != "" {
		if m.system, err = template.New(cfg.Name + ".system").Option("missingkey=error").Parse(cfg.System); err != nil {
			return nil, fmt.Errorf("bot: mode %q system prompt: %w", cfg.Name, err)
		}
	}
	if cfg.Prompt != "" {
		if m.prompt, err = template.New(cfg.Name).Option("missingkey=error").Parse(cfg.Prompt); err != nil {
			return nil, fmt.Errorf("bot: mode %q prompt: %w", cfg.Name, err)
		}
	}
	return m, nil
}

func defaultModes() []ModeConfig {
	return []ModeConfig{
		{
			Name:  "transcript",
			Label: "🎙 Transcript",
		},
		{
			Name:     "summary",
			Label:    "📝 Summary",
			NeedsLLM: true,
			System:   "You summarize transcribed audio for busy readers.",
			Prompt: `Summarize the following transcript into clear, concise bullet points in {{.LanguageName}}.
Use • for bullet points and focus on the most important information.
Answer in {{.LanguageName}} only.

Transcript:
{{.Transcript}}`,
		},
		{
			Name:     "translate",
			Label:    "🌐 Translation",
			NeedsLLM: true,
			System:   "You are a professional translator.",
			Prompt: `Translate the following transcript into {{.LanguageName}}.
Keep the meaning, tone and paragraph breaks. Output only the translation.

{{.Transcript}}`,
		},
		{
			Name:     "lecture",
			Label:    "📚 Lecture notes",
			NeedsLLM: true,
			System:   "You are a university professor writing course material.",
			Prompt: `Read this lecture transcript carefully. Do NOT summarize.
Write a comprehensive textbook chapter in {{.LanguageName}}.
Cover every single detail, example and nuance mentioned, and use bold headers to organize sections.
The goal is to replace the need to listen to the recording entirely.

Transcript:
{{.Transcript}}`,
		},
		{
			Name:     "soap",
			Label:    "🩺 SOAP note",
			NeedsLLM: true,
			Language: "en",
			System:   "You are a chief resident at a teaching hospital.",
			Prompt: `This is a transcribed medical dictation. Write a professional SOAP note in English.
Format:
**Subjective:** chief complaint, HPI, ROS, PMH, medications, allergies
**Objective:** vitals, physical exam findings, lab results, imaging
**Assessment:** diagnoses, with ICD codes if possible
**Plan:** treatment plan, medications, follow-up
Correct all medical terminology. Output must be in English only.

Dictation:
{{.Transcript}}`,
		},
		{
			Name:   "lyrics",
			Label:  "🎵 Lyrics",
			Lyrics: true,
			Prompt: `The following is a raw transcription of a song{{if .Song}} that looks like "{{.Song}}"{{end}}.
Format it as lyrics in its original language, with proper line breaks between lines and verses.
Fix obvious recognition mistakes but do not translate. Output only the lyrics.

{{.Transcript}}`,
		},
	}
}
