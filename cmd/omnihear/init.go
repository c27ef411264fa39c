package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initAnswers are the choices collected by the init wizard.
type initAnswers struct {
	Path      string
	STT       []string
	Providers []string
	Lyrics    bool
	Gateway   bool
}

var (
	sttEnv      = map[string]string{"groq": "GROQ_API_KEY", "assemblyai": "ASSEMBLYAI_API_KEY"}
	providerEnv = map[string]string{"groq": "GROQ_API_KEY", "sambanova": "SAMBANOVA_API_KEY"}
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := initAnswers{
				Path:      "omnihear.yaml",
				STT:       []string{"groq"},
				Providers: []string{"sambanova"},
			}
			if err := initForm(&a).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			if err := writeConfig(a, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Export the referenced API keys, then run: omnihear start -c %s\n", a.Path, a.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Speech-to-text backends").
				Description("Tried in this order; the next one takes over when a backend fails.").
				Options(
					huh.NewOption("Groq Whisper", "groq"),
					huh.NewOption("AssemblyAI", "assemblyai"),
				).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return errors.New("pick at least one backend")
					}
					return nil
				}).
				Value(&a.STT),
			huh.NewMultiSelect[string]().
				Title("Language model providers").
				Description("Needed for summaries, translations and notes.").
				Options(
					huh.NewOption("SambaNova", "sambanova"),
					huh.NewOption("Groq", "groq"),
				).
				Value(&a.Providers),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable Genius song search?").Value(&a.Lyrics),
			huh.NewConfirm().Title("Enable the HTTP gateway (health, metrics, webhooks)?").Value(&a.Gateway),
			huh.NewInput().
				Title("Config file path").
				Value(&a.Path).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("path is required")
					}
					return nil
				}),
		),
	)
}

func writeConfig(a initAnswers, force bool) error {
	if !force {
		if _, err := os.Stat(a.Path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", a.Path)
		}
	}
	data, err := renderConfig(a)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(a.Path, data, 0o600)
}

// renderConfig builds the YAML document. Secrets stay in the environment:
// the file only references variables.
func renderConfig(a initAnswers) ([]byte, error) {
	modules := map[string]any{
		"channel.telegram": map[string]any{
			"token":     "${TELEGRAM_BOT_TOKEN}",
			"allow_all": true,
		},
	}
	for _, name := range a.STT {
		modules["stt."+name] = map[string]any{"api_key_env": sttEnv[name]}
	}
	for _, name := range a.Providers {
		modules["provider."+name] = map[string]any{"api_key_env": providerEnv[name]}
	}
	if a.Lyrics {
		modules["lyrics.genius"] = map[string]any{"api_key_env": "GENIUS_API_KEY"}
	}
	if a.Gateway {
		modules["gateway.http"] = map[string]any{"bind": "127.0.0.1:8080"}
	}

	doc := map[string]any{
		"version": "1",
		"modules": modules,
		"bot":     map[string]any{"transcribers": a.STT},
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return append([]byte("# Generated by omnihear init.\n"), body...), nil
}
