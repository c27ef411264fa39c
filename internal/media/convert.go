// Package media re-encodes audio containers that transcription providers
// refuse, using an external ffmpeg binary.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/omnihear/internal/security"
	"github.com/flemzord/omnihear/internal/transcribe"
)

// TargetMIME is the MIME type every converted file ends up in.
const TargetMIME = "audio/mpeg"

// Config controls the converter. It is decoded from the `bot.convert`
// section of the config file.
type Config struct {
	Enabled *bool         `yaml:"enabled"`
	Binary  string        `yaml:"binary"`
	Convert []string      `yaml:"convert"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if len(c.Convert) == 0 {
		c.Convert = []string{"audio/ogg", "audio/opus", "audio/amr", "audio/x-m4a"}
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
}

// Converter shells out to ffmpeg. The zero value is not usable; build one
// with NewConverter.
type Converter struct {
	config Config
	logger *slog.Logger
	env    []string
}

// NewConverter applies defaults to cfg. The child process gets a sanitized
// environment so provider keys never reach it.
func NewConverter(cfg Config, creds *security.CredentialStore, logger *slog.Logger) *Converter {
	cfg.defaults()
	return &Converter{
		config: cfg,
		logger: logger,
		env:    security.ChildEnv(creds),
	}
}

// Enabled reports whether conversion runs at all.
func (c *Converter) Enabled() bool { return *c.config.Enabled }

// Needed reports whether audio of the given MIME type is in the convert list.
func (c *Converter) Needed(mime string) bool {
	if !c.Enabled() {
		return false
	}
	return slices.Contains(c.config.Convert, baseMIME(mime))
}

// Convert re-encodes data to mono 16 kHz MP3 when fromMIME is in the convert
// list. Anything else is returned untouched.
func (c *Converter) Convert(ctx context.Context, data []byte, fromMIME string) ([]byte, string, error) {
	if !c.Needed(fromMIME) {
		return data, fromMIME, nil
	}
	if _, err := exec.LookPath(c.config.Binary); err != nil {
		return nil, "", fmt.Errorf("%w: %s not available", transcribe.ErrUnsupportedAudio, c.config.Binary)
	}

	// Input goes through a file: m4a keeps its index at the end and cannot
	// be read from a pipe.
	in, err := os.CreateTemp("", "omnihear-*"+ExtensionFor(fromMIME))
	if err != nil {
		return nil, "", fmt.Errorf("media: temp file: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, "", fmt.Errorf("media: write temp file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, "", fmt.Errorf("media: close temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.config.Binary,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", in.Name(),
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "mp3", "pipe:1",
	)
	cmd.Env = c.env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, "", ctxErr
		}
		c.logger.Warn("audio conversion failed",
			"from", fromMIME,
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()),
		)
		return nil, "", fmt.Errorf("%w: %s: %v", transcribe.ErrUnsupportedAudio, fromMIME, err)
	}
	if stdout.Len() == 0 {
		return nil, "", fmt.Errorf("%w: %s produced no output", transcribe.ErrUnsupportedAudio, fromMIME)
	}

	c.logger.Debug("audio converted",
		"from", fromMIME,
		"in_bytes", len(data),
		"out_bytes", stdout.Len(),
		"duration", time.Since(start),
	)
	return stdout.Bytes(), TargetMIME, nil
}

var extensions = map[string]string{
	"audio/ogg":    ".ogg",
	"audio/opus":   ".opus",
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/m4a":    ".m4a",
	"audio/aac":    ".aac",
	"audio/amr":    ".amr",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/webm":   ".webm",
	"video/mp4":    ".mp4",
	"video/webm":   ".webm",
}

// ExtensionFor returns the file extension, dot included, that providers
// expect for the MIME type. Unknown types map to ".bin".
func ExtensionFor(mime string) string {
	if ext, ok := extensions[baseMIME(mime)]; ok {
		return ext
	}
	return ".bin"
}

// IsAudio reports whether mime looks like something a transcriber can take.
func IsAudio(mime string) bool {
	m := baseMIME(mime)
	if strings.HasPrefix(m, "audio/") {
		return true
	}
	_, ok := extensions[m]
	return ok
}

func baseMIME(mime string) string {
	m, _, _ := strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(m))
}
