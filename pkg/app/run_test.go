package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// chdirTemp moves into an empty directory so ./omnihear.yaml never matches.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.yaml")
	xdgPath := filepath.Join(dir, "omnihear", "omnihear.yaml")
	writeConfig(t, envPath)
	writeConfig(t, xdgPath)
	chdirTemp(t)

	tests := []struct {
		name     string
		explicit string
		env      string
		want     string
	}{
		{"explicit wins", "/etc/omnihear.yaml", envPath, "/etc/omnihear.yaml"},
		{"OMNIHEAR_CONFIG", "", envPath, envPath},
		{"xdg", "", "", xdgPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OMNIHEAR_CONFIG", tt.env)
			t.Setenv("XDG_CONFIG_HOME", dir)

			got, err := ResolveConfigPath(tt.explicit)
			if err != nil {
				t.Fatalf("ResolveConfigPath: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("OMNIHEAR_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	chdirTemp(t)

	_, err := ResolveConfigPath("")
	if !errors.Is(err, ErrNoConfigFile) {
		t.Errorf("err = %v, want ErrNoConfigFile", err)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("OMNIHEAR_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:abcdefghijklmnopqrstuvwxyz0123456789")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	chdirTemp(t)

	cfg, path, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	for _, id := range []string{"channel.telegram", "stt.groq", "provider.groq"} {
		if _, ok := cfg.Modules[id]; !ok {
			t.Errorf("module %s missing", id)
		}
	}
}

func TestLoadConfig_NothingAvailable(t *testing.T) {
	t.Setenv("OMNIHEAR_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	chdirTemp(t)

	if _, _, err := LoadConfig(""); !errors.Is(err, ErrNoConfigFile) {
		t.Errorf("err = %v, want ErrNoConfigFile", err)
	}
}

func TestLoadConfig_ExplicitMissing(t *testing.T) {
	t.Parallel()

	if _, _, err := LoadConfig("/nonexistent/omnihear.yaml"); err == nil {
		t.Error("expected error for a missing explicit path")
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DefaultDataDir(), "/custom/data/omnihear"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "omnihear"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	chdirTemp(t)
	if err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for invalid config path")
	}
}
