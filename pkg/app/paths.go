package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/omnihear/internal/config"
)

const configFileName = "omnihear.yaml"

// ErrNoConfigFile is returned by ResolveConfigPath when no candidate exists.
var ErrNoConfigFile = errors.New("no configuration file found")

// ResolveConfigPath returns explicit when set, otherwise the first existing
// file among $OMNIHEAR_CONFIG, $XDG_CONFIG_HOME/omnihear/omnihear.yaml,
// ~/.config/omnihear/omnihear.yaml and ./omnihear.yaml.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var candidates []string
	if p, ok := os.LookupEnv("OMNIHEAR_CONFIG"); ok && p != "" {
		candidates = append(candidates, p)
	}
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "omnihear", configFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "omnihear", configFileName))
	}
	candidates = append(candidates, configFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, candidates)
}

// LoadConfig resolves and loads the configuration. Without an explicit path
// and without a file on disk it is synthesized from the environment, and the
// returned path is empty.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := ResolveConfigPath(explicit)
	if errors.Is(err, ErrNoConfigFile) {
		cfg, envErr := config.FromEnv(os.LookupEnv)
		if envErr != nil {
			return nil, "", errors.Join(err, envErr)
		}
		return cfg, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// DefaultDataDir returns $XDG_DATA_HOME/omnihear, or
// ~/.local/share/omnihear when the variable is unset.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "omnihear")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "omnihear")
}
