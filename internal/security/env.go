package security

import (
	"os"
	"slices"
	"strings"
)

// childEnvKeep names the variables a child process (ffmpeg) inherits.
// Everything else, upstream API keys included, is dropped.
var childEnvKeep = []string{"PATH", "HOME", "TMPDIR", "TZ", "LANG", "LANGUAGE", "FONTCONFIG_PATH"}

// minMaskLen keeps short credential values ("1", "true") from masking
// unrelated variables.
const minMaskLen = 8

// ChildEnv returns the environment for child processes: the variables in
// childEnvKeep plus LC_*, with any credential from store masked.
func ChildEnv(store *CredentialStore) []string {
	var secrets []string
	if store != nil {
		secrets = store.Values()
	}
	return filterEnv(os.Environ(), secrets)
}

func filterEnv(environ, secrets []string) []string {
	out := make([]string, 0, len(childEnvKeep))
	for _, entry := range environ {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || !(slices.Contains(childEnvKeep, key) || strings.HasPrefix(key, "LC_")) {
			continue
		}
		for _, s := range secrets {
			if len(s) >= minMaskLen {
				entry = strings.ReplaceAll(entry, s, RedactPlaceholder)
			}
		}
		out = append(out, entry)
	}
	return out
}
