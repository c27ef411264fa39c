package config

import (
	"cmp"
	"slices"
	"strings"
)

// Resolve returns the configured module IDs in a deterministic load order:
// sorted by ID, with channel modules last so that the services they feed are
// provisioned before them.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(isChannel(a), isChannel(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func isChannel(id string) int {
	if strings.HasPrefix(id, "channel.") {
		return 1
	}
	return 0
}
