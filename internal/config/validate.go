package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/omnihear/internal/core"
)

// requiredNamespaces must each have at least one configured module: a bot
// with no channel receives nothing and one without speech-to-text has
// nothing to do.
var requiredNamespaces = []string{"channel", "stt"}

// Validate checks the structure of cfg: version, known module IDs, and the
// presence of the module namespaces every deployment needs.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Version {
	case "":
		errs = append(errs, errors.New("config: version field is required"))
	case "1":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	present := make(map[string]bool)
	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		present[core.ModuleID(id).Namespace()] = true
	}

	if len(cfg.Modules) > 0 {
		for _, ns := range requiredNamespaces {
			if !present[ns] {
				errs = append(errs, fmt.Errorf("config: no %s module configured", ns))
			}
		}
	}

	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0,1], got %v", r))
	}

	return errors.Join(errs...)
}

// ModulesIn returns the configured module IDs under namespace, sorted.
func ModulesIn(cfg *Config, namespace string) []string {
	var out []string
	for id := range cfg.Modules {
		if core.ModuleID(id).Namespace() == namespace {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
