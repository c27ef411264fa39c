package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML file at path, expands environment variables and
// decodes it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw and expands environment variables in its values.
func Parse(raw []byte) (*Config, error) {
	return parse(raw, os.LookupEnv)
}

func parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := expandNode(&doc, lookup); err != nil {
		return nil, fmt.Errorf("expanding variables: %w", err)
	}

	var cfg Config
	if doc.Kind == 0 {
		return &cfg, nil
	}
	if err := doc.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &cfg, nil
}

// expandNode substitutes ${VAR} and ${VAR:-default} inside every scalar of
// the tree, so substituted values never change the document structure.
// Comments are not scalars and stay untouched. Every variable that is
// neither set nor defaulted is reported with its line.
func expandNode(n *yaml.Node, lookup func(string) (string, bool)) error {
	var errs []error
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode {
			value, unresolved := expand(n.Value, lookup)
			for _, name := range unresolved {
				errs = append(errs, fmt.Errorf("line %d: unresolved variable %s", n.Line, name))
			}
			if value != n.Value {
				n.Value = value
				// Plain scalars get their type from the substituted text.
				if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle|yaml.TaggedStyle) == 0 {
					n.Tag = ""
				}
			}
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return errors.Join(errs...)
}

// expand follows the shell: ${VAR:-default} uses default when VAR is unset
// or empty, ${VAR} is empty when VAR is set but empty.
func expand(s string, lookup func(string) (string, bool)) (string, []string) {
	var unresolved []string
	out := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		subs := envPattern.FindStringSubmatch(match)
		name, hasDefault := subs[1], strings.Contains(match, ":-")
		value, ok := lookup(name)
		switch {
		case ok && (value != "" || !hasDefault):
			return value
		case hasDefault:
			return subs[2]
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}
