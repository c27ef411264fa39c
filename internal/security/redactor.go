package security

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config and log keys whose values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|pass(word)?|api_?key|credential|authorization)`)

// IsSecretKey reports whether a config or log attribute key names a secret.
// Keys ending in "_env" hold a variable name, not its value.
func IsSecretKey(key string) bool {
	return !strings.HasSuffix(strings.ToLower(key), "_env") && secretKeyPattern.MatchString(key)
}

// Redactor masks upstream credentials in strings. Known key formats are
// matched by pattern; keys loaded at runtime are matched literally. Safe for
// concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
	replacer *strings.Replacer
}

// NewRedactor creates a Redactor with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a value to mask wherever it appears. Empty strings are
// ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLiterals(append(r.literals, secret))
}

// SyncCredentials replaces the literal set with the values of store.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLiterals(values)
}

// setLiterals rebuilds the replacer. Longer values go first so a key that
// extends another is masked whole.
func (r *Redactor) setLiterals(values []string) {
	slices.SortStableFunc(values, func(a, b string) int { return len(b) - len(a) })
	r.literals = values
	if len(values) == 0 {
		r.replacer = nil
		return
	}
	pairs := make([]string, 0, 2*len(values))
	for _, v := range values {
		pairs = append(pairs, v, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact masks every known secret in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, replacer := r.patterns, r.replacer
	r.mu.RUnlock()

	// Literals first: a runtime key may be longer than a pattern match.
	if replacer != nil {
		s = replacer.Replace(s)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap masks, in place, non-empty string values under secret keys and
// known secrets anywhere else. Nested maps and lists are walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// DefaultPatterns returns patterns for the upstream credential formats
// omnihear handles.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Telegram bot token, also embedded in file download URLs.
		regexp.MustCompile(`[0-9]{6,12}:[A-Za-z0-9_-]{30,}`),
		// Groq: gsk_...
		regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`),
		// OpenAI-style keys: sk-...
		regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		// Authorization headers echoed in error bodies.
		regexp.MustCompile(`(?i)bearer [A-Za-z0-9._~+/-]{16,}=*`),
	}
}
