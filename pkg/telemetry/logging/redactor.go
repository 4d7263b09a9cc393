package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Pattern is a user supplied redaction rule.
type Pattern struct {
	// Name identifies the pattern in configuration
	Name string

	// Expr is the regular expression to match
	Expr string

	// Replacement is the replacement text, which may reference groups
	Replacement string
}

// Redactor masks credentials in log fields.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBasicAuth   = "basic_auth"
	PatternBearerToken = "bearer_token"
	PatternURLUserInfo = "url_userinfo"
	PatternPassword    = "password"
)

// Masked replaces values of sensitive keys.
const Masked = "****"

var defaultPatterns = []Pattern{
	{Name: PatternBasicAuth, Expr: `(?i)\b(Basic)\s+[A-Za-z0-9+/]+=*`, Replacement: "$1 " + Masked},
	{Name: PatternBearerToken, Expr: `(?i)\b(Bearer)\s+[A-Za-z0-9\-._~+/]+=*`, Replacement: "$1 " + Masked},
	{Name: PatternURLUserInfo, Expr: `(://[^:/@\s]+):[^@/\s]+@`, Replacement: "$1:" + Masked + "@"},
	{Name: PatternPassword, Expr: `(?i)\b(password|passwd|pwd)(\s*[:=]\s*)[^\s,&;]+`, Replacement: "$1$2" + Masked},
}

var sensitiveKeys = []string{
	"password", "passwd", "secret", "token",
	"authorization", "proxy-authorization", "proxy_authorization",
	"cookie", "private_key",
}

// NewRedactor creates a Redactor with the built-in patterns followed by custom.
// Custom patterns that fail to compile are skipped and returned as invalid.
func NewRedactor(custom ...Pattern) (*Redactor, []string) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regexp.MustCompile(p.Expr),
			replacement: p.Replacement,
		})
	}

	var invalid []string
	for _, p := range custom {
		regex, err := regexp.Compile(p.Expr)
		if err != nil {
			invalid = append(invalid, p.Name)
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r, invalid
}

// RedactString masks credentials embedded in a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactArgs redacts key/value pairs in the form key1, value1, key2, value2.
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		if key, ok := redacted[i-1].(string); ok && IsSensitiveKey(key) {
			redacted[i] = Masked
			continue
		}
		if s, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(s)
		}
	}
	return redacted
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.MessageKey || a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.SourceKey {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Masked)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// IsSensitiveKey reports whether a field name always carries a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
