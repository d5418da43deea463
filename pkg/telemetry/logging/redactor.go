package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/junki-kanda/AutGuardRails/pkg/config"
)

// Redactor scrubs credentials and other secret material from log fields.
type Redactor struct {
	patterns map[string]*redactPattern
	enabled  bool
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Common credential pattern names.
const (
	PatternApprovalSignature = "approval_signature"
	PatternSlackWebhook      = "slack_webhook"
	PatternGitToken          = "git_token"
	PatternAWSAccessKey      = "aws_access_key"
	PatternBearerToken       = "bearer_token"
	PatternPassword          = "password"
)

// NewRedactor creates a new Redactor with default and custom patterns.
func NewRedactor(customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{
		patterns: make(map[string]*redactPattern),
		enabled:  true,
	}

	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			// Skip invalid patterns
			continue
		}
		r.patterns[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	return r
}

// addDefaultPatterns adds built-in credential redaction patterns.
func (r *Redactor) addDefaultPatterns() {
	patterns := map[string]struct {
		regex       string
		replacement string
	}{
		// Approval link signatures (hex HMAC in query strings)
		PatternApprovalSignature: {
			regex:       `(sig|signature)=[0-9a-fA-F]{16,}`,
			replacement: "$1=***",
		},

		// Slack incoming webhook URLs
		PatternSlackWebhook: {
			regex:       `https://hooks\.slack\.com/services/[A-Za-z0-9/]+`,
			replacement: "https://hooks.slack.com/services/***",
		},

		// GitHub and GitLab personal access tokens
		PatternGitToken: {
			regex:       `\b(ghp_[A-Za-z0-9]{4,}|github_pat_[A-Za-z0-9_]{4,}|glpat-[A-Za-z0-9\-]{4,})\b`,
			replacement: "***",
		},

		// AWS access key IDs
		PatternAWSAccessKey: {
			regex:       `\b(AKIA|ASIA)[0-9A-Z]{16}\b`,
			replacement: "$1***",
		},

		// Bearer tokens
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},

		// Generic password fields
		PatternPassword: {
			regex:       `(password|passwd|pwd)[:=]\s*[^\s]+`,
			replacement: "$1: ***",
		},
	}

	for name, p := range patterns {
		regex := regexp.MustCompile(p.regex)
		r.patterns[name] = &redactPattern{
			name:        name,
			regex:       regex,
			replacement: p.replacement,
		}
	}
}

// RedactString redacts credentials from a string value.
func (r *Redactor) RedactString(value string) string {
	if !r.enabled || value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}

	return redacted
}

// RedactArgs redacts credentials from variadic log arguments.
// Args are in the form: key1, value1, key2, value2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if !r.enabled || len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	// Process key-value pairs
	for i := 1; i < len(redacted); i += 2 {
		// Check if this is a sensitive field by key name
		key, ok := redacted[i-1].(string)
		if ok && r.isSensitiveKey(key) {
			redacted[i] = r.redactValue(redacted[i])
		}

		// Also redact string values that match patterns
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

// isSensitiveKey checks if a key name indicates secret material.
func (r *Redactor) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "pwd", "passphrase",
		"secret", "token",
		"signature",
		"webhook",
		"auth", "authorization",
		"credential",
		"private_key", "privatekey",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}

	return false
}

// redactValue redacts a sensitive value completely.
func (r *Redactor) redactValue(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" {
			return ""
		}
		// Keep a short prefix for correlation during debugging
		if len(v) <= 4 {
			return "***"
		}
		return v[:4] + "***"
	case fmt.Stringer:
		return "***"
	default:
		return "***"
	}
}

// RedactSignature redacts an HMAC signature, keeping only a short prefix.
func RedactSignature(sig string) string {
	if len(sig) <= 8 {
		return "***"
	}
	return sig[:8] + "***"
}

// RedactToken redacts a token, keeping only a prefix for identification.
func RedactToken(token string) string {
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "***"
}

// RedactWebhookURL redacts a webhook URL, keeping only the scheme and host.
func RedactWebhookURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd < 0 {
		return "***"
	}

	pathStart := strings.Index(url[schemeEnd+3:], "/")
	if pathStart < 0 {
		return url
	}

	return url[:schemeEnd+3+pathStart] + "/***"
}
