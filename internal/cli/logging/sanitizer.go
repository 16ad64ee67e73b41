package logging

import (
	"regexp"
	"strings"
)

const redactionPlaceholder = "***"

var allowlistedEnvKeys = map[string]struct{}{
	"PATH":            {},
	"HOME":            {},
	"USER":            {},
	"SHELL":           {},
	"PWD":             {},
	"LANG":            {},
	"LC_ALL":          {},
	"TMPDIR":          {},
	"TMP":             {},
	"TERM":            {},
	"LOGNAME":         {},
	"EDITOR":          {},
	"XDG_CONFIG_HOME": {},
	"XDG_STATE_HOME":  {},
	"XDG_CACHE_HOME":  {},
	"CTXCTL_CONFIG":   {},
}

// SanitizeArgs returns a sanitized string representation of the provided CLI
// arguments. Sensitive values (passphrases, tokens, secrets) are redacted
// while leaving the overall invocation structure intact.
func SanitizeArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}

	sanitized := make([]string, 0, len(args))
	redactNext := false

	for _, arg := range args {
		if redactNext {
			sanitized = append(sanitized, redactionPlaceholder)
			redactNext = false
			continue
		}

		if eq := strings.Index(arg, "="); eq > 0 {
			flag := arg[:eq]
			if isSensitiveFlag(flag) {
				sanitized = append(sanitized, flag+"="+redactionPlaceholder)
				continue
			}
			sanitized = append(sanitized, arg)
			continue
		}

		sanitized = append(sanitized, arg)
		if isSensitiveFlag(arg) {
			redactNext = true
		}
	}

	if redactNext {
		sanitized = append(sanitized, redactionPlaceholder)
	}

	return strings.Join(sanitized, " ")
}

// SanitizeEnv returns a sanitized copy of the provided environment variables.
// Sensitive values are replaced with a placeholder while preserving allowlisted keys.
func SanitizeEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(env))
	for key, value := range env {
		if _, ok := allowlistedEnvKeys[key]; ok {
			out[key] = value
			continue
		}
		if isSensitiveKey(key) {
			out[key] = redactionPlaceholder
			continue
		}
		out[key] = value
	}
	return out
}

var sensitivePattern = regexp.MustCompile(`(?i)(password|passphrase|secret|token|apikey|privatekey)=([^\s]{1,128})`)

// SanitizeText redacts sensitive key/value pairs inside freeform strings.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	return sensitivePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := strings.SplitN(match, "=", 2)
		if len(parts) != 2 {
			return match
		}
		return parts[0] + "=" + redactionPlaceholder
	})
}

// SanitizeMetadata redacts sensitive keys in telemetry metadata maps.
func SanitizeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = redactionPlaceholder
			continue
		}
		out[key] = SanitizeText(value)
	}
	return out
}

func isSensitiveFlag(flag string) bool {
	flagLower := strings.ToLower(flag)
	return strings.Contains(flagLower, "password") ||
		strings.Contains(flagLower, "passphrase") ||
		strings.Contains(flagLower, "token") ||
		strings.Contains(flagLower, "secret") ||
		strings.Contains(flagLower, "credential")
}

func isSensitiveKey(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "password") ||
		strings.Contains(lower, "passphrase") ||
		strings.Contains(lower, "secret") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "apikey") ||
		strings.Contains(lower, "privatekey")
}
