package cliutil

import (
	"maps"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var secretKeys = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AZURE_CLIENT_SECRET",
	"GCP_SERVICE_ACCOUNT_KEY",
	"DATABASE_PASSWORD",
	"DB_PASSWORD",
	"POSTGRES_PASSWORD",
	"REDIS_PASSWORD",
	"API_KEY",
	"ACCESS_TOKEN",
	"REFRESH_TOKEN",
	"CLIENT_SECRET",
	"GITHUB_TOKEN",
	"NPM_TOKEN",
}

// Suffixes that mark an environment variable name as sensitive.
var secretSuffixes = []string{"_TOKEN", "_SECRET", "_PASSWORD", "_PASSWD", "_API_KEY", "_PRIVATE_KEY"}

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b(` + quoteAll(secretKeys) + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	flagSecretPattern  = regexp.MustCompile(`(?i)(--(?:password|token|secret|api-key)[= ])(\S+)`)
)

func quoteAll(keys []string) string {
	escaped := make([]string, len(keys))
	for i, key := range keys {
		escaped[i] = regexp.QuoteMeta(key)
	}
	return strings.Join(escaped, "|")
}

// RedactSecrets masks ${VAR} references, known secret key assignments and
// secret-bearing command line flags in message.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllLiteralString(message, "${"+redactedPlaceholder+"}")
	redacted = secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
	return flagSecretPattern.ReplaceAllString(redacted, "${1}"+redactedPlaceholder)
}

// IsSecretKey reports whether an environment variable name looks sensitive.
func IsSecretKey(name string) bool {
	upper := strings.ToUpper(name)
	for _, key := range secretKeys {
		if upper == key {
			return true
		}
	}
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of env with sensitive values masked.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := maps.Clone(env)
	for k := range out {
		if IsSecretKey(k) {
			out[k] = redactedPlaceholder
		}
	}
	return out
}
