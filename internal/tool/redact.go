package tool

import (
	"sort"
	"strings"
)

const redacted = "********"

// Key fragments whose values are never printed in clear text.
var secretFragments = []string{
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"PASSWD",
	"CREDENTIAL",
	"API_KEY",
	"ACCESS_KEY",
	"PRIVATE_KEY",
}

// Reports whether an environment key looks like it carries a secret.
func isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, fragment := range secretFragments {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}

// Renders an environment map as sorted KEY=value lines with secret
// values masked.
func redactedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := env[k]
		if isSecretKey(k) {
			v = redacted
		}
		lines = append(lines, k+"="+v)
	}
	return lines
}
