package log

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// sensitiveKeys are matched case-insensitively against the whole key or its
// trailing "_"/"-" segment, so "api_token" and "X-Revalidate-Secret" are
// covered.
var sensitiveKeys = []string{"secret", "token", "authorization", "password"}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) || strings.HasSuffix(k, "-"+s) {
			return true
		}
	}
	return false
}

// redactAttr is installed as the handler's ReplaceAttr hook.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup && isSensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}
