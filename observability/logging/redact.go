package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential material in log output.
const RedactedValue = "[REDACTED]"

// Keys whose values must never appear in logs. The RPC bearer token is the
// main concern; the rest guard against accidental logging of key material.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"bearer":        {},
	"secret":        {},
	"password":      {},
	"private_key":   {},
}

// IsSensitive reports whether a log key carries credential material.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskAttr masks the value of a sensitive attribute, leaving empty values and
// all other attributes untouched.
func MaskAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
