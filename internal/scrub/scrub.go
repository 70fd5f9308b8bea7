// Package scrub removes credentials and personal data from strings before
// they reach logs or error responses.
package scrub

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/privylens/privylens/internal/redaction"
)

const redacted = "[REDACTED]"

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyValueRe = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	openAIKeyRe   = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
	tokenishKeyRe = regexp.MustCompile(`(?i)\b(key|token|secret)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	urlRe         = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String masks credentials, URL paths and pattern-detected personal data.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}"+redacted)
	out = bearerRe.ReplaceAllString(out, "${1}"+redacted)
	out = apiKeyValueRe.ReplaceAllString(out, "${1}"+redacted)
	out = openAIKeyRe.ReplaceAllString(out, "sk-"+redacted)
	out = tokenishKeyRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, redacted) {
			return m
		}
		sub := tokenishKeyRe.FindStringSubmatch(m)
		return sub[1] + "=" + redacted
	})
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	for strings.Contains(out, redacted+redacted) {
		out = strings.ReplaceAll(out, redacted+redacted, redacted)
	}
	return redaction.Merge(out, redaction.MatchAll(out)).Masked
}

// Sprintf formats like fmt.Sprintf and scrubs the result.
func Sprintf(format string, args ...any) string {
	return String(fmt.Sprintf(format, args...))
}

// Err returns the scrubbed message of err, or "" for nil.
func Err(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

func redactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if strings.HasSuffix(u.Path, "/") || base == "." || base == "/" || base == "" {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, u.Host)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, base)
}
