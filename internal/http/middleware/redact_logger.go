package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// RedactOptions configures scrubbing for Logger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]". Matching is case-insensitive and merged with the built-in
// set (Authorization, Cookie, Set-Cookie).
type RedactOptions struct {
	MaskHeaders []string
}

var (
	// Discord bot tokens: base64 user id, timestamp and HMAC joined by dots.
	discordTokenRE = regexp.MustCompile(`[A-Za-z\d_-]{23,28}\.[A-Za-z\d_-]{6,7}\.[A-Za-z\d_-]{27,}`)
	bearerRE       = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	emailRE        = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	secretParamRE  = regexp.MustCompile(`(?i)(^|&)((?:access_)?token|api_key|secret)=[^&]*`)
)

type redactor struct {
	mask map[string]struct{}
}

func newRedactor(opts RedactOptions) redactor {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}
	return redactor{mask: mask}
}

// scrub removes credentials and e-mail addresses from free text. Tokens go
// first so the looser e-mail pattern never sees their segments.
func (r redactor) scrub(s string) string {
	if s == "" {
		return s
	}
	s = discordTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = bearerRE.ReplaceAllString(s, "[REDACTED:bearer]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// query masks the values of secret-looking parameters, then scrubs the rest.
func (r redactor) query(raw string) string {
	raw = secretParamRE.ReplaceAllString(raw, "$1$2=[REDACTED]")
	return r.scrub(raw)
}

func (r redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.mask[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.scrub(strings.Join(vv, ", "))
	}
	return out
}
