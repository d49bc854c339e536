package fetch

import (
	"bytes"
	"strings"
)

// Bot-protection markers checked against the first few KB of a response.
// A match means the body is a challenge page, not real content.
var blockMarkers = []struct {
	name    string
	needles []string
}{
	{"cloudflare", []string{"cf-browser-verification", "challenge-platform", "just a moment..."}},
	{"akamai", []string{"akamai bot manager", "_abck"}},
	{"datadome", []string{"datadome", "dd_cookie"}},
	{"perimeterx", []string{"_pxhd", "px-captcha"}},
	{"recaptcha", []string{"g-recaptcha", "recaptcha/api.js"}},
	{"hcaptcha", []string{"h-captcha", "hcaptcha.com/1/api.js"}},
	{"incapsula", []string{"incapsula incident", "_incapsula_resource"}},
}

const blockScanLimit = 16 * 1024

// DetectBlock reports whether the response is a bot-protection challenge
// page, and which vendor's marker matched.
func DetectBlock(statusCode int, body []byte) (bool, string) {
	if len(body) > blockScanLimit {
		body = body[:blockScanLimit]
	}
	lower := strings.ToLower(string(bytes.ToValidUTF8(body, nil)))

	for _, m := range blockMarkers {
		for _, needle := range m.needles {
			if strings.Contains(lower, needle) {
				return true, m.name
			}
		}
	}

	if statusCode == 403 && strings.Contains(lower, "access denied") {
		return true, "generic"
	}
	return false, ""
}
