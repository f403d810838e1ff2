package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Schemes that can never produce a fetchable page; matched as a
// case-insensitive prefix before any resolution happens.
var skippedSchemes = []string{"mailto:", "tel:", "javascript:", "data:"}

// ErrUnsupportedLink marks hrefs that are valid markup but can never be
// crawled (empty, non-http scheme, unparseable). Callers skip these silently.
var ErrUnsupportedLink = errors.New("unsupported link")

// Normalize resolves href against base into a canonical absolute URL:
// whitespace trimmed, fragment stripped, scheme restricted to http(s).
// It is deterministic and idempotent on its own output.
func Normalize(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href: %w", ErrUnsupportedLink)
	}
	low := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(low, scheme) {
			return "", fmt.Errorf("scheme %s: %w", strings.TrimSuffix(scheme, ":"), ErrUnsupportedLink)
		}
	}

	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, ErrUnsupportedLink)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, ErrUnsupportedLink)
	}

	abs := b.ResolveReference(ref)
	abs.Fragment = ""
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("scheme %q: %w", abs.Scheme, ErrUnsupportedLink)
	}

	return strings.TrimSpace(abs.String()), nil
}

// HostOf returns the lowercased host (including any port) of rawURL, or ""
// if it cannot be parsed.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// SameHost reports whether rawURL points at host, compared case-insensitively.
// It is the scope filter used when a crawl is limited to the seed domain.
func SameHost(rawURL, host string) bool {
	return strings.EqualFold(HostOf(rawURL), host)
}
