package directory

import (
	"regexp"
	"strings"
)

// SiteDomain is this application's own host. Links stored as site-relative
// paths under it are unwrapped before normalization.
const SiteDomain = "meetingsfor1000.com"

const canonicalScheduling = "https://calendly.com"

var (
	ownPrefix       = regexp.MustCompile(`(?i)^https?://(www\.)?` + regexp.QuoteMeta(SiteDomain) + `/`)
	wwwScheme       = regexp.MustCompile(`(?i)^https?://www\.calendly\.com`)
	plainHTTP       = regexp.MustCompile(`(?i)^http://calendly\.com`)
	canonicalScheme = regexp.MustCompile(`(?i)^https://calendly\.com`)
	bareHost        = regexp.MustCompile(`(?i)^(www\.)?calendly\.com/`)
)

// NormalizeLink canonicalizes one scheduling-link candidate. It is total and
// idempotent; blank input yields "".
func NormalizeLink(raw string) string {
	href := strings.TrimSpace(raw)
	for {
		loc := ownPrefix.FindStringIndex(href)
		if loc == nil {
			break
		}
		href = strings.TrimSpace(href[loc[1]:])
	}
	if href == "" {
		return ""
	}

	switch {
	case wwwScheme.MatchString(href):
		href = wwwScheme.ReplaceAllLiteralString(href, canonicalScheduling)
	case plainHTTP.MatchString(href):
		href = plainHTTP.ReplaceAllLiteralString(href, canonicalScheduling)
	case canonicalScheme.MatchString(href):
		href = canonicalScheme.ReplaceAllLiteralString(href, canonicalScheduling)
	case bareHost.MatchString(href):
		href = bareHost.ReplaceAllLiteralString(href, canonicalScheduling+"/")
	}
	return href
}

// ParseLinks splits a comma-separated cell into normalized links, dropping
// empty entries.
func ParseLinks(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	links := make([]string, 0, len(parts))
	for _, p := range parts {
		if l := NormalizeLink(p); l != "" {
			links = append(links, l)
		}
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

// NormalizeLinks normalizes already-split links, as loaded from storage.
func NormalizeLinks(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if n := NormalizeLink(l); n != "" {
			out = append(out, n)
		}
	}
	return out
}
