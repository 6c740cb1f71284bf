package scrapers

import "strings"

// absoluteURL resolves a possibly relative href against the site base URL.
func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}

// segmentFromEnd returns the n-th path segment counted from the end of the
// URL (0 is the last non-empty segment). Used as the positional fallback when
// a site's ID pattern does not match.
func segmentFromEnd(rawURL string, n int) string {
	trimmed := strings.TrimPrefix(rawURL, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")

	var segments []string
	for _, s := range strings.Split(trimmed, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	idx := len(segments) - 1 - n
	if idx < 0 || idx >= len(segments) {
		return ""
	}
	return segments[idx]
}
