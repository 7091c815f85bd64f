package naming

import (
	"net/url"
	"strings"
)

// VersionParam is the query parameter carrying the application version.
const VersionParam = "nlsver"

// IsAbsolute reports whether u names its own host, either with an http(s)
// scheme or protocol-relative.
func IsAbsolute(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "//") || strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// WithVersion appends nlsver=<version> to a non-absolute URL. Absolute URLs,
// an empty version and URLs already carrying the parameter are returned as is.
func WithVersion(u, version string) string {
	if version == "" || IsAbsolute(u) || hasVersion(u) {
		return u
	}

	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}

	frag := ""
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u, frag = u[:i], u[i:]
		if !strings.Contains(u, "?") {
			sep = "?"
		}
	}

	return u + sep + VersionParam + "=" + url.QueryEscape(version) + frag
}

func hasVersion(u string) bool {
	_, query, ok := strings.Cut(u, "?")
	if !ok {
		return false
	}
	query, _, _ = strings.Cut(query, "#")
	for _, kv := range strings.Split(query, "&") {
		if k, _, _ := strings.Cut(kv, "="); k == VersionParam {
			return true
		}
	}
	return false
}
