package dispatch

import (
	"net/url"
	"strings"
)

// DefaultPrefix is the API path prefix applied to relative endpoints.
const DefaultPrefix = "/api"

// DefaultOrigin is used when the configured base address is malformed.
const DefaultOrigin = "http://localhost:5000"

// AddPrefix normalizes an endpoint against prefix. Absolute http(s) URLs and
// paths already under prefix are returned unchanged, so applying AddPrefix
// twice yields the same result as applying it once.
func AddPrefix(prefix, endpoint string) string {
	if isAbsolute(endpoint) {
		return endpoint
	}

	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		return "/" + strings.TrimLeft(endpoint, "/")
	}

	path := "/" + strings.TrimLeft(endpoint, "/")
	if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
		return path
	}
	return prefix + path
}

func isAbsolute(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// parseBase validates a base address. It reports false when the address is
// not an absolute http(s) URL with a host.
func parseBase(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	return u, true
}
