// Package origin implements browser Origin allowlisting for the WebSocket
// upgrade and the HTTP API.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Allowlist holds normalized allowed origins. An empty Allowlist admits every
// origin, matching the permissive default of a public signaling endpoint;
// deployments lock it down via ALLOWED_ORIGINS.
type Allowlist struct {
	origins map[string]struct{}
}

// NewAllowlist normalizes the configured entries. Entries that do not parse
// as an origin are ignored; "*" makes the list permissive regardless of the
// other entries.
func NewAllowlist(entries []string) Allowlist {
	var al Allowlist
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if e == "*" {
			return Allowlist{}
		}
		if norm, ok := Normalize(e); ok {
			if al.origins == nil {
				al.origins = make(map[string]struct{})
			}
			al.origins[norm] = struct{}{}
		}
	}
	return al
}

// Allowed reports whether the request's Origin header may connect. Requests
// without an Origin header (non-browser clients) are always admitted.
func (al Allowlist) Allowed(originHeader string) bool {
	if strings.TrimSpace(originHeader) == "" {
		return true
	}
	if al.origins == nil {
		return true
	}
	norm, ok := Normalize(originHeader)
	if !ok {
		return false
	}
	_, found := al.origins[norm]
	return found
}

// Normalize canonicalizes an origin to scheme://host[:port], lowercasing the
// host and dropping default ports, so configured entries and live headers
// compare byte-for-byte.
func Normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", false
	}

	var port uint64
	if raw := u.Port(); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return scheme + "://" + host, true
}
