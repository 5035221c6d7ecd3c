package ingest

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParamPrefixes are query parameters stripped during canonicalization
// because they vary per-visit/per-campaign without changing the resource.
var trackingParamPrefixes = []string{"utm_", "ref", "fbclid", "gclid", "mc_cid", "mc_eid"}

// CanonicalizeURL normalizes a URL for deduplication and display: lowercases
// scheme and host, drops tracking query parameters, sorts the remaining
// ones, and trims a trailing slash. Malformed input is returned trimmed and
// unchanged.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			for _, prefix := range trackingParamPrefixes {
				if strings.HasPrefix(lower, prefix) {
					q.Del(key)
					break
				}
			}
		}
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		vals := url.Values{}
		for _, key := range keys {
			vals[key] = q[key]
		}
		u.RawQuery = vals.Encode()
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}
