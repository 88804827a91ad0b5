package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response by request path and query.
type Key struct {
	// Path is the API path (e.g. "/v1/apps/12345/appStoreVersions").
	Path string

	// Query holds the request query parameters.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: asc:path:param1=val1:param2=val2
func (k Key) String() string {
	parts := []string{"asc"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Query.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
