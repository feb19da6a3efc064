package cache

import (
	"net/url"
	"sort"
	"strings"
)

// ResponseKey identifies a stored API response.
type ResponseKey struct {
	// Endpoint is the request path (e.g., "/api", "/meta")
	Endpoint string

	// QueryParams are the query parameters; repeated values are kept
	QueryParams url.Values
}

// String generates a deterministic store key.
// Format: directory:endpoint:param1=v1,v2:param2=v
//
// Example:
//
//	directory:api:hash=42:limit=52:offset=0:tags=animation,illustration
func (k ResponseKey) String() string {
	parts := []string{"directory"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			for i, v := range values {
				values[i] = url.QueryEscape(v)
			}
			parts = append(parts, url.QueryEscape(key)+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}
