package checkpoint

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix starts every checkpoint key.
const KeyPrefix = "lizard:checkpoint"

// Key identifies one logical download.
type Key struct {
	// Endpoint is the registry name (e.g. "timeseries_events")
	Endpoint string

	// Path is the resolved resource path (e.g. "timeseries/6f1a/data/")
	Path string

	// Params are the merged query parameters of the first request
	Params map[string]string

	// Principal distinguishes credentials (e.g. user name), empty when anonymous
	Principal string
}

// String generates a deterministic key string.
// Format: lizard:checkpoint:endpoint:path:param1=val1:param2=val2:user=name
//
// Example:
//
//	lizard:checkpoint:timeseries_events:timeseries/6f1a/data:page_size=1000:time__gte=2024-01-01T00:00:00Z
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if k.Endpoint != "" {
		parts = append(parts, k.Endpoint)
	}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Add params (sorted for determinism)
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	if k.Principal != "" {
		parts = append(parts, fmt.Sprintf("user=%s", k.Principal))
	}

	return strings.Join(parts, ":")
}
