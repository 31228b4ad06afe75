package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/lizard-client/pkg/client"
)

// Getter performs a single GET. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, creds client.Credentials) (*client.Response, error)
}

// additionalV3 are served by Lizard v3 without being listed at the root.
var additionalV3 = []string{"raster-aggregates"}

// Discover lists the resources advertised by the API root, a JSON object
// mapping resource names to URLs. Names use underscores in place of dashes.
// Resources without a built-in definition are returned as generic endpoints.
func Discover(ctx context.Context, g Getter, rootURL string, creds client.Credentials) ([]Endpoint, error) {
	resp, err := g.Get(ctx, rootURL, creds)
	if err != nil {
		return nil, fmt.Errorf("fetch api root: %w", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &root); err != nil {
		return nil, fmt.Errorf("decode api root: %w", err)
	}

	builtin := make(map[string]Endpoint)
	for _, ep := range Builtin() {
		builtin[ep.Name] = ep
	}

	paths := make([]string, 0, len(root)+len(additionalV3))
	for k := range root {
		paths = append(paths, k)
	}
	paths = append(paths, additionalV3...)
	sort.Strings(paths)

	seen := make(map[string]struct{}, len(paths))
	out := make([]Endpoint, 0, len(paths))
	for _, path := range paths {
		name := strings.ReplaceAll(path, "-", "_")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		ep, ok := builtin[name]
		if !ok {
			ep = Endpoint{Name: name, Path: path + "/"}
		}
		if err := ep.Validate(); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}
