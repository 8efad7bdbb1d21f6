package credentials

import (
	"context"
	"strings"
)

// HeaderProvider returns the headers one tool server should receive for the
// request that ctx belongs to. Absent values are omitted, never sent empty.
type HeaderProvider func(ctx context.Context) map[string]string

// NewHeaderProvider builds an allow-list provider. Lookups are case-insensitive
// and the returned keys use the casing given in allow.
func NewHeaderProvider(allow []string) HeaderProvider {
	names := make([]string, 0, len(allow))
	seen := make(map[string]bool, len(allow))
	for _, n := range allow {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, strings.TrimSpace(n))
	}

	return func(ctx context.Context) map[string]string {
		c := FromContext(ctx)
		out := make(map[string]string, len(names))
		for _, name := range names {
			if v, ok := c.Header(name); ok {
				out[name] = v
				continue
			}
			// The token is captured even when the header set was filtered.
			if strings.EqualFold(name, ExternalTokenHeader) && c.Token() != "" {
				out[name] = c.Token()
			}
		}
		return out
	}
}

// LegacyHeaderProvider forwards only X-External-Token.
func LegacyHeaderProvider() HeaderProvider {
	return func(ctx context.Context) map[string]string {
		token := FromContext(ctx).Token()
		if token == "" {
			return map[string]string{}
		}
		return map[string]string{ExternalTokenHeader: token}
	}
}

// ProviderFor selects legacy mode for a nil allow-list and allow-list mode otherwise.
func ProviderFor(propagate []string) HeaderProvider {
	if propagate == nil {
		return LegacyHeaderProvider()
	}
	return NewHeaderProvider(propagate)
}
