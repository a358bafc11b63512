package cache

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// scopeParam is the query parameter carrying the tenant scope.
const scopeParam = "organization_id"

// ScopeResolver resolves the active organization for multi-tenant key
// isolation. The session store implements it.
type ScopeResolver interface {
	OrganizationID(ctx context.Context) (string, bool)
}

// KeyBuilder normalizes an endpoint and parameter set into a canonical
// cache key.
//
// Contract:
// - Determinism: parameter insertion order and nil values never affect the key.
// - Concurrency: safe for concurrent use.
type KeyBuilder struct {
	scope ScopeResolver
}

// NewKeyBuilder creates a key builder resolving tenant scope through the
// given resolver. A nil resolver disables scope injection.
func NewKeyBuilder(scope ScopeResolver) *KeyBuilder {
	return &KeyBuilder{scope: scope}
}

// Key builds the canonical cache key for an endpoint and parameter mapping.
//
// The endpoint may carry an embedded query string; explicit params take
// precedence over embedded ones on collision. Nil parameter values are
// dropped. The organization scope is injected unless already present.
// Remaining keys are sorted, so any permutation of the same non-nil
// parameters yields the same key.
func (b *KeyBuilder) Key(ctx context.Context, endpoint string, params map[string]any) string {
	path, rawQuery, _ := strings.Cut(endpoint, "?")

	merged := url.Values{}
	if embedded, err := url.ParseQuery(rawQuery); err == nil {
		for k, vs := range embedded {
			if len(vs) > 0 {
				merged.Set(k, vs[0])
			}
		}
	}

	for k, v := range params {
		if v == nil {
			continue
		}
		merged.Set(k, stringify(v))
	}

	if b.scope != nil && merged.Get(scopeParam) == "" {
		if org, ok := b.scope.OrganizationID(ctx); ok {
			merged.Set(scopeParam, org)
		}
	}

	resource := canonicalPath(path)
	if len(merged) == 0 {
		return resource
	}
	return resource + "?" + encodeSorted(merged)
}

// canonicalPath collapses an endpoint path to its resource name under the
// single canonical namespace: leading slashes and any api/v1 prefix are
// stripped, so "/api/v1/participants", "v1/participants" and
// "participants" all map to "participants".
func canonicalPath(path string) string {
	p := strings.Trim(path, "/")
	p = strings.TrimPrefix(p, "api/")
	p = strings.TrimPrefix(p, "v1/")
	return p
}

// encodeSorted renders values as k=v pairs joined by '&' with keys in
// lexical order. url.Values.Encode already sorts; called out here because
// the stability of the output is the load-bearing guarantee.
func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(values.Get(k)))
	}
	return sb.String()
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
