package request

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// signature builds the deduplication ledger key for one logical call.
// Format: <method>:<cache key>:<hash>, where hash is the first 8 bytes
// of SHA-256(canonical JSON of the option fields not already folded
// into the cache key). Two calls collapse into one flight only when
// method, cache key, and these options all agree.
func signature(method, cacheKey string, opts Options) (string, error) {
	payload := map[string]any{
		"headers": headerMap(opts.Headers),
		"body":    opts.Body,
		"ttl":     opts.TTL.Nanoseconds(),
		"force":   opts.ForceRefresh,
		"retries": opts.Retries,
	}

	canonical, err := canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("request: failed to canonicalize options: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:%s:%s", method, cacheKey, hex.EncodeToString(hash[:8])), nil
}

func headerMap(h map[string]string) map[string]any {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]any, len(h))
	for k, v := range h {
		m[k] = v
	}
	return m
}

// canonicalize produces a deterministic JSON representation of the
// input. Maps are sorted by key so iteration order never leaks into
// the signature.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
