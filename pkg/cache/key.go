package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/flight-search-cache/pkg/flight"
)

// GenerateKey returns the cache key for a search: the SHA-256 hex digest of
// the normalized parameter set.
func GenerateKey(params flight.SearchParameters) string {
	// Values holds only strings and ints, which always encode.
	key, _ := HashValues(params.Values())
	return key
}

// HashValues normalizes values and hashes their canonical JSON form.
//
// Normalization:
//   - nil values are dropped
//   - strings are trimmed and lower-cased
//   - all other values are kept as is
//
// encoding/json writes map keys in sorted order, so the digest does not
// depend on insertion order.
func HashValues(values map[string]any) (string, error) {
	normalized := make(map[string]any, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			normalized[k] = strings.ToLower(strings.TrimSpace(val))
		default:
			normalized[k] = val
		}
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("encoding cache key values: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
