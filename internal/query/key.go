package query

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"net/url"
	"slices"
)

// Key identifies a cached fetch: a resource tag plus optional filters.
// Two keys are equal when their tags match and their filters hold the same
// pairs; filter order never matters and a nil map equals an empty one.
type Key struct {
	Tag     string
	Filters map[string]string
}

// NewKey returns a key for tag with a private copy of filters.
func NewKey(tag string, filters map[string]string) Key {
	k := Key{Tag: tag}
	if len(filters) > 0 {
		k.Filters = maps.Clone(filters)
	}
	return k
}

// KeyWith builds a key from alternating filter names and values.
// A trailing name without a value is ignored.
func KeyWith(tag string, pairs ...string) Key {
	k := Key{Tag: tag}
	for i := 0; i+1 < len(pairs); i += 2 {
		if k.Filters == nil {
			k.Filters = make(map[string]string, len(pairs)/2)
		}
		k.Filters[pairs[i]] = pairs[i+1]
	}
	return k
}

// String returns the canonical form "tag?name=value&..." with filters
// sorted by name and both parts escaped, so distinct keys never collide.
func (k Key) String() string {
	tag := url.PathEscape(k.Tag)
	if len(k.Filters) == 0 {
		return tag
	}

	// url.Values.Encode sorts by name.
	v := make(url.Values, len(k.Filters))
	for name, value := range k.Filters {
		v.Set(name, value)
	}
	return tag + "?" + v.Encode()
}

// Hash returns the hex SHA-256 of the canonical form.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether k and o identify the same cache entry.
func (k Key) Equal(o Key) bool {
	return k.Tag == o.Tag && maps.Equal(k.Filters, o.Filters)
}

// FilterNames returns the filter names in sorted order.
func (k Key) FilterNames() []string {
	return slices.Sorted(maps.Keys(k.Filters))
}

// id is the map key used for entries, pending fetches and subscribers.
func (k Key) id() string {
	return k.String()
}
