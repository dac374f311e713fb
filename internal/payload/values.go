package payload

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rsclarke/hookcatch/internal/models"
)

// ParseQuery decodes a raw query string pair by pair, in order, expanding
// bracketed keys like ParseValues. Pairs whose escaping is malformed are
// skipped rather than failing the whole string.
func ParseQuery(raw string) models.Values {
	out := models.Values{}
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		set(out, key, val)
	}
	return out
}

// ParseValues expands bracketed keys of an already parsed form: "a[]"
// appends to a list, "a[b]" builds a nested map, and plain keys keep their
// last value. url.Values has no key order, so keys are applied sorted; use
// ParseQuery when the raw string is available.
func ParseValues(v url.Values) models.Values {
	out := models.Values{}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, val := range v[k] {
			set(out, k, val)
		}
	}
	return out
}

func set(dst models.Values, key, val string) {
	base, segs := splitKey(key)
	if base == "" {
		return
	}
	dst[base] = put(dst[base], segs, val)
}

// splitKey turns "a[b][]" into ("a", ["b", ""]). A key without a complete
// bracket group is returned as-is.
func splitKey(key string) (string, []string) {
	i := strings.IndexByte(key, '[')
	if i <= 0 {
		return key, nil
	}

	var segs []string
	rest := key[i:]
	for len(rest) > 0 && rest[0] == '[' {
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			break
		}
		segs = append(segs, rest[1:j])
		rest = rest[j+1:]
	}
	if len(segs) == 0 {
		return key, nil
	}
	return key[:i], segs
}

// put returns cur with val stored at the path segs. A plain value replaces
// whatever was there. An append ("") onto a map adds the value under the
// next integer key, and a named key on a list turns the list into a map
// keyed by position, so nothing already stored is dropped.
func put(cur any, segs []string, val string) any {
	if len(segs) == 0 {
		return val
	}

	seg := segs[0]
	if seg == "" {
		elem := put(nil, segs[1:], val)
		switch c := cur.(type) {
		case []any:
			return append(c, elem)
		case models.Values:
			c[strconv.Itoa(nextIndex(c))] = elem
			return c
		default:
			return []any{elem}
		}
	}

	m := asMap(cur)
	m[seg] = put(m[seg], segs[1:], val)
	return m
}

func asMap(cur any) models.Values {
	switch c := cur.(type) {
	case models.Values:
		return c
	case []any:
		m := make(models.Values, len(c))
		for i, v := range c {
			m[strconv.Itoa(i)] = v
		}
		return m
	default:
		return models.Values{}
	}
}

// nextIndex is one past the largest non-negative integer key, or 0.
func nextIndex(m models.Values) int {
	next := 0
	for k := range m {
		if n, err := strconv.Atoi(k); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}
