// Package filter selects the tagged subset of request headers and cookies.
package filter

import (
	"net/http"
	"strings"
)

// DefaultPrefix is the tag prefix used when none is configured.
const DefaultPrefix = "wh_"

// cgiHeaderPrefix marks header entries in CGI-style variable maps.
const cgiHeaderPrefix = "HTTP_"

// Prefix keeps entries whose name starts with the prefix, compared
// case-insensitively. The rest of the name is never altered.
type Prefix string

// Match reports whether name carries the prefix.
func (p Prefix) Match(name string) bool {
	n := len(p)
	return len(name) >= n && strings.EqualFold(name[:n], string(p))
}

// Headers returns the tagged headers keyed exactly as the transport
// delivered them. Repeated headers are joined with ", ".
func (p Prefix) Headers(h http.Header) map[string]string {
	out := make(map[string]string)
	for k, v := range h {
		if p.Match(k) {
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}

// Cookies returns the tagged cookies. When a name repeats the first value wins.
func (p Prefix) Cookies(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string)
	for _, c := range cookies {
		if !p.Match(c.Name) {
			continue
		}
		if _, seen := out[c.Name]; !seen {
			out[c.Name] = c.Value
		}
	}
	return out
}

// Map filters a plain name to value mapping.
func (p Prefix) Map(m map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		if p.Match(k) {
			out[k] = v
		}
	}
	return out
}

// CGIHeaders filters CGI-style variables (HTTP_WH_EVENT and so on), used
// when only an environment-like view of the request is available. The
// HTTP_ marker is dropped and underscores become hyphens, so the prefix is
// matched in both spellings.
func (p Prefix) CGIHeaders(vars map[string]string) map[string]string {
	dashed := Prefix(strings.ReplaceAll(string(p), "_", "-"))
	out := make(map[string]string)
	for k, v := range vars {
		if !strings.HasPrefix(k, cgiHeaderPrefix) {
			continue
		}
		rest := k[len(cgiHeaderPrefix):]
		if !p.Match(rest) {
			continue
		}
		name := strings.ReplaceAll(rest, "_", "-")
		if dashed.Match(name) {
			out[name] = v
		}
	}
	return out
}
