package querycache

import (
	"net/url"
	"strings"
)

// Key identifies one cached query. Keys are hierarchical: segments are joined
// with "/" and a key matches every key it is a segment-prefix of.
type Key string

// NewKey builds a key from segments, escaping each so user input such as a
// search query cannot introduce extra levels.
func NewKey(segments ...string) Key {
	esc := make([]string, len(segments))
	for i, s := range segments {
		esc[i] = url.PathEscape(s)
	}
	return Key(strings.Join(esc, "/"))
}

// Segments returns the unescaped segments of k.
func (k Key) Segments() []string {
	if k == "" {
		return nil
	}
	parts := strings.Split(string(k), "/")
	for i, p := range parts {
		if s, err := url.PathUnescape(p); err == nil {
			parts[i] = s
		}
	}
	return parts
}

// HasPrefix reports whether p equals k or is a leading run of its segments.
func (k Key) HasPrefix(p Key) bool {
	return k == p || strings.HasPrefix(string(k), string(p)+"/")
}

// family is a low-cardinality label for metrics.
func (k Key) family() string {
	segs := k.Segments()
	switch {
	case len(segs) == 0:
		return "none"
	case len(segs) == 1:
		return segs[0]
	case segs[0] != "notes":
		return segs[0]
	}
	switch segs[1] {
	case "starred", "recent", "search", "folder":
		return segs[1]
	}
	return "note"
}
