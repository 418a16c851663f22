package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// unparseablePrefix keys the bucket for inputs that are not absolute URLs.
const unparseablePrefix = "unparseable:"

// NormalizedURL is a canonical form used only for equivalence comparison.
type NormalizedURL string

// Parseable reports whether the input was an absolute URL with a host.
func (u NormalizedURL) Parseable() bool {
	return !strings.HasPrefix(string(u), unparseablePrefix)
}

// String implements fmt.Stringer.
func (u NormalizedURL) String() string {
	return string(u)
}

// Normalizer canonicalizes URLs against a tracking-parameter deny-list.
// A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	deny []TrackingParam
}

// New returns a Normalizer that removes DefaultTrackingParams plus extra.
func New(extra ...TrackingParam) *Normalizer {
	deny := make([]TrackingParam, 0, len(DefaultTrackingParams)+len(extra))
	deny = append(deny, DefaultTrackingParams...)
	for _, p := range extra {
		if p.Key == "" || containsParam(deny, p) {
			continue
		}
		deny = append(deny, p)
	}
	return &Normalizer{deny: deny}
}

var defaultNormalizer = New()

// Normalize canonicalizes raw with the default deny-list.
func Normalize(raw string) NormalizedURL {
	return defaultNormalizer.Normalize(raw)
}

// Normalize canonicalizes raw. It never fails: anything that is not an
// absolute URL with a host lands in the unparseable bucket keyed on the
// trimmed input, so equal malformed inputs still compare equal.
//
// Rules, in order:
//  1. lower-case scheme and host
//  2. drop the fragment
//  3. remove deny-listed tracking parameters
//  4. drop an empty query entirely
//  5. strip the trailing slash from a non-root path
//  6. sort remaining query parameters by key
func (n *Normalizer) Normalize(raw string) NormalizedURL {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, unparseablePrefix) {
		return NormalizedURL(s)
	}

	// Whitespace before a fragment ("?q=1 #top") is not part of the URL.
	target := s
	if before, _, found := strings.Cut(s, "#"); found {
		target = strings.TrimSpace(before)
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return NormalizedURL(unparseablePrefix + s)
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(normalizePath(u.EscapedPath()))
	if q := n.normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return NormalizedURL(b.String())
}

// Equal reports whether a and b normalize to the same key.
func (n *Normalizer) Equal(a, b string) bool {
	return n.Normalize(a) == n.Normalize(b)
}

// normalizePath strips the whole run of trailing slashes from a non-root
// path ("/a//" becomes "/a"). An empty path becomes the root.
func normalizePath(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// normalizeQuery filters deny-listed pairs and sorts the rest by key.
// Kept pairs are re-escaped canonically, so stray whitespace or mixed
// escaping in the input cannot survive into the key.
func (n *Normalizer) normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	type pair struct {
		key string
		raw string
	}
	var kept []pair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		if n.denied(unescape(rawKey), unescape(rawValue)) {
			continue
		}
		key := url.QueryEscape(unescape(rawKey))
		canonical := key
		if strings.Contains(part, "=") {
			canonical += "=" + url.QueryEscape(unescape(rawValue))
		}
		kept = append(kept, pair{key: key, raw: canonical})
	}
	if len(kept) == 0 {
		return ""
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].key < kept[j].key })

	parts := make([]string, len(kept))
	for i, p := range kept {
		parts[i] = p.raw
	}
	return strings.Join(parts, "&")
}

func (n *Normalizer) denied(key, value string) bool {
	for _, p := range n.deny {
		if p.matches(key, value) {
			return true
		}
	}
	return false
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}
