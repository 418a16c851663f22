package stream

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxPathDepth bounds the number of segments in a PointerPath.
	MaxPathDepth = 32

	// MaxArrayIndex bounds array indices so a hostile frame cannot force a
	// huge placeholder allocation.
	MaxArrayIndex = 4096
)

const (
	noIndex     = -1 // segment is not numeric
	appendIndex = -2 // "-" (end of array)
)

// Segment is one step of a PointerPath. Numeric segments carry both their
// key text and index; whether they address an array slot or an object key is
// decided by the container they are applied to.
type Segment struct {
	Key   string
	Index int
}

// IsIndex reports whether the segment can address an array slot.
func (s Segment) IsIndex() bool {
	return s.Index >= 0 || s.Index == appendIndex
}

// PointerPath addresses a location in the captured document.
// An empty path addresses the document root.
type PointerPath []Segment

// ParsePath accepts JSON Pointer ("/a/b/7/c") or dotted ("a.b[7].c") syntax.
func ParsePath(s string) (PointerPath, error) {
	s = strings.TrimSpace(s)
	var (
		path PointerPath
		err  error
	)
	switch {
	case s == "":
		return PointerPath{}, nil
	case strings.HasPrefix(s, "/"):
		path, err = parsePointer(s)
	default:
		path, err = parseDotted(s)
	}
	if err != nil {
		return nil, err
	}
	if len(path) > MaxPathDepth {
		return nil, fmt.Errorf("path %q exceeds max depth %d", s, MaxPathDepth)
	}
	return path, nil
}

// MustParsePath is ParsePath for package-level layout constants.
func MustParsePath(s string) PointerPath {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parsePointer(s string) (PointerPath, error) {
	tokens := strings.Split(s[1:], "/")
	path := make(PointerPath, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		seg, err := newSegment(tok)
		if err != nil {
			return nil, err
		}
		path = append(path, seg)
	}
	return path, nil
}

func parseDotted(s string) (PointerPath, error) {
	var path PointerPath
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			if i == len(s) || s[i] == '.' || s[i] == '[' {
				return nil, fmt.Errorf("empty key in path %q", s)
			}
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in path %q", s)
			}
			tok := s[i+1 : i+end]
			if tok != "-" {
				if _, err := strconv.Atoi(tok); err != nil {
					return nil, fmt.Errorf("non-numeric index %q in path %q", tok, s)
				}
			}
			seg, err := newSegment(tok)
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
			i += end + 1
		default:
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			seg, err := newSegment(s[i : i+end])
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
			i += end
		}
	}
	return path, nil
}

func newSegment(tok string) (Segment, error) {
	if tok == "-" {
		return Segment{Key: tok, Index: appendIndex}, nil
	}
	if n, err := strconv.Atoi(tok); err == nil && n >= 0 && tok == strconv.Itoa(n) {
		if n > MaxArrayIndex {
			return Segment{}, fmt.Errorf("index %d exceeds max %d", n, MaxArrayIndex)
		}
		return Segment{Key: tok, Index: n}, nil
	}
	return Segment{Key: tok, Index: noIndex}, nil
}

// String renders the path in dotted form.
func (p PointerPath) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex() {
			b.WriteString("[" + seg.Key + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}
