package urlnorm

import "strings"

// TrackingParam is one deny-list entry. An empty Value matches any value.
type TrackingParam struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// DefaultTrackingParams are always removed before comparison.
var DefaultTrackingParams = []TrackingParam{
	{Key: "utm_source", Value: "chatgpt.com"},
}

// ParseTrackingParam parses "key=value" (exact pair) or "key" (any value).
// Returns false for an empty key.
func ParseTrackingParam(s string) (TrackingParam, bool) {
	key, value, _ := strings.Cut(strings.TrimSpace(s), "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return TrackingParam{}, false
	}
	return TrackingParam{Key: key, Value: strings.TrimSpace(value)}, true
}

// ParseTrackingParams parses a list of deny-list entries, skipping blanks.
func ParseTrackingParams(entries []string) []TrackingParam {
	params := make([]TrackingParam, 0, len(entries))
	for _, e := range entries {
		if p, ok := ParseTrackingParam(e); ok {
			params = append(params, p)
		}
	}
	return params
}

func (p TrackingParam) matches(key, value string) bool {
	if !strings.EqualFold(p.Key, key) {
		return false
	}
	return p.Value == "" || strings.EqualFold(p.Value, value)
}

func containsParam(params []TrackingParam, p TrackingParam) bool {
	for _, q := range params {
		if strings.EqualFold(q.Key, p.Key) && strings.EqualFold(q.Value, p.Value) {
			return true
		}
	}
	return false
}
