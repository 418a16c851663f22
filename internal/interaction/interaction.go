package interaction

import "time"

// EventKind tags how a captured payload reached the browser.
type EventKind string

const (
	KindHTTP EventKind = "http" // plain HTTP response body
	KindSSE  EventKind = "sse"  // a single server-sent-event frame
)

// RawCaptureEvent is one observed network event from a capture session.
// Events are immutable once produced and are consumed exactly once.
type RawCaptureEvent struct {
	Timestamp time.Time
	Kind      EventKind
	Payload   []byte
}

// SearchQuery is one query string the upstream service reported running.
// Index reflects report order, not execution order.
type SearchQuery struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// SourceRecord is a search result entry captured for the interaction.
// Sources are siblings of queries; no query association is recorded.
type SourceRecord struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Domain      string     `json:"domain"`
	Snippet     *string    `json:"snippet,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// RankWithinGroup is the 1-indexed position among the group's observed entries.
	RankWithinGroup int `json:"rank_within_group"`

	// GroupIndex is the position of the owning group in the captured document.
	GroupIndex int `json:"group_index"`
}

// CitationKind records which syntax produced a citation.
type CitationKind string

const (
	CitationReferenceStyle CitationKind = "reference_style" // [N]: URL "title"
	CitationInline         CitationKind = "inline"          // [text](URL)
)

// TextSpan is a half-open byte range into the response text.
type TextSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Citation is a single citation occurrence in the response text.
type Citation struct {
	// SequenceIndex is 1-based, in order of first byte offset.
	SequenceIndex   int          `json:"sequence_index"`
	URL             string       `json:"url"`
	TitleOrLinkText string       `json:"title_or_link_text"`
	Kind            CitationKind `json:"kind"`
	TextSpan        TextSpan     `json:"text_span"`
}

// MatchedCitation pairs a citation with the source it matched, if any.
type MatchedCitation struct {
	Citation
	Source *SourceRecord `json:"source,omitempty"`
	Rank   int           `json:"rank,omitempty"`
}

// Matched reports whether the citation resolved to a captured source.
func (m MatchedCitation) Matched() bool {
	return m.Source != nil
}

// Metrics are the user-facing numbers for one interaction.
// SourcesUsedCount + ExtraLinksCount always equals the citation count, and
// AverageRank is set exactly when SourcesUsedCount > 0.
type Metrics struct {
	QueriesCount      int      `json:"queries_count"`
	SourcesFoundCount int      `json:"sources_found_count"`
	SourcesUsedCount  int      `json:"sources_used_count"`
	AverageRank       *float64 `json:"average_rank,omitempty"`
	ExtraLinksCount   int      `json:"extra_links_count"`
}

// Result is the complete output of one capture session.
type Result struct {
	Queries          []SearchQuery     `json:"queries"`
	Sources          []SourceRecord    `json:"sources"`
	MatchedCitations []MatchedCitation `json:"matched_citations"`
	Metrics          Metrics           `json:"metrics"`
	ResponseText     string            `json:"response_text"`
	Warnings         []Warning         `json:"warnings"`
}
