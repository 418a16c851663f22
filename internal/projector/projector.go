// Package projector turns a frozen capture document into the user-facing
// entities: reported queries, captured sources, and the response text.
package projector

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/stream"
)

// Projection is the result of walking one DocumentState.
type Projection struct {
	Queries      []interaction.SearchQuery
	Sources      []interaction.SourceRecord
	ResponseText string
	Warnings     []interaction.Warning
}

// dateLayouts are the string forms accepted for pub_date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Project walks doc. It has no side effects and always succeeds; groups and
// entries in an unexpected shape are skipped with UNKNOWN_GROUP_SHAPE warnings.
func Project(doc *stream.DocumentState) Projection {
	var p Projection
	if doc == nil {
		return p
	}

	for i, q := range doc.ReportedQueries {
		p.Queries = append(p.Queries, interaction.SearchQuery{Index: i, Text: q})
	}

	for _, g := range doc.Groups {
		if g.ShapeProblem != "" {
			p.Warnings = append(p.Warnings, interaction.NewUnknownGroupShapeWarning("group %d: %s", g.Index, g.ShapeProblem))
			continue
		}
		p.Sources = append(p.Sources, projectGroup(g, &p.Warnings)...)
	}

	p.ResponseText = strings.Join(doc.TextFragments, "")
	return p
}

// projectGroup ranks a group's observed entries. Placeholders never take a
// rank. Malformed observed entries hold their position but yield no source.
func projectGroup(g stream.ResultGroup, warnings *[]interaction.Warning) []interaction.SourceRecord {
	var (
		sources []interaction.SourceRecord
		rank    int
	)
	for slot, e := range g.Entries {
		if !e.Observed {
			continue
		}
		rank++
		if e.ShapeProblem != "" {
			*warnings = append(*warnings, interaction.NewUnknownGroupShapeWarning("group %d entry %d: %s", g.Index, slot, e.ShapeProblem))
			continue
		}

		src := interaction.SourceRecord{
			URL:             e.URL,
			Title:           e.Title,
			Domain:          g.Domain,
			Snippet:         e.Snippet,
			PublishedAt:     parsePubDate(e.PubDate),
			RankWithinGroup: rank,
			GroupIndex:      g.Index,
		}
		if src.Domain == "" {
			src.Domain = hostOf(e.URL)
		}
		sources = append(sources, src)
	}
	return sources
}

// parsePubDate accepts epoch seconds (possibly fractional) or a date string.
// Unrecognized values yield nil.
func parsePubDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		whole := int64(secs)
		nanos := int64((secs - float64(whole)) * 1e9)
		t := time.Unix(whole, nanos).UTC()
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
