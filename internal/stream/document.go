package stream

import (
	"encoding/json"
	"fmt"
)

// Layout names where the reconstructed document keeps the parts the
// projector needs. It is data so new upstream shapes need no code change.
type Layout struct {
	// SnapshotKey identifies an object carrying the full document.
	SnapshotKey string

	// Groups is the array of result groups.
	Groups PointerPath

	// TextParts is the array of response text fragments.
	TextParts PointerPath

	// ModelQueries is an array of query strings.
	ModelQueries PointerPath

	// SearchQueries is an array of objects carrying the query under QueryKey.
	SearchQueries PointerPath
	QueryKey      string
}

// DefaultLayout matches the captured chat conversation document.
var DefaultLayout = Layout{
	SnapshotKey:   "message",
	Groups:        MustParsePath("message.metadata.search_result_groups"),
	TextParts:     MustParsePath("message.content.parts"),
	ModelQueries:  MustParsePath("message.metadata.search_model_queries.queries"),
	SearchQueries: MustParsePath("message.metadata.search_queries"),
	QueryKey:      "q",
}

// DocumentState is the frozen result of one capture session.
type DocumentState struct {
	Groups          []ResultGroup
	TextFragments   []string
	ReportedQueries []string

	// Completed is true when an explicit completion signal was observed.
	Completed bool

	// Snapshot is the whole document as canonical JSON.
	Snapshot json.RawMessage
}

// ResultGroup is one captured cluster of search results. A non-empty
// ShapeProblem means the group was not in the expected form; its other
// fields are then unreliable.
type ResultGroup struct {
	Index        int
	Type         string
	Domain       string
	Entries      []Entry
	ShapeProblem string
}

// Entry is one slot of a group's entry array.
type Entry struct {
	// Observed is false for placeholder slots filled in by sparse adds.
	Observed bool

	Type        string
	URL         string
	Title       string
	Snippet     *string
	Attribution string

	// PubDate is the raw scalar: epoch seconds or a date string.
	PubDate string

	// ShapeProblem is set when the slot is observed but not an object with a url.
	ShapeProblem string
}

// freeze reads the layout out of the tree.
func (t *tree) freeze(layout Layout, completed bool) *DocumentState {
	doc := &DocumentState{
		Completed: completed,
		Snapshot:  t.marshal(t.root),
	}
	doc.Groups = t.freezeGroups(layout.Groups)
	doc.TextFragments = t.freezeTextParts(layout.TextParts)
	doc.ReportedQueries = t.freezeQueries(layout)
	return doc
}

func (t *tree) freezeGroups(path PointerPath) []ResultGroup {
	arr, ok := t.lookup(t.root, path)
	if !ok || t.nodes[arr].kind != nodeArray {
		return nil
	}

	var groups []ResultGroup
	for i, g := range t.nodes[arr].items {
		gn := t.nodes[g]
		if gn.kind == nodePlaceholder {
			continue
		}
		group := ResultGroup{Index: i}
		if gn.kind != nodeObject {
			group.ShapeProblem = fmt.Sprintf("group is %s, want object", gn.kind)
			groups = append(groups, group)
			continue
		}
		group.Type, _ = t.stringAt(g, "type")
		group.Domain, _ = t.stringAt(g, "domain")

		entries := t.field(g, "entries")
		switch {
		case entries < 0:
			group.ShapeProblem = "group has no entries"
		case t.nodes[entries].kind != nodeArray:
			group.ShapeProblem = fmt.Sprintf("entries is %s, want array", t.nodes[entries].kind)
		default:
			for _, e := range t.nodes[entries].items {
				group.Entries = append(group.Entries, t.freezeEntry(e))
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func (t *tree) freezeEntry(e int) Entry {
	en := t.nodes[e]
	if en.kind == nodePlaceholder {
		return Entry{}
	}
	entry := Entry{Observed: true}
	if en.kind != nodeObject {
		entry.ShapeProblem = fmt.Sprintf("entry is %s, want object", en.kind)
		return entry
	}
	entry.Type, _ = t.stringAt(e, "type")
	entry.URL, _ = t.stringAt(e, "url")
	entry.Title, _ = t.stringAt(e, "title")
	entry.Attribution, _ = t.stringAt(e, "attribution")
	if s, ok := t.stringAt(e, "snippet"); ok {
		entry.Snippet = &s
	}
	if pd := t.field(e, "pub_date"); pd >= 0 {
		switch t.nodes[pd].kind {
		case nodeNumber, nodeString:
			entry.PubDate = t.nodes[pd].scalar
		}
	}
	if entry.URL == "" {
		entry.ShapeProblem = "entry has no url"
	}
	return entry
}

func (t *tree) freezeTextParts(path PointerPath) []string {
	arr, ok := t.lookup(t.root, path)
	if !ok || t.nodes[arr].kind != nodeArray {
		return nil
	}
	var parts []string
	for _, p := range t.nodes[arr].items {
		if t.nodes[p].kind == nodeString {
			parts = append(parts, t.nodes[p].scalar)
		}
	}
	return parts
}

// freezeQueries collects reported queries in report order, deduplicated.
func (t *tree) freezeQueries(layout Layout) []string {
	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		if q == "" || seen[q] {
			return
		}
		seen[q] = true
		queries = append(queries, q)
	}

	if arr, ok := t.lookup(t.root, layout.ModelQueries); ok && t.nodes[arr].kind == nodeArray {
		for _, q := range t.nodes[arr].items {
			if t.nodes[q].kind == nodeString {
				add(t.nodes[q].scalar)
			}
		}
	}
	if arr, ok := t.lookup(t.root, layout.SearchQueries); ok && t.nodes[arr].kind == nodeArray {
		for _, q := range t.nodes[arr].items {
			if t.nodes[q].kind != nodeObject {
				continue
			}
			if s, ok := t.stringAt(q, layout.QueryKey); ok {
				add(s)
			}
		}
	}
	return queries
}
