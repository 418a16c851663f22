package citation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hpungsan/citelens/internal/interaction"
)

// referenceDefRegex matches a bracket-numbered definition line:
//
//	[3]: https://example.com/page "Optional title"
var referenceDefRegex = regexp.MustCompile(`(?m)^[ \t]{0,3}\[(\d+)\]:[ \t]*(<[^>\n]*>|\S+)(?:[ \t]+(?:"([^"\n]*)"|'([^'\n]*)'|\(([^)\n]*)\)))?[^\n]*`)

// inlineLinkRegex matches [text](URL) and [text](URL "title"). One level of
// balanced parentheses is allowed inside the destination (Wikipedia-style URLs).
var inlineLinkRegex = regexp.MustCompile(`\[((?:[^\[\]\n]|\[[^\[\]\n]*\])*)\]\([ \t]*(<[^>\n]*>|(?:[^()\s]|\([^()\s]*\))*)(?:[ \t]+(?:"[^"\n]*"|'[^'\n]*'))?[ \t]*\)`)

// looseLinkRegex catches [text](dest) whose destination the strict form
// rejects, such as one containing spaces.
var looseLinkRegex = regexp.MustCompile(`\[((?:[^\[\]\n]|\[[^\[\]\n]*\])*)\]\(([^()\n]*)\)`)

// Extract returns every citation occurrence in text, ordered by byte offset.
// Both syntaxes are always extracted. URLs are recorded as written, including
// ones that will not parse; normalization decides what they match. Link
// syntax inside a reference definition belongs to that definition.
func Extract(text string) []interaction.Citation {
	citations := extractReferenceStyle(text)
	taken := make([]interaction.TextSpan, 0, len(citations))
	for _, c := range citations {
		taken = append(taken, c.TextSpan)
	}
	citations = append(citations, extractInline(text, taken)...)

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].TextSpan.Start < citations[j].TextSpan.Start
	})
	for i := range citations {
		citations[i].SequenceIndex = i + 1
	}
	return citations
}

func extractReferenceStyle(text string) []interaction.Citation {
	var out []interaction.Citation
	for _, m := range referenceDefRegex.FindAllStringSubmatchIndex(text, -1) {
		title := firstGroup(text, m, 3, 4, 5)
		out = append(out, interaction.Citation{
			URL:             unwrapAngles(text[m[4]:m[5]]),
			TitleOrLinkText: title,
			Kind:            interaction.CitationReferenceStyle,
			TextSpan:        interaction.TextSpan{Start: m[0], End: m[1]},
		})
	}
	return out
}

func extractInline(text string, taken []interaction.TextSpan) []interaction.Citation {
	var out []interaction.Citation
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			span := interaction.TextSpan{Start: m[0], End: m[1]}
			// ![alt](src) is an image, not a citation.
			if m[0] > 0 && text[m[0]-1] == '!' {
				continue
			}
			if overlapsAny(span, taken) {
				continue
			}
			taken = append(taken, span)
			out = append(out, interaction.Citation{
				URL:             unwrapAngles(strings.TrimSpace(text[m[4]:m[5]])),
				TitleOrLinkText: strings.TrimSpace(text[m[2]:m[3]]),
				Kind:            interaction.CitationInline,
				TextSpan:        span,
			})
		}
	}
	collect(inlineLinkRegex)
	collect(looseLinkRegex)
	return out
}

func overlapsAny(span interaction.TextSpan, spans []interaction.TextSpan) bool {
	for _, s := range spans {
		if span.Start < s.End && s.Start < span.End {
			return true
		}
	}
	return false
}

// firstGroup returns the first participating capture group among groups.
func firstGroup(text string, m []int, groups ...int) string {
	for _, g := range groups {
		if start := m[2*g]; start >= 0 {
			return text[start:m[2*g+1]]
		}
	}
	return ""
}

func unwrapAngles(s string) string {
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
