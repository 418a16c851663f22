// Package reconcile matches extracted citations to captured sources and
// derives the interaction metrics.
package reconcile

import (
	"sort"

	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/urlnorm"
)

// Reconciler matches citations to sources by normalized URL.
type Reconciler struct {
	norm *urlnorm.Normalizer
}

// New returns a Reconciler using n; a nil n uses the default deny-list.
func New(n *urlnorm.Normalizer) *Reconciler {
	if n == nil {
		n = urlnorm.New()
	}
	return &Reconciler{norm: n}
}

// Reconcile matches each citation to the lowest-ranked source sharing its
// normalized URL. Equal ranks fall back to source order. Matched citations
// point into sources. Metrics.QueriesCount is left for the caller.
func (r *Reconciler) Reconcile(citations []interaction.Citation, sources []interaction.SourceRecord) ([]interaction.MatchedCitation, interaction.Metrics) {
	lookup := r.index(sources)

	matched := make([]interaction.MatchedCitation, 0, len(citations))
	var rankSum int
	m := interaction.Metrics{SourcesFoundCount: len(sources)}

	for _, c := range citations {
		mc := interaction.MatchedCitation{Citation: c}
		if candidates := lookup[r.norm.Normalize(c.URL)]; len(candidates) > 0 {
			best := candidates[0]
			mc.Source = &sources[best]
			mc.Rank = sources[best].RankWithinGroup
			m.SourcesUsedCount++
			rankSum += mc.Rank
		} else {
			m.ExtraLinksCount++
		}
		matched = append(matched, mc)
	}

	if m.SourcesUsedCount > 0 {
		avg := float64(rankSum) / float64(m.SourcesUsedCount)
		m.AverageRank = &avg
	}
	return matched, m
}

// index maps normalized URL to source positions ordered by rank ascending.
func (r *Reconciler) index(sources []interaction.SourceRecord) map[urlnorm.NormalizedURL][]int {
	lookup := make(map[urlnorm.NormalizedURL][]int, len(sources))
	for i, s := range sources {
		key := r.norm.Normalize(s.URL)
		lookup[key] = append(lookup[key], i)
	}
	for _, idx := range lookup {
		sort.SliceStable(idx, func(a, b int) bool {
			return sources[idx[a]].RankWithinGroup < sources[idx[b]].RankWithinGroup
		})
	}
	return lookup
}
