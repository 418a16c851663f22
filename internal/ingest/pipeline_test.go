package ingest

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/citelens/internal/capturelog"
	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/urlnorm"
)

func loadSession(t *testing.T) []interaction.RawCaptureEvent {
	t.Helper()
	f, err := os.Open("testdata/session.jsonl")
	require.NoError(t, err)
	defer f.Close()

	events, warnings, err := capturelog.ReadAll(f)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, events, 22)
	return events
}

func warningKinds(ws []interaction.Warning) []interaction.WarningKind {
	out := make([]interaction.WarningKind, len(ws))
	for i, w := range ws {
		out[i] = w.Kind
	}
	return out
}

func TestRun_Session(t *testing.T) {
	res := New().Run(loadSession(t))

	assert.Equal(t, []interaction.SearchQuery{
		{Index: 0, Text: "go loop variable semantics"},
		{Index: 1, Text: "go 1.22 for range change"},
	}, res.Queries)

	require.Len(t, res.Sources, 13)
	for i := 0; i < 10; i++ {
		assert.Equal(t, i+1, res.Sources[i].RankWithinGroup)
		assert.Equal(t, 0, res.Sources[i].GroupIndex)
	}
	assert.Equal(t, "https://news.example.com/story-10", res.Sources[9].URL)
	assert.Equal(t, 2, res.Sources[10].GroupIndex)
	assert.Equal(t, "docs.example.org", res.Sources[12].Domain)
	require.NotNil(t, res.Sources[0].PublishedAt)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), *res.Sources[0].PublishedAt)

	assert.Contains(t, res.ResponseText, "[the analysis](https://news.example.com/story-4/)")
	require.Len(t, res.MatchedCitations, 10)

	var ranks []int
	for _, mc := range res.MatchedCitations {
		if mc.Matched() {
			ranks = append(ranks, mc.Rank)
		}
	}
	assert.Equal(t, []int{3, 4, 10}, ranks)

	m := res.Metrics
	assert.Equal(t, 2, m.QueriesCount)
	assert.Equal(t, 13, m.SourcesFoundCount)
	assert.Equal(t, 3, m.SourcesUsedCount)
	assert.Equal(t, 7, m.ExtraLinksCount)
	require.NotNil(t, m.AverageRank)
	assert.InDelta(t, 5.7, *m.AverageRank, 0.05)

	assert.Equal(t, []interaction.WarningKind{interaction.WarnDecode, interaction.WarnMalformedPatch}, warningKinds(res.Warnings))
	assert.Equal(t, 6, res.Warnings[0].EventIndex)
	assert.Equal(t, 11, res.Warnings[1].EventIndex)
}

func TestRun_CitationKinds(t *testing.T) {
	res := New().Run(loadSession(t))

	counts := map[interaction.CitationKind]int{}
	for i, mc := range res.MatchedCitations {
		assert.Equal(t, i+1, mc.SequenceIndex)
		counts[mc.Kind]++
	}
	assert.Equal(t, 5, counts[interaction.CitationInline])
	assert.Equal(t, 5, counts[interaction.CitationReferenceStyle])

	first := res.MatchedCitations[0]
	assert.Equal(t, "Story three", first.TitleOrLinkText)
	require.True(t, first.Matched())
	assert.Equal(t, "https://news.example.com/story-3", first.Source.URL)
}

func TestRun_PartialCapture(t *testing.T) {
	events := loadSession(t)
	res := New().Run(events[:len(events)-2])

	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, interaction.WarnPartialCapture, res.Warnings[len(res.Warnings)-1].Kind)
	assert.Equal(t, 3, res.Metrics.SourcesUsedCount)
}

func TestRun_TruncatedEarly(t *testing.T) {
	events := loadSession(t)
	res := New().Run(events[:9])

	assert.Less(t, len(res.Sources), 13)
	assert.Equal(t, len(res.MatchedCitations), res.Metrics.SourcesUsedCount+res.Metrics.ExtraLinksCount)
	assert.Equal(t, interaction.WarnPartialCapture, res.Warnings[len(res.Warnings)-1].Kind)
}

func TestRun_Empty(t *testing.T) {
	res := New().Run(nil)
	assert.Empty(t, res.Queries)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.MatchedCitations)
	assert.Nil(t, res.Metrics.AverageRank)
	assert.Equal(t, []interaction.WarningKind{interaction.WarnPartialCapture}, warningKinds(res.Warnings))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestDeliveryModesAreIdentical(t *testing.T) {
	events := loadSession(t)
	p := New()

	batch := mustJSON(t, p.Run(events))

	s := p.NewSession()
	for _, ev := range events {
		s.Feed(ev)
	}
	assert.Equal(t, batch, mustJSON(t, s.Finalize()))

	ch := make(chan interaction.RawCaptureEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			ch <- ev
		}
	}()
	live, err := p.RunStream(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, batch, mustJSON(t, live))
}

func TestRunStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New().RunStream(ctx, make(chan interaction.RawCaptureEvent))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestSession_FinalizeIdempotent(t *testing.T) {
	s := New().NewSession()
	for _, ev := range loadSession(t) {
		s.Feed(ev)
	}
	first := s.Finalize()
	assert.Equal(t, 22, s.EventsSeen())

	assert.Empty(t, s.Feed(interaction.RawCaptureEvent{Kind: interaction.KindSSE, Payload: []byte("data: [DONE]")}))
	assert.Same(t, first, s.Finalize())
}

func TestSession_MarkComplete(t *testing.T) {
	events := loadSession(t)
	s := New().NewSession()
	for _, ev := range events[:len(events)-2] {
		s.Feed(ev)
	}
	s.MarkComplete()
	res := s.Finalize()
	assert.Equal(t, []interaction.WarningKind{interaction.WarnDecode, interaction.WarnMalformedPatch}, warningKinds(res.Warnings))
}

func TestSession_FeedReturnsWarnings(t *testing.T) {
	s := New().NewSession()
	w := s.Feed(interaction.RawCaptureEvent{Kind: interaction.KindHTTP, Payload: []byte{0xff}})
	require.Len(t, w, 1)
	assert.Equal(t, interaction.WarnDecode, w[0].Kind)
}

func TestWithNormalizer(t *testing.T) {
	events := loadSession(t)

	strict := New(WithNormalizer(urlnorm.New(urlnorm.TrackingParam{Key: "utm_medium"}))).Run(events)
	assert.Equal(t, 3, strict.Metrics.SourcesUsedCount, "defaults still apply with extra params")
}

func TestConcurrentSessions(t *testing.T) {
	events := loadSession(t)
	p := New()
	want := mustJSON(t, p.Run(events))

	results := make(chan string, 4)
	for i := 0; i < 4; i++ {
		go func() {
			b, _ := json.Marshal(p.Run(events))
			results <- string(b)
		}()
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, want, <-results)
	}
}
