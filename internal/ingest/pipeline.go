// Package ingest wires the engine stages into one pass over a capture
// session: reconstruct, project, extract, reconcile.
package ingest

import (
	"context"

	"github.com/hpungsan/citelens/internal/citation"
	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/projector"
	"github.com/hpungsan/citelens/internal/reconcile"
	"github.com/hpungsan/citelens/internal/stream"
	"github.com/hpungsan/citelens/internal/urlnorm"
)

// Pipeline holds the per-process settings shared by sessions. It holds no
// session state and is safe for concurrent use.
type Pipeline struct {
	layout     stream.Layout
	reconciler *reconcile.Reconciler
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	layout stream.Layout
	norm   *urlnorm.Normalizer
}

// WithNormalizer sets the URL normalizer used for matching.
func WithNormalizer(n *urlnorm.Normalizer) Option {
	return func(o *pipelineOptions) { o.norm = n }
}

// WithLayout overrides the document layout read at finalization.
func WithLayout(l stream.Layout) Option {
	return func(o *pipelineOptions) { o.layout = l }
}

// New returns a Pipeline.
func New(opts ...Option) *Pipeline {
	o := pipelineOptions{layout: stream.DefaultLayout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{
		layout:     o.layout,
		reconciler: reconcile.New(o.norm),
	}
}

// Run processes a pre-collected batch of events.
func (p *Pipeline) Run(events []interaction.RawCaptureEvent) *interaction.Result {
	s := p.NewSession()
	for _, ev := range events {
		s.Feed(ev)
	}
	return s.Finalize()
}

// RunStream consumes events until the channel closes. Cancelling ctx
// abandons the session and returns ctx.Err().
func (p *Pipeline) RunStream(ctx context.Context, events <-chan interaction.RawCaptureEvent) (*interaction.Result, error) {
	s := p.NewSession()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return s.Finalize(), nil
			}
			s.Feed(ev)
		}
	}
}

// NewSession starts an empty capture session.
func (p *Pipeline) NewSession() *Session {
	return &Session{
		pipeline: p,
		rec:      stream.New(stream.WithLayout(p.layout)),
	}
}

// Session is one capture session fed incrementally. Like the reconstructor
// it wraps, it is owned by a single goroutine.
type Session struct {
	pipeline *Pipeline
	rec      *stream.Reconstructor
	warnings []interaction.Warning
	result   *interaction.Result
}

// Feed applies one event and returns the warnings it produced. Warnings are
// also kept for the final result.
func (s *Session) Feed(ev interaction.RawCaptureEvent) []interaction.Warning {
	w := s.rec.Feed(ev)
	s.warnings = append(s.warnings, w...)
	return w
}

// MarkComplete records a stream-close signal from the capture driver.
func (s *Session) MarkComplete() {
	s.rec.MarkComplete()
}

// EventsSeen returns how many events have been fed.
func (s *Session) EventsSeen() int {
	return s.rec.EventsSeen()
}

// Finalize freezes the session and builds the result. Later calls return
// the same result.
func (s *Session) Finalize() *interaction.Result {
	if s.result != nil {
		return s.result
	}

	doc, w := s.rec.Finalize()
	s.warnings = append(s.warnings, w...)

	proj := projector.Project(doc)
	s.warnings = append(s.warnings, proj.Warnings...)

	citations := citation.Extract(proj.ResponseText)
	matched, metrics := s.pipeline.reconciler.Reconcile(citations, proj.Sources)
	metrics.QueriesCount = len(proj.Queries)

	s.result = &interaction.Result{
		Queries:          nonNil(proj.Queries),
		Sources:          nonNil(proj.Sources),
		MatchedCitations: matched,
		Metrics:          metrics,
		ResponseText:     proj.ResponseText,
		Warnings:         nonNil(s.warnings),
	}
	return s.result
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
