package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/capturelog"
	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/ingest"
	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/telemetry"
)

// IngestInput names a capture log to process. Exactly one of Path or Reader
// must be set. Path is validated against the allowed directories; Reader is
// trusted (the CLI opens local files and stdin itself).
type IngestInput struct {
	Path   string
	Reader io.Reader
	Label  *string
}

// IngestOutput contains the result of the Ingest operation.
type IngestOutput struct {
	ID          string                `json:"id"`
	Label       *string               `json:"label,omitempty"`
	EventsCount int                   `json:"events_count"`
	Completed   bool                  `json:"completed"`
	Metrics     interaction.Metrics   `json:"metrics"`
	Warnings    []interaction.Warning `json:"warnings"`
}

// AnalyzeOutput is the dry-run result: the full interaction, nothing stored.
type AnalyzeOutput struct {
	EventsCount int                 `json:"events_count"`
	Completed   bool                `json:"completed"`
	Result      *interaction.Result `json:"result"`
}

// Ingest processes a capture log and stores the resulting interaction.
func Ingest(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger, input IngestInput) (*IngestOutput, error) {
	label, err := NormalizeLabel(input.Label)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	run, err := process(ctx, cfg, logger, input)
	if err != nil {
		return nil, err
	}

	// Make draws from a process-wide monotonic source, so IDs minted in the
	// same millisecond still sort in creation order.
	rec := &db.Record{
		ID:          ulid.Make().String(),
		Label:       label,
		EventsCount: run.events,
		Completed:   run.completed,
		CreatedAt:   start.Unix(),
		Result:      run.result,
	}
	if err := db.Insert(ctx, database, rec); err != nil {
		return nil, err
	}

	telemetry.RecordSession("store", run.events, run.result, run.completed, time.Since(start))
	logger.Info("interaction ingested",
		zap.String("id", rec.ID),
		zap.Int("events", run.events),
		zap.Int("sources_found", run.result.Metrics.SourcesFoundCount),
		zap.Int("sources_used", run.result.Metrics.SourcesUsedCount),
		zap.Int("extra_links", run.result.Metrics.ExtraLinksCount),
		zap.Int("warnings", len(run.result.Warnings)),
	)

	return &IngestOutput{
		ID:          rec.ID,
		Label:       label,
		EventsCount: run.events,
		Completed:   run.completed,
		Metrics:     run.result.Metrics,
		Warnings:    run.result.Warnings,
	}, nil
}

// Analyze processes a capture log without storing anything.
func Analyze(ctx context.Context, cfg *config.Config, logger *zap.Logger, input IngestInput) (*AnalyzeOutput, error) {
	start := time.Now()
	run, err := process(ctx, cfg, logger, input)
	if err != nil {
		return nil, err
	}
	telemetry.RecordSession("dry_run", run.events, run.result, run.completed, time.Since(start))

	return &AnalyzeOutput{
		EventsCount: run.events,
		Completed:   run.completed,
		Result:      run.result,
	}, nil
}

type sessionRun struct {
	result    *interaction.Result
	events    int
	completed bool
}

// process decodes the capture log and feeds it through one ingestion
// session. Capture log line warnings come first in the result.
func process(ctx context.Context, cfg *config.Config, logger *zap.Logger, input IngestInput) (*sessionRun, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.CaptureMaxBytes
	if limit <= 0 {
		limit = config.DefaultCaptureMaxBytes
	}

	r, closeFn, err := openCapture(input, cfg, limit)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	counted := &countingReader{r: io.LimitReader(r, limit+1)}
	dec := capturelog.NewDecoder(counted)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan interaction.RawCaptureEvent, 64)
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- capturelog.Pump(ctx, dec, events)
	}()

	session := ingest.New(ingest.WithNormalizer(cfg.Normalizer())).NewSession()
	for ev := range events {
		for _, w := range session.Feed(ev) {
			logger.Debug("event skipped",
				zap.String("kind", string(w.Kind)),
				zap.Int("event_index", w.EventIndex),
				zap.String("detail", w.Message),
			)
		}
	}
	if err := <-pumpErr; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read capture log: %w", err))
	}
	if counted.n > limit {
		return nil, errors.NewCaptureTooLarge(limit, counted.n)
	}

	res := session.Finalize()
	if lineWarnings := dec.Warnings(); len(lineWarnings) > 0 {
		res.Warnings = append(append([]interaction.Warning{}, lineWarnings...), res.Warnings...)
	}

	completed := true
	for _, w := range res.Warnings {
		logger.Warn("ingest warning",
			zap.String("kind", string(w.Kind)),
			zap.Int("event_index", w.EventIndex),
			zap.String("detail", w.Message),
		)
		if w.Kind == interaction.WarnPartialCapture {
			completed = false
		}
	}

	return &sessionRun{result: res, events: session.EventsSeen(), completed: completed}, nil
}

// openCapture resolves the input to a reader. Files given by path are
// size-checked before any bytes are read.
func openCapture(input IngestInput, cfg *config.Config, limit int64) (io.Reader, func(), error) {
	hasPath := input.Path != ""
	hasReader := input.Reader != nil
	if hasPath == hasReader {
		return nil, nil, errors.NewInvalidRequest("must specify exactly one of path or reader")
	}
	if hasReader {
		return input.Reader, func() {}, nil
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, nil, err
	}
	f, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.CiteError); ok {
			return nil, nil, err
		}
		return nil, nil, errors.NewInternal(fmt.Errorf("failed to open capture log: %w", err))
	}
	if info, err := f.Stat(); err == nil && info.Size() > limit {
		f.Close()
		return nil, nil, errors.NewCaptureTooLarge(limit, info.Size())
	}
	return f, func() { f.Close() }, nil
}

// countingReader tracks bytes read so oversized input can be detected after
// the limit reader stops.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
