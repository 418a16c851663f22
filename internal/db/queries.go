package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/interaction"
)

// Record is one stored interaction.
type Record struct {
	ID          string
	Label       *string
	EventsCount int
	Completed   bool
	CreatedAt   int64
	Result      *interaction.Result
}

// Summary is the list view of a stored interaction.
type Summary struct {
	ID             string              `json:"id"`
	Label          *string             `json:"label,omitempty"`
	Metrics        interaction.Metrics `json:"metrics"`
	CitationsCount int                 `json:"citations_count"`
	WarningsCount  int                 `json:"warnings_count"`
	Completed      bool                `json:"completed"`
	CreatedAt      int64               `json:"created_at"`
}

// Insert stores an interaction and all of its rows in one transaction.
func Insert(ctx context.Context, db *sql.DB, rec *Record) error {
	res := rec.Result
	if res == nil {
		return errors.NewInvalidRequest("record has no result")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	m := res.Metrics
	_, err = tx.ExecContext(ctx, `
		INSERT INTO interactions (
			id, label, response_text, queries_count, sources_found_count,
			sources_used_count, average_rank, extra_links_count,
			events_count, completed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, toNullString(rec.Label), res.ResponseText, m.QueriesCount, m.SourcesFoundCount,
		m.SourcesUsedCount, toNullFloat(m.AverageRank), m.ExtraLinksCount,
		rec.EventsCount, boolToInt(rec.Completed), rec.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	for _, q := range res.Queries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queries (interaction_id, idx, text) VALUES (?, ?, ?)`,
			rec.ID, q.Index, q.Text,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	for i, s := range res.Sources {
		// RFC 3339 text covers years a nanosecond int64 cannot.
		var published sql.NullString
		if s.PublishedAt != nil {
			published = sql.NullString{String: s.PublishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sources (
				interaction_id, idx, url, title, domain, snippet,
				published_at, rank_within_group, group_index
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID, i, s.URL, s.Title, s.Domain, toNullString(s.Snippet),
			published, s.RankWithinGroup, s.GroupIndex,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	for _, mc := range res.MatchedCitations {
		var sourceIdx, rank sql.NullInt64
		if mc.Source != nil {
			if i := sourceIndex(res.Sources, mc.Source); i >= 0 {
				sourceIdx = sql.NullInt64{Int64: int64(i), Valid: true}
				rank = sql.NullInt64{Int64: int64(mc.Rank), Valid: true}
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO citations (
				interaction_id, sequence_index, url, title_or_link_text, kind,
				span_start, span_end, source_idx, rank
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID, mc.SequenceIndex, mc.URL, mc.TitleOrLinkText, string(mc.Kind),
			mc.TextSpan.Start, mc.TextSpan.End, sourceIdx, rank,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	for i, w := range res.Warnings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO warnings (interaction_id, idx, kind, event_index, message) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, string(w.Kind), w.EventIndex, w.Message,
		); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// sourceIndex locates src in sources, by identity first, then by position fields.
func sourceIndex(sources []interaction.SourceRecord, src *interaction.SourceRecord) int {
	for i := range sources {
		if &sources[i] == src {
			return i
		}
	}
	for i, s := range sources {
		if s.GroupIndex == src.GroupIndex && s.RankWithinGroup == src.RankWithinGroup && s.URL == src.URL {
			return i
		}
	}
	return -1
}

// GetByID retrieves a stored interaction with all of its rows.
// Metrics are returned exactly as stored.
func GetByID(ctx context.Context, db *sql.DB, id string) (*Record, error) {
	rec := &Record{ID: id, Result: &interaction.Result{}}
	res := rec.Result

	var (
		label     sql.NullString
		avgRank   sql.NullFloat64
		completed int
	)
	err := db.QueryRowContext(ctx, `
		SELECT label, response_text, queries_count, sources_found_count,
			sources_used_count, average_rank, extra_links_count,
			events_count, completed, created_at
		FROM interactions
		WHERE id = ?
	`, id).Scan(
		&label, &res.ResponseText, &res.Metrics.QueriesCount, &res.Metrics.SourcesFoundCount,
		&res.Metrics.SourcesUsedCount, &avgRank, &res.Metrics.ExtraLinksCount,
		&rec.EventsCount, &completed, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rec.Label = fromNullString(label)
	rec.Completed = completed != 0
	if avgRank.Valid {
		res.Metrics.AverageRank = &avgRank.Float64
	}

	if res.Queries, err = loadQueries(ctx, db, id); err != nil {
		return nil, errors.NewInternal(err)
	}
	if res.Sources, err = loadSources(ctx, db, id); err != nil {
		return nil, errors.NewInternal(err)
	}
	if res.MatchedCitations, err = loadCitations(ctx, db, id, res.Sources); err != nil {
		return nil, errors.NewInternal(err)
	}
	if res.Warnings, err = loadWarnings(ctx, db, id); err != nil {
		return nil, errors.NewInternal(err)
	}
	return rec, nil
}

func loadQueries(ctx context.Context, db *sql.DB, id string) ([]interaction.SearchQuery, error) {
	rows, err := db.QueryContext(ctx, `SELECT idx, text FROM queries WHERE interaction_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	queries := []interaction.SearchQuery{}
	for rows.Next() {
		var q interaction.SearchQuery
		if err := rows.Scan(&q.Index, &q.Text); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func loadSources(ctx context.Context, db *sql.DB, id string) ([]interaction.SourceRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT url, title, domain, snippet, published_at, rank_within_group, group_index
		FROM sources
		WHERE interaction_id = ?
		ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := []interaction.SourceRecord{}
	for rows.Next() {
		var (
			s         interaction.SourceRecord
			snippet   sql.NullString
			published sql.NullString
		)
		if err := rows.Scan(&s.URL, &s.Title, &s.Domain, &snippet, &published, &s.RankWithinGroup, &s.GroupIndex); err != nil {
			return nil, err
		}
		s.Snippet = fromNullString(snippet)
		if published.Valid {
			t, err := time.Parse(time.RFC3339Nano, published.String)
			if err != nil {
				return nil, fmt.Errorf("source %d published_at: %w", len(sources), err)
			}
			t = t.UTC()
			s.PublishedAt = &t
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// loadCitations reads citations in sequence order. Matched sources point
// into sources.
func loadCitations(ctx context.Context, db *sql.DB, id string, sources []interaction.SourceRecord) ([]interaction.MatchedCitation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sequence_index, url, title_or_link_text, kind, span_start, span_end, source_idx, rank
		FROM citations
		WHERE interaction_id = ?
		ORDER BY sequence_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	citations := []interaction.MatchedCitation{}
	for rows.Next() {
		var (
			mc        interaction.MatchedCitation
			kind      string
			sourceIdx sql.NullInt64
			rank      sql.NullInt64
		)
		if err := rows.Scan(&mc.SequenceIndex, &mc.URL, &mc.TitleOrLinkText, &kind,
			&mc.TextSpan.Start, &mc.TextSpan.End, &sourceIdx, &rank); err != nil {
			return nil, err
		}
		mc.Kind = interaction.CitationKind(kind)
		if sourceIdx.Valid && int(sourceIdx.Int64) < len(sources) {
			mc.Source = &sources[sourceIdx.Int64]
			mc.Rank = int(rank.Int64)
		}
		citations = append(citations, mc)
	}
	return citations, rows.Err()
}

func loadWarnings(ctx context.Context, db *sql.DB, id string) ([]interaction.Warning, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kind, event_index, message FROM warnings
		WHERE interaction_id = ?
		ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warnings := []interaction.Warning{}
	for rows.Next() {
		var (
			w    interaction.Warning
			kind string
		)
		if err := rows.Scan(&kind, &w.EventIndex, &w.Message); err != nil {
			return nil, err
		}
		w.Kind = interaction.WarningKind(kind)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// List returns interaction summaries, newest first.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.label, i.queries_count, i.sources_found_count, i.sources_used_count,
			i.average_rank, i.extra_links_count, i.completed, i.created_at,
			(SELECT COUNT(*) FROM citations c WHERE c.interaction_id = i.id),
			(SELECT COUNT(*) FROM warnings w WHERE w.interaction_id = i.id)
		FROM interactions i
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s         Summary
			label     sql.NullString
			avgRank   sql.NullFloat64
			completed int
		)
		if err := rows.Scan(&s.ID, &label, &s.Metrics.QueriesCount, &s.Metrics.SourcesFoundCount,
			&s.Metrics.SourcesUsedCount, &avgRank, &s.Metrics.ExtraLinksCount, &completed, &s.CreatedAt,
			&s.CitationsCount, &s.WarningsCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Label = fromNullString(label)
		s.Completed = completed != 0
		if avgRank.Valid {
			avg := avgRank.Float64
			s.Metrics.AverageRank = &avg
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return summaries, nil
}

// Exists reports whether an interaction with id is stored.
func Exists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM interactions WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// Count returns the number of stored interactions.
func Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// Delete removes an interaction and its rows.
func Delete(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, table := range []string{"queries", "sources", "citations", "warnings"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE interaction_id = ?`, id); err != nil {
			return errors.NewInternal(err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
