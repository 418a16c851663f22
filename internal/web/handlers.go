package web

import (
	"database/sql"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	logger   *zap.Logger
	renderer *Renderer
}

// HandleList handles GET /interactions: stored interactions, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	rows := make([]ListRow, 0, len(result.Items))
	for _, item := range result.Items {
		rows = append(rows, ListRow{
			ID:             item.ID,
			Label:          displayName(item.Label, item.ID),
			CreatedAt:      item.CreatedAt,
			Completed:      item.Completed,
			Metrics:        item.Metrics,
			CitationsCount: item.CitationsCount,
			WarningsCount:  item.WarningsCount,
		})
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Interactions",
			Version: h.renderer.version,
		},
		Items:      rows,
		Pagination: result.Pagination,
		Deleted:    r.URL.Query().Get("deleted") != "",
	})
}

// HandleDetail handles GET /interactions/{id}: one interaction with its
// rendered response, sources and citations.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("interaction ID is required"))
		return
	}

	includeText := true
	out, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: id, IncludeText: &includeText})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	name := displayName(out.Label, out.ID)
	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   name,
			Version: h.renderer.version,
		},
		Interaction:  out,
		RenderedHTML: renderMarkdown(out.ResponseText),
		DisplayName:  name,
		Sources:      sourceRows(out),
	})
}

// HandleDelete handles DELETE /interactions/{id} and the form fallback
// POST /interactions/{id}/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("interaction ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info("interaction deleted", zap.String("id", result.ID))

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/interactions?deleted="+result.ID, http.StatusSeeOther)
}

// sourceRows counts matched citations per captured source.
func sourceRows(out *ops.FetchOutput) []SourceRow {
	type key struct{ group, rank int }
	cited := make(map[key]int)
	for _, mc := range out.MatchedCitations {
		if mc.Source != nil {
			cited[key{mc.Source.GroupIndex, mc.Source.RankWithinGroup}]++
		}
	}

	rows := make([]SourceRow, 0, len(out.Sources))
	for _, s := range out.Sources {
		rows = append(rows, SourceRow{
			SourceRecord: s,
			Cited:        cited[key{s.GroupIndex, s.RankWithinGroup}],
		})
	}
	return rows
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// displayName returns the label if present, or a truncated ID.
func displayName(label *string, id string) string {
	if label != nil && *label != "" {
		return *label
	}
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
