package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/ops"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// ListPageData is the template data for the interaction list page.
type ListPageData struct {
	PageData
	Items      []ListRow
	Pagination ops.Pagination
	Deleted    bool
}

// ListRow is one interaction in the list table.
type ListRow struct {
	ID             string
	Label          string
	CreatedAt      int64
	Completed      bool
	Metrics        interaction.Metrics
	CitationsCount int
	WarningsCount  int
}

// DetailPageData is the template data for the interaction detail page.
type DetailPageData struct {
	PageData
	Interaction  *ops.FetchOutput
	RenderedHTML template.HTML
	DisplayName  string
	Sources      []SourceRow
}

// SourceRow is a captured source plus how often the response cited it.
type SourceRow struct {
	interaction.SourceRecord
	Cited int
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"formatTime": formatTime,
		"formatRank": formatRank,
		"deref":      deref,
		"hasValue":   hasValue,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"list":   "list.html",
		"detail": "detail.html",
		"error":  "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logger,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Render to a buffer so a failed template never leaves a half-written page.
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var cErr *errors.CiteError
	if !stderrors.As(err, &cErr) {
		r.logger.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
		cErr = errors.NewInternal(err)
		cErr.Message = "an internal error occurred"
	}

	if wantsJSON(req) {
		renderJSON(w, cErr.Status, map[string]any{
			"error": map[string]any{
				"code":    string(cErr.Code),
				"message": cErr.Message,
				"status":  cErr.Status,
			},
		})
		return
	}

	r.renderPageStatus(w, cErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", cErr.Status),
			Version: r.version,
		},
		StatusCode: cErr.Status,
		Message:    cErr.Message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the response text is omitted by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatRank formats an average rank to two decimals, or "-" when unset.
func formatRank(avg *float64) string {
	if avg == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *avg)
}

// deref dereferences a pointer, returning the zero value if nil.
func deref(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface()
		}
		return rv.Elem().Interface()
	}
	return v
}

// hasValue checks if a pointer value is non-nil.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return !rv.IsNil()
	}
	return true
}
