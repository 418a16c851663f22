package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/interaction"
	"github.com/hpungsan/citelens/internal/ops"
)

const sessionFixture = "../ingest/testdata/session.jsonl"

func stringPtr(s string) *string { return &s }

func setupTest(t *testing.T) *Handlers {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}

	return &Handlers{
		db:       database,
		cfg:      config.DefaultConfig(),
		logger:   zap.NewNop(),
		renderer: NewRenderer(templateSub, "test", nil),
	}
}

// seedInteraction ingests the session fixture and returns its ID.
func seedInteraction(t *testing.T, h *Handlers, label string) string {
	t.Helper()
	data, err := os.ReadFile(sessionFixture)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	in := ops.IngestInput{Reader: bytes.NewReader(data)}
	if label != "" {
		in.Label = stringPtr(label)
	}
	out, err := ops.Ingest(context.Background(), h.db, h.cfg, h.logger, in)
	if err != nil {
		t.Fatalf("seed interaction %q: %v", label, err)
	}
	return out.ID
}

func serve(h *Handlers, req *http.Request) *httptest.ResponseRecorder {
	staticSub, _ := fs.Sub(staticFS, "static")
	rec := httptest.NewRecorder()
	newMux(h, staticSub).ServeHTTP(rec, req)
	return rec
}

// --- HandleList ---

func TestHandleList_Default(t *testing.T) {
	h := setupTest(t)
	seedInteraction(t, h, "loop-vars")

	req := httptest.NewRequest("GET", "/interactions", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "loop-vars") {
		t.Error("expected label 'loop-vars' in response")
	}
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("expected full layout")
	}
}

func TestHandleList_Empty(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/interactions", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No interactions found") {
		t.Error("expected empty state message")
	}
}

func TestHandleList_UnlabeledShowsTruncatedID(t *testing.T) {
	h := setupTest(t)
	id := seedInteraction(t, h, "")

	req := httptest.NewRequest("GET", "/interactions", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if !strings.Contains(rec.Body.String(), id[:10]+"...") {
		t.Error("expected truncated ID for unlabeled interaction")
	}
}

func TestHandleList_JSON(t *testing.T) {
	h := setupTest(t)
	seedInteraction(t, h, "one")
	seedInteraction(t, h, "two")

	req := httptest.NewRequest("GET", "/interactions?limit=1", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.ListOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 1 || !out.Pagination.HasMore || out.Pagination.Total != 2 {
		t.Errorf("items=%d has_more=%v total=%d, want 1/true/2", len(out.Items), out.Pagination.HasMore, out.Pagination.Total)
	}
	if out.Items[0].Metrics.SourcesUsedCount != 3 {
		t.Errorf("sources_used_count = %d, want 3", out.Items[0].Metrics.SourcesUsedCount)
	}
}

func TestHandleList_Pagination(t *testing.T) {
	h := setupTest(t)
	seedInteraction(t, h, "first")
	seedInteraction(t, h, "second")

	req := httptest.NewRequest("GET", "/interactions?limit=1", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "offset=1&limit=1") {
		t.Error("expected a next-page link")
	}
	if strings.Contains(body, ">first<") {
		t.Error("oldest interaction should not be on the first page")
	}
}

func TestHandleList_InvalidLimitFallsBack(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/interactions?limit=notanumber&offset=bad", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- HandleDetail ---

func TestHandleDetail(t *testing.T) {
	h := setupTest(t)
	id := seedInteraction(t, h, "detail-test")

	req := httptest.NewRequest("GET", "/interactions/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"detail-test",
		"go loop variable semantics",
		`<a href="https://news.example.com/story-4/">`,
		"Story three",
		"extra link",
		`class="cited"`,
		"MALFORMED_PATCH",
		"/interactions/" + id + "/delete",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("detail page missing %q", want)
		}
	}
}

func TestHandleDetail_NotFound(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/interactions/01NOTREAL", nil)
	req.SetPathValue("id", "01NOTREAL")
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error 404") {
		t.Error("expected error page")
	}
}

func TestHandleDetail_NotFoundJSON(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/interactions/01NOTREAL", nil)
	req.SetPathValue("id", "01NOTREAL")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload struct {
		Error struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != "NOT_FOUND" || payload.Error.Status != 404 {
		t.Errorf("error = %+v, want NOT_FOUND/404", payload.Error)
	}
}

func TestHandleDetail_JSON(t *testing.T) {
	h := setupTest(t)
	id := seedInteraction(t, h, "")

	req := httptest.NewRequest("GET", "/interactions/"+id, nil)
	req.SetPathValue("id", id)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	var out ops.FetchOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != id || out.ResponseText == "" || len(out.MatchedCitations) != 10 {
		t.Errorf("id=%q text=%d citations=%d", out.ID, len(out.ResponseText), len(out.MatchedCitations))
	}
}

// --- HandleDelete ---

func TestHandleDelete_JSON(t *testing.T) {
	h := setupTest(t)
	id := seedInteraction(t, h, "doomed")

	req := httptest.NewRequest("DELETE", "/interactions/"+id, nil)
	req.SetPathValue("id", id)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.DeleteOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Deleted || out.ID != id {
		t.Errorf("output = %+v", out)
	}

	if _, err := ops.Fetch(context.Background(), h.db, ops.FetchInput{ID: id}); err == nil {
		t.Error("interaction should be gone")
	}
}

func TestHandleDelete_FormRedirects(t *testing.T) {
	h := setupTest(t)
	id := seedInteraction(t, h, "doomed")

	rec := serve(h, httptest.NewRequest("POST", "/interactions/"+id+"/delete", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/interactions?deleted="+id {
		t.Errorf("Location = %q", loc)
	}
}

func TestHandleDelete_NotFound(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("DELETE", "/interactions/01NOTREAL", nil)
	req.SetPathValue("id", "01NOTREAL")
	rec := httptest.NewRecorder()
	h.HandleDelete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// --- routing ---

func TestRootRedirects(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/interactions" {
		t.Errorf("status=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/interactions", nil))
	for _, header := range []string{"Content-Security-Policy", "X-Content-Type-Options", "X-Frame-Options"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("missing %s header", header)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	h := setupTest(t)
	seedInteraction(t, h, "")

	rec := serve(h, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "citelens_sessions_ingested_total") {
		t.Error("expected citelens metrics in exposition")
	}
}

func TestStaticServed(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- helpers ---

func TestRenderMarkdown_DropsRawHTML(t *testing.T) {
	out := string(renderMarkdown("hello <script>alert(1)</script> [x](https://a.example/)"))
	if strings.Contains(out, "<script>") {
		t.Errorf("raw HTML passed through: %s", out)
	}
	if !strings.Contains(out, `<a href="https://a.example/">x</a>`) {
		t.Errorf("link not rendered: %s", out)
	}
}

func TestFormatRank(t *testing.T) {
	if got := formatRank(nil); got != "-" {
		t.Errorf("formatRank(nil) = %q, want -", got)
	}
	avg := 17.0 / 3
	if got := formatRank(&avg); got != "5.67" {
		t.Errorf("formatRank(17/3) = %q, want 5.67", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(stringPtr("named"), "01ABCDEFGHIJK"); got != "named" {
		t.Errorf("got %q", got)
	}
	if got := displayName(nil, "01ABCDEFGHIJK"); got != "01ABCDEFGH..." {
		t.Errorf("got %q", got)
	}
	if got := displayName(stringPtr(""), "short"); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestSourceRows_CountsCitations(t *testing.T) {
	src := interaction.SourceRecord{URL: "https://a.example/", GroupIndex: 0, RankWithinGroup: 2}
	out := &ops.FetchOutput{Result: interaction.Result{
		Sources: []interaction.SourceRecord{
			{URL: "https://b.example/", GroupIndex: 0, RankWithinGroup: 1},
			src,
		},
		MatchedCitations: []interaction.MatchedCitation{
			{Source: &src, Rank: 2},
			{Source: &src, Rank: 2},
			{},
		},
	}}

	rows := sourceRows(out)
	if len(rows) != 2 || rows[0].Cited != 0 || rows[1].Cited != 2 {
		t.Errorf("rows = %+v", rows)
	}
}
