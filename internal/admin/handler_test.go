// internal/admin/handler_test.go
//
// Route-level tests over httptest and sqlmock.  The settings-save checkbox
// overlay and the event intake's never-block contract are the load-bearing
// behaviors here; the SQL layers underneath carry their own tests.
//
// Run: go test ./internal/admin -v

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
)

func newHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sx := sqlx.NewDb(db, "mysql")
	h := NewHandler(
		store.NewMySQL(sx, "wp_"),
		blog.NewDirectory(sx, "wp_"),
		settings.NewRepository(sx, "wp_"),
		NewTokenStore(),
		1,
		zap.NewNop().Sugar(),
	)
	return h, mock
}

func postForm(t *testing.T, h *Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

// An unchecked checkbox never reaches the form body, so every enable toggle
// absent from the POST must come back off even when the stored blob has it
// on.  List fields behave the other way: absent means untouched.
func TestSaveSettingsForcesAbsentToggles(t *testing.T) {
	h, mock := newHandler(t)

	stored := `{"archive_blog_id":5,"taxonomies":["category"],"meta":true,"enable_search":true,"enable_tags":true}`
	mock.ExpectQuery(`SELECT meta_value FROM wp_sitemeta WHERE meta_key = \?`).
		WithArgs(settings.OptionKey).
		WillReturnRows(sqlmock.NewRows([]string{"meta_value"}).AddRow(stored))
	mock.ExpectExec(`INSERT INTO wp_sitemeta \(meta_key, meta_value\)`).
		WithArgs(settings.OptionKey, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rr := postForm(t, h, "/settings", "archive_blog_id=5&post_types=post&enable_archive=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var out struct {
		Updated  bool              `json:"updated"`
		Settings settings.Settings `json:"settings"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Updated {
		t.Error("updated = false")
	}

	s := out.Settings
	if s.ArchiveBlogID != 5 {
		t.Errorf("archive blog = %d, want 5", s.ArchiveBlogID)
	}
	if !s.EnableArchive {
		t.Error("posted enable_archive=1 did not stick")
	}
	// Stored true, absent from the form: forced off.
	if s.CopyMeta || s.EnableSearch || s.EnableTags {
		t.Errorf("absent toggles survived: meta=%v search=%v tags=%v",
			s.CopyMeta, s.EnableSearch, s.EnableTags)
	}
	// Lists overlay only when posted.
	if len(s.PostTypes) != 1 || s.PostTypes[0] != "post" {
		t.Errorf("post types = %v, want [post]", s.PostTypes)
	}
	if len(s.Taxonomies) != 1 || s.Taxonomies[0] != "category" {
		t.Errorf("taxonomies = %v, want stored [category]", s.Taxonomies)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

// A mirroring failure must never fail the event response: the origin write
// already happened.
func TestEventPostSavedSwallowsMirrorFailure(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectQuery(`SELECT meta_value FROM wp_sitemeta WHERE meta_key = \?`).
		WithArgs(settings.OptionKey).
		WillReturnRows(sqlmock.NewRows([]string{"meta_value"}).
			AddRow(`{"archive_blog_id":5}`))
	mock.ExpectQuery(`SELECT blog_id, domain, path, public, archived, mature, spam, deleted FROM wp_blogs WHERE blog_id = \?`).
		WithArgs(int64(3)).
		WillReturnError(errors.New("connection lost"))

	rr := postForm(t, h, "/events/post-saved", "blog=3&post=42")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204; body %s", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEventPostSavedRejectsMissingIDs(t *testing.T) {
	h, mock := newHandler(t)

	for _, body := range []string{"", "blog=3", "post=42", "blog=0&post=42"} {
		rr := postForm(t, h, "/events/post-saved", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("rejected events touched the database: %v", err)
	}
}

func TestResetArchiveRequiresToken(t *testing.T) {
	h, mock := newHandler(t)

	rr := postForm(t, h, "/archive/reset", "security=bogus")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("rejected reset touched the database: %v", err)
	}
}
