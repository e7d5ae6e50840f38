// internal/admin/handler.go
//
// Network-admin JSON API.
//
// Context
// -------
// These endpoints back the admin settings page: blog search for the
// archive-blog picker, settings load and save, the discovery pass for
// selectable post types and taxonomies, and the two destructive archive
// actions (reset and batch populate).  Requests are form-encoded POSTs and
// responses are JSON, preserving the wire contract of the original Ajax
// handlers.  Authentication and CSRF framing are the reverse proxy's
// concern; the destructive actions additionally demand a one-shot token
// minted by a previous response.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/mirror"
	"github.com/klandestino/sitewide-archive/internal/populate"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// Wire action names for token scoping.
const (
	actionReset    = "reset_archive"
	actionPopulate = populate.Action
)

// Handler owns the admin routes and their process-wide collaborators.
type Handler struct {
	factory  *store.MySQL
	blogs    *blog.Directory
	settings *settings.Repository
	tokens   *TokenStore
	// mainBlog is the blog the admin context runs as, normally 1.
	mainBlog int64
	log      *zap.SugaredLogger
}

// NewHandler wires the admin API.
func NewHandler(factory *store.MySQL, blogs *blog.Directory, repo *settings.Repository, tokens *TokenStore, mainBlog int64, log *zap.SugaredLogger) *Handler {
	if mainBlog == 0 {
		mainBlog = 1
	}
	if log == nil {
		log = zap.S()
	}
	return &Handler{
		factory: factory, blogs: blogs, settings: repo,
		tokens: tokens, mainBlog: mainBlog, log: log,
	}
}

// Routes mounts the admin API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/blogs/search", h.searchBlogs)
	r.Get("/settings", h.getSettings)
	r.Post("/settings", h.saveSettings)
	r.Get("/discovery/post-types", h.postTypes)
	r.Get("/discovery/taxonomies", h.taxonomies)
	r.Post("/archive/reset", h.resetArchive)
	r.Post("/archive/populate", h.populateArchive)
	r.Route("/events", func(ev chi.Router) {
		ev.Post("/post-saved", h.eventPostSaved)
		ev.Post("/terms-set", h.eventTermsSet)
		ev.Post("/meta-updated", h.eventMetaUpdated)
		ev.Post("/post-deleted", h.eventPostDeleted)
		ev.Post("/blog-removed", h.eventBlogRemoved)
		ev.Post("/blog-visibility", h.eventBlogVisibility)
	})
	return r
}

// engine assembles the request-local replication stack rooted at blogID.
func (h *Handler) engine(ctx context.Context, blogID int64) (*mirror.Engine, store.Session, *tenancy.Switcher, settings.Settings, error) {
	set, err := h.settings.Resolve(ctx)
	if err != nil {
		return nil, nil, nil, settings.Settings{}, err
	}
	sess := h.factory.Session(blogID)
	sw := tenancy.New(sess)
	eng := mirror.New(sess, sw, set, h.blogs, mirror.Hooks{}, h.log)
	return eng, sess, sw, set, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// searchBlogs resolves the `query` field, which may be a domain fragment, a
// single blog id, or a repeated list of ids, into enriched blog info rows.
func (h *Handler) searchBlogs(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	values := r.Form["query"]
	var (
		recs []blog.Record
		err  error
	)
	ids := make([]int64, 0, len(values))
	numeric := len(values) > 0
	for _, v := range values {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			numeric = false
			break
		}
		ids = append(ids, n)
	}

	switch {
	case numeric:
		recs, err = h.blogs.ByIDs(r.Context(), ids)
	case len(values) > 0 && values[0] != "":
		recs, err = h.blogs.SearchByDomain(r.Context(), values[0])
	}
	if err != nil {
		h.log.Errorw("blog search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "blog search failed")
		return
	}

	infos := make([]blog.Info, 0, len(recs))
	for _, rec := range recs {
		info, err := h.blogs.Details(r.Context(), rec)
		if err != nil {
			h.log.Errorw("blog details failed", "blog", rec.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "blog search failed")
			return
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

// getSettings returns the resolved settings, the archive copy count, and
// fresh tokens for the two destructive actions.
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	set, err := h.settings.Resolve(r.Context())
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}

	var count int64
	if set.Enabled() {
		sess := h.factory.Session(set.ArchiveBlogID)
		count, err = sess.CountPosts(r.Context(), store.PostFilter{
			Types: []string{settings.ArchivePostType},
		})
		if err != nil {
			h.log.Errorw("archive count failed", "err", err)
			writeError(w, http.StatusInternalServerError, "archive count failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settings":   set,
		"post_count": count,
		"security": map[string]string{
			"reset":    h.tokens.Issue(actionReset),
			"populate": h.tokens.Issue(actionPopulate),
		},
	})
}

// saveSettings overlays posted keys onto the stored settings.  Checkbox
// semantics from the original form are preserved: an absent enable toggle
// means unchecked, so it is forced off rather than left as stored.
func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	set, err := h.settings.Resolve(r.Context())
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}

	if v := r.PostForm.Get("archive_blog_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id >= 0 {
			set.ArchiveBlogID = id
		}
	}
	if vs, ok := r.PostForm["post_types"]; ok {
		set.PostTypes = vs
	}
	if vs, ok := r.PostForm["taxonomies"]; ok {
		set.Taxonomies = vs
	}
	set.CopyMeta = formBool(r, "meta")
	set.EnableSearch = formBool(r, "enable_search")
	set.EnableArchive = formBool(r, "enable_archive")
	set.EnableCategories = formBool(r, "enable_categories")
	set.EnableTags = formBool(r, "enable_tags")
	set.EnableAuthor = formBool(r, "enable_author")

	if err := h.settings.Save(r.Context(), set); err != nil {
		h.log.Errorw("settings save failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings save failed")
		return
	}
	h.log.Infow("settings saved", "archive_blog", set.ArchiveBlogID)
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "settings": set})
}

// formBool treats presence with a non-empty, non-"0", non-"false" value as
// true; absence is false.
func formBool(r *http.Request, name string) bool {
	v := r.PostForm.Get(name)
	return v != "" && v != "0" && v != "false"
}

// postTypes lists selectable post types from the main blog.
func (h *Handler) postTypes(w http.ResponseWriter, r *http.Request) {
	sess := h.factory.Session(h.mainBlog)
	types, err := settings.AvailablePostTypes(r.Context(), sess)
	if err != nil {
		h.log.Errorw("post-type discovery failed", "err", err)
		writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// taxonomies lists selectable taxonomies from the main blog.
func (h *Handler) taxonomies(w http.ResponseWriter, r *http.Request) {
	sess := h.factory.Session(h.mainBlog)
	taxonomies, err := settings.AvailableTaxonomies(r.Context(), sess)
	if err != nil {
		h.log.Errorw("taxonomy discovery failed", "err", err)
		writeError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	writeJSON(w, http.StatusOK, taxonomies)
}

// resetArchive wipes every mirror from the archive blog.
func (h *Handler) resetArchive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	if !h.tokens.Consume(actionReset, r.PostForm.Get("security")) {
		writeError(w, http.StatusForbidden, "invalid security token")
		return
	}

	eng, _, _, _, err := h.engine(r.Context(), h.mainBlog)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.WipeAll(r.Context()); err != nil {
		h.log.Errorw("archive reset failed", "err", err)
		writeError(w, http.StatusInternalServerError, "archive reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": "all"})
}

// populateArchive runs one batch of the incremental rebuild and returns the
// advanced checkpoint.
func (h *Handler) populateArchive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	if !h.tokens.Consume(actionPopulate, r.PostForm.Get("security")) {
		writeError(w, http.StatusForbidden, "invalid security token")
		return
	}

	eng, sess, sw, set, err := h.engine(r.Context(), h.mainBlog)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}

	ctrl := populate.New(sess, sw, set, h.blogs, eng, h.tokens, h.log)
	in := populate.ParseCheckpoint(r.PostForm.Get)
	step, err := ctrl.Step(r.Context(), in)
	if err != nil {
		h.log.Errorw("populate batch failed", "blog", step.Blog, "err", err)
		writeError(w, http.StatusInternalServerError, "populate batch failed")
		return
	}
	writeJSON(w, http.StatusOK, step)
}
