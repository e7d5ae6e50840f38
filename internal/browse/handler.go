// internal/browse/handler.go
//
// Read-side listing API.
//
// Context
// -------
// Serves the blog-facing listings the redirector cares about: search,
// archive, category, tag, and author browsing.  Each request resolves the
// sitewide settings, runs its query through the redirector, and renders
// hits with origin-correct ids, permalinks, and thumbnail references, so a
// caller cannot tell whether the rows came from the local blog or from the
// consolidated archive.
package browse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/redirect"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// DefaultPerPage caps listing size when the client does not ask.
const DefaultPerPage = 10

// Item is one rendered listing hit.
type Item struct {
	ID          int64  `json:"id"`
	BlogID      int64  `json:"blog_id"`
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt"`
	Date        string `json:"date"`
	Permalink   string `json:"permalink"`
	ThumbnailID int64  `json:"thumbnail_id,omitempty"`
}

// Handler owns the listing routes.
type Handler struct {
	factory  *store.MySQL
	blogs    *blog.Directory
	settings *settings.Repository
	mainBlog int64
	log      *zap.SugaredLogger
}

// NewHandler wires the read-side API.
func NewHandler(factory *store.MySQL, blogs *blog.Directory, repo *settings.Repository, mainBlog int64, log *zap.SugaredLogger) *Handler {
	if mainBlog == 0 {
		mainBlog = 1
	}
	if log == nil {
		log = zap.S()
	}
	return &Handler{factory: factory, blogs: blogs, settings: repo, mainBlog: mainBlog, log: log}
}

// Routes mounts the listing endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.search)
	r.Get("/archive", h.archive)
	r.Get("/category/{slug}", h.category)
	r.Get("/tag/{slug}", h.tag)
	r.Get("/author/{id}", h.author)
	return r
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("s")
	h.serve(w, r, redirect.KindSearch, func(f *store.PostFilter) {
		f.Search = s
	})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, redirect.KindArchive, func(*store.PostFilter) {})
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.serve(w, r, redirect.KindCategory, func(f *store.PostFilter) {
		f.Taxonomy = "category"
		f.TermSlug = slug
	})
}

func (h *Handler) tag(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.serve(w, r, redirect.KindTag, func(f *store.PostFilter) {
		f.Taxonomy = "post_tag"
		f.TermSlug = slug
	})
}

func (h *Handler) author(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "bad author id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, redirect.KindAuthor, func(f *store.PostFilter) {
		f.AuthorID = id
	})
}

// serve executes one listing query through the redirector and renders the
// hits.  The serving blog comes from the `blog` query param, defaulting to
// the main blog; `context=admin` marks administrative listings, which the
// redirector leaves local.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, kind redirect.Kind, narrow func(*store.PostFilter)) {
	ctx := r.Context()
	set, err := h.settings.Resolve(ctx)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}

	blogID := h.mainBlog
	if v := r.URL.Query().Get("blog"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			blogID = n
		}
	}
	perPage := DefaultPerPage
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			perPage = n
		}
	}

	sess := h.factory.Session(blogID)
	sw := tenancy.New(sess)
	rd := redirect.New(sw, set, h.blogs, h.log)

	q := &redirect.Query{
		Kind:     kind,
		Admin:    r.URL.Query().Get("context") == "admin",
		Embedded: r.URL.Query().Get("embedded") != "",
		Types:    set.PostTypes,
	}

	results, err := rd.Run(ctx, q, func(ctx context.Context) ([]*store.Post, error) {
		f := store.PostFilter{
			Status: "publish",
			Types:  q.Types,
			Limit:  perPage,
		}
		narrow(&f)
		return sess.Posts(ctx, f)
	})
	if err != nil {
		h.log.Errorw("listing query failed", "kind", kind, "blog", blogID, "err", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	localURL, err := h.blogs.SiteURL(ctx, blogID)
	if err != nil {
		h.log.Errorw("siteurl lookup failed", "blog", blogID, "err", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	items := make([]Item, 0, len(results))
	for _, res := range results {
		original := fmt.Sprintf("%s/?p=%d", strings.TrimRight(localURL, "/"), res.Post.ID)
		link, err := rd.RewritePermalink(ctx, original, res)
		if err != nil {
			h.log.Warnw("permalink rewrite failed", "post", res.Post.ID, "err", err)
			link = original
		}

		item := Item{
			ID:        res.Post.ID,
			BlogID:    blogID,
			Title:     res.Post.Title,
			Excerpt:   res.Post.Excerpt,
			Date:      res.Post.Date.Format(time.RFC3339),
			Permalink: link,
		}
		if res.OriginBlog != 0 {
			item.BlogID = res.OriginBlog
		}

		// Thumbnail references live on the origin post, so resolve them
		// inside the origin-blog scope.
		end := rd.BeginThumbnail(res)
		metas, merr := sess.PostMeta(ctx, res.Post.ID)
		end()
		if merr == nil {
			for _, m := range metas {
				if m.Key == "_thumbnail_id" {
					if id, perr := strconv.ParseInt(m.Value, 10, 64); perr == nil {
						item.ThumbnailID = id
					}
					break
				}
			}
		}

		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
