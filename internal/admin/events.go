// internal/admin/events.go
//
// Live replication event intake.
//
// The host platform posts a small form event here whenever a blog writes
// content: post saved, terms set, meta updated, post trashed or deleted,
// blog removed or visibility changed.  Mirroring failures are logged and
// swallowed: the origin write has already happened and must never be
// blocked or rolled back by the archive.
package admin

import (
	"net/http"
	"strconv"
)

// eventIDs pulls the `blog` and `post` fields from an event body.
func eventIDs(r *http.Request) (blogID, postID int64, ok bool) {
	if err := r.ParseForm(); err != nil {
		return 0, 0, false
	}
	blogID, err := strconv.ParseInt(r.PostForm.Get("blog"), 10, 64)
	if err != nil || blogID < 1 {
		return 0, 0, false
	}
	postID, _ = strconv.ParseInt(r.PostForm.Get("post"), 10, 64)
	return blogID, postID, true
}

func (h *Handler) eventPostSaved(w http.ResponseWriter, r *http.Request) {
	blogID, postID, ok := eventIDs(r)
	if !ok || postID < 1 {
		writeError(w, http.StatusBadRequest, "blog and post ids required")
		return
	}
	eng, _, _, _, err := h.engine(r.Context(), blogID)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.OnContentChanged(r.Context(), postID); err != nil {
		h.log.Errorw("mirror sync failed", "blog", blogID, "post", postID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventTermsSet(w http.ResponseWriter, r *http.Request) {
	blogID, postID, ok := eventIDs(r)
	if !ok || postID < 1 {
		writeError(w, http.StatusBadRequest, "blog and post ids required")
		return
	}
	eng, _, _, _, err := h.engine(r.Context(), blogID)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.SyncTaxonomy(r.Context(), postID); err != nil {
		h.log.Errorw("taxonomy sync failed", "blog", blogID, "post", postID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventMetaUpdated(w http.ResponseWriter, r *http.Request) {
	blogID, postID, ok := eventIDs(r)
	if !ok || postID < 1 {
		writeError(w, http.StatusBadRequest, "blog and post ids required")
		return
	}
	eng, _, _, _, err := h.engine(r.Context(), blogID)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.SyncMeta(r.Context(), postID); err != nil {
		h.log.Errorw("meta sync failed", "blog", blogID, "post", postID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventPostDeleted(w http.ResponseWriter, r *http.Request) {
	blogID, postID, ok := eventIDs(r)
	if !ok || postID < 1 {
		writeError(w, http.StatusBadRequest, "blog and post ids required")
		return
	}
	eng, _, _, _, err := h.engine(r.Context(), blogID)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.OnContentDeleted(r.Context(), postID); err != nil {
		h.log.Errorw("mirror delete failed", "blog", blogID, "post", postID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventBlogRemoved(w http.ResponseWriter, r *http.Request) {
	blogID, _, ok := eventIDs(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "blog id required")
		return
	}
	// Run as the main blog: the removed blog's own context may be gone.
	eng, _, _, _, err := h.engine(r.Context(), h.mainBlog)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.OnBlogRemoved(r.Context(), blogID); err != nil {
		h.log.Errorw("blog mirror purge failed", "blog", blogID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventBlogVisibility(w http.ResponseWriter, r *http.Request) {
	blogID, _, ok := eventIDs(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "blog id required")
		return
	}
	eng, _, _, _, err := h.engine(r.Context(), h.mainBlog)
	if err != nil {
		h.log.Errorw("settings resolve failed", "err", err)
		writeError(w, http.StatusInternalServerError, "settings unavailable")
		return
	}
	if err := eng.OnBlogVisibilityChanged(r.Context(), blogID); err != nil {
		h.log.Errorw("blog visibility purge failed", "blog", blogID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
