// internal/mirror/delete.go
//
// Removal of mirror copies.
//
// Three granularities: one post's mirrors (trash or delete of the origin),
// every mirror of one blog (blog deactivated, archived, spammed, marked
// mature, deleted, or gone private), and the whole archive (administrative
// wipe).  Rows whose guid does not decode are not mirrors and are never
// touched.
package mirror

import (
	"context"

	"github.com/klandestino/sitewide-archive/internal/identity"
	"github.com/klandestino/sitewide-archive/internal/metrics"
	"github.com/klandestino/sitewide-archive/internal/settings"
)

// OnContentDeleted removes the archive copies of one post of the active
// blog.  Normally exactly one copy exists, but every exact identity match
// is removed.
func (e *Engine) OnContentDeleted(ctx context.Context, postID int64) error {
	origin := e.sess.ActiveBlog()
	if !e.set.Enabled() || e.set.ArchiveBlogID == origin {
		return nil
	}
	if e.hooks.FilterDelete != nil && !e.hooks.FilterDelete(postID, origin) {
		return nil
	}

	return e.sw.With(e.set.ArchiveBlogID, func() error {
		ids, err := e.sess.PostsByGUID(ctx, identity.Encode(origin, postID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := e.sess.DeletePost(ctx, id); err != nil {
				return err
			}
			metrics.MirrorsDeletedTotal.Inc()
		}
		if len(ids) > 0 {
			e.log.Debugw("mirrors deleted",
				"origin_blog", origin, "post", postID, "count", len(ids))
		}
		return nil
	})
}

// OnBlogRemoved purges every mirror whose identity points at blogID.  The
// prefix scan over-matches by construction, so each hit is re-validated by
// decoding before deletion.
func (e *Engine) OnBlogRemoved(ctx context.Context, blogID int64) error {
	if !e.set.Enabled() || e.set.ArchiveBlogID == e.sess.ActiveBlog() {
		return nil
	}

	return e.sw.With(e.set.ArchiveBlogID, func() error {
		refs, err := e.sess.PostsByGUIDPrefix(ctx, identity.BlogPrefix(blogID))
		if err != nil {
			return err
		}
		var deleted int
		for _, ref := range refs {
			b, _, ok := identity.Decode(ref.GUID)
			if !ok || b != blogID {
				continue
			}
			if err := e.sess.DeletePost(ctx, ref.ID); err != nil {
				return err
			}
			metrics.MirrorsDeletedTotal.Inc()
			deleted++
		}
		e.log.Infow("blog mirrors purged", "blog", blogID, "deleted", deleted)
		return nil
	})
}

// OnBlogVisibilityChanged re-reads the blog's visibility and, when it is no
// longer public, treats it as removed for archival purposes.
func (e *Engine) OnBlogVisibilityChanged(ctx context.Context, blogID int64) error {
	public, err := e.blogs.IsPublic(ctx, blogID)
	if err != nil {
		return err
	}
	if public {
		return nil
	}
	return e.OnBlogRemoved(ctx, blogID)
}

// WipeAll empties the archive blog of every mirror and its dependent rows.
// Destructive and non-recoverable; the admin transport obtains confirmation
// before calling.
func (e *Engine) WipeAll(ctx context.Context) error {
	if !e.set.Enabled() {
		return nil
	}
	return e.sw.With(e.set.ArchiveBlogID, func() error {
		if err := e.sess.WipeArchive(ctx, settings.ArchivePostType); err != nil {
			return err
		}
		e.log.Infow("archive wiped", "archive_blog", e.set.ArchiveBlogID)
		return nil
	})
}
