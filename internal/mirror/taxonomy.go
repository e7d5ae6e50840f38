// internal/mirror/taxonomy.go
//
// Taxonomy and metadata replication for one post.
//
// Both syncs replace the archive-side rows wholesale rather than diffing:
// term counts must be recomputed either way, and the origin is always the
// full source of truth.  Each pass re-verifies eligibility and performs its
// own scoped switch into the archive blog, so it is safe to call standalone
// (a term-assignment event without a post save) or nested inside a post
// sync, where the switch collapses to a boundary no-op.
package mirror

import (
	"context"

	"github.com/klandestino/sitewide-archive/internal/identity"
)

// SyncTaxonomy mirrors the post's term assignments, restricted to the
// enabled taxonomies, into its archive copy.  A missing mirror is a no-op;
// the next post sync will create it and re-run this pass.
func (e *Engine) SyncTaxonomy(ctx context.Context, postID int64) error {
	if len(e.set.Taxonomies) == 0 {
		return nil
	}
	post, err := e.eligibleOrigin(ctx, postID)
	if err != nil || post == nil {
		return err
	}
	origin := e.sess.ActiveBlog()

	terms, err := e.sess.TermsForPost(ctx, postID, e.set.Taxonomies)
	if err != nil {
		return err
	}
	if e.hooks.FilterTerms != nil {
		terms = e.hooks.FilterTerms(terms, post, origin)
		if terms == nil {
			return nil
		}
	}

	return e.sw.With(e.set.ArchiveBlogID, func() error {
		mirrorID, ok, err := identity.FindMirror(ctx, e.sess, origin, postID)
		if err != nil || !ok {
			return err
		}
		return e.sess.ReplaceTermRelationships(ctx, mirrorID, terms)
	})
}

// SyncMeta mirrors the post's full metadata set into its archive copy.
// Gated on the copy-metadata setting.
func (e *Engine) SyncMeta(ctx context.Context, postID int64) error {
	if !e.set.CopyMeta {
		return nil
	}
	post, err := e.eligibleOrigin(ctx, postID)
	if err != nil || post == nil {
		return err
	}
	origin := e.sess.ActiveBlog()

	metas, err := e.sess.PostMeta(ctx, postID)
	if err != nil {
		return err
	}
	if e.hooks.FilterMeta != nil {
		metas = e.hooks.FilterMeta(metas, post, origin)
		if metas == nil {
			return nil
		}
	}

	return e.sw.With(e.set.ArchiveBlogID, func() error {
		mirrorID, ok, err := identity.FindMirror(ctx, e.sess, origin, postID)
		if err != nil || !ok {
			return err
		}
		return e.sess.ReplaceMeta(ctx, mirrorID, metas)
	})
}
