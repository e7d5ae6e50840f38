// internal/mirror/engine.go
//
// The content replication engine.
//
// Context
// -------
// Given a post-change event on an origin blog, the engine decides whether
// the post must be mirrored, builds a sanitized copy, and upserts it into
// the archive blog keyed by the encoded (blog, post) identity.  Taxonomy
// terms and metadata follow in the same pass.  An engine is request-local:
// it wraps the request's session and switcher, and it reads an immutable
// Settings value resolved at request entry.
//
// Failure semantics: storage errors propagate to the caller; a partial
// write (post row updated, taxonomy sync failed) is an accepted
// inconsistency that the next sync event for the same post repairs.
package mirror

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/klandestino/sitewide-archive/internal/identity"
	"github.com/klandestino/sitewide-archive/internal/metrics"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// PublishedStatus is the only origin status eligible for mirroring.
const PublishedStatus = "publish"

// BlogInfo is the slice of the blog directory the engine consults.
type BlogInfo interface {
	IsPublic(ctx context.Context, blogID int64) (bool, error)
	SiteURL(ctx context.Context, blogID int64) (string, error)
}

// Engine replicates eligible posts into the archive blog.
type Engine struct {
	sess  store.Session
	sw    *tenancy.Switcher
	set   settings.Settings
	blogs BlogInfo
	hooks Hooks
	log   *zap.SugaredLogger
}

// New builds a request-local engine.  A nil logger falls back to the global
// sugared logger.
func New(sess store.Session, sw *tenancy.Switcher, set settings.Settings, blogs BlogInfo, hooks Hooks, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.S()
	}
	return &Engine{sess: sess, sw: sw, set: set, blogs: blogs, hooks: hooks, log: log}
}

// OnContentChanged is the live-event entry point.  It is a silent no-op
// while a blog switch is held, which is how the engine avoids re-entrant
// syncs triggered by its own archive writes.
func (e *Engine) OnContentChanged(ctx context.Context, postID int64) error {
	if e.sw.Switching() {
		return nil
	}
	return e.Sync(ctx, postID)
}

// Sync runs the eligibility gate and, when it passes, the full replication
// pass for one post of the active blog.  Bulk populate calls this directly,
// bypassing only the mid-switch guard of OnContentChanged.
func (e *Engine) Sync(ctx context.Context, postID int64) error {
	post, err := e.eligibleOrigin(ctx, postID)
	if err != nil || post == nil {
		return err
	}
	return e.sync(ctx, post)
}

// sync performs the archive upsert plus taxonomy, metadata, and bookkeeping
// passes for an already-vetted origin post.
func (e *Engine) sync(ctx context.Context, post *store.Post) error {
	origin := e.sess.ActiveBlog()
	originType := post.Type

	siteurl, err := e.blogs.SiteURL(ctx, origin)
	if err != nil {
		return err
	}
	permalink := fmt.Sprintf("%s/?p=%d", strings.TrimRight(siteurl, "/"), post.ID)

	copy := *post
	copy.GUID = identity.Encode(origin, post.ID)
	copy.Type = settings.ArchivePostType
	copy.CommentStatus = "closed"
	copy.PingStatus = "closed"

	if e.hooks.FilterPost != nil {
		adjusted := e.hooks.FilterPost(&copy, post, origin)
		if adjusted == nil {
			return nil
		}
		copy = *adjusted
	}

	var mirrorID int64
	err = e.sw.With(e.set.ArchiveBlogID, func() error {
		id, ok, err := identity.FindMirror(ctx, e.sess, origin, post.ID)
		if err != nil {
			return err
		}
		if ok {
			copy.ID = id
			mirrorID = id
			return e.sess.UpdatePost(ctx, &copy)
		}
		// The archive store assigns the row id.
		copy.ID = 0
		mirrorID, err = e.sess.InsertPost(ctx, &copy)
		return err
	})
	if err != nil {
		metrics.SyncErrorsTotal.Inc()
		return err
	}
	metrics.PostsMirroredTotal.Inc()

	if err := e.SyncTaxonomy(ctx, post.ID); err != nil {
		return err
	}
	if err := e.SyncMeta(ctx, post.ID); err != nil {
		return err
	}

	// Bookkeeping metas go last so a wholesale metadata replace cannot
	// drop them.  The permalink row lets consumers link back to the origin
	// even without the blog directory at hand.
	err = e.sw.With(e.set.ArchiveBlogID, func() error {
		if err := e.sess.SetMeta(ctx, mirrorID, "permalink", permalink); err != nil {
			return err
		}
		return e.sess.SetMeta(ctx, mirrorID, "post_type", originType)
	})
	if err != nil {
		return err
	}

	e.log.Debugw("post mirrored",
		"origin_blog", origin, "post", post.ID, "mirror", mirrorID)
	return nil
}

// eligibleOrigin runs the origin-side gate and returns the post when it
// qualifies: archive configured and not the active blog, origin blog
// public, type enabled, status published, and the guid not already an
// encoded identity (a decodable guid marks the row as somebody's mirror).
// Taxonomy and metadata syncs re-verify through the same gate because they
// can fire independently of a post sync.
func (e *Engine) eligibleOrigin(ctx context.Context, postID int64) (*store.Post, error) {
	origin := e.sess.ActiveBlog()
	if !e.set.Enabled() || e.set.ArchiveBlogID == origin {
		return nil, nil
	}
	public, err := e.blogs.IsPublic(ctx, origin)
	if err != nil {
		return nil, err
	}
	if !public {
		return nil, nil
	}
	post, err := e.sess.GetPost(ctx, postID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !e.set.HasPostType(post.Type) || post.Status != PublishedStatus {
		return nil, nil
	}
	if _, _, ok := identity.Decode(post.GUID); ok {
		return nil, nil
	}
	return post, nil
}
