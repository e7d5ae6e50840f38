// internal/redirect/redirector.go
//
// Sitewide read-query redirection.
//
// Context
// -------
// When a blog serves a search, archive, category, tag, or author listing
// and the corresponding sitewide toggle is on, the query is transparently
// re-pointed at the archive blog: BeforeQuery acquires a switch into the
// archive, the caller executes the query there, and AfterQuery rewrites
// every hit's identity back to its origin blog and post id before releasing
// the switch.  Consumers then see correct permalinks and thumbnails, as if
// the content still lived on its origin blog.
//
// The redirector is a two-state machine per in-flight query, Idle and
// Redirecting, tracked by whether the query holds a switch.  It never
// touches administrative-context queries or embedded forum listings, and
// the AfterQuery release is one-shot so a later unrelated query cannot be
// double-restored.
package redirect

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

// Kind classifies a read query.
type Kind int

const (
	KindNone Kind = iota
	KindSearch
	KindArchive
	KindCategory
	KindTag
	KindAuthor
)

// Query describes one read query crossing the redirector.
type Query struct {
	Kind Kind
	// Admin marks administrative-context queries, which are never
	// redirected so wp-admin style listings keep showing local rows.
	Admin bool
	// Embedded marks embedded forum-plugin listings, which manage their
	// own cross-blog storage and must not be re-pointed.
	Embedded bool

	// Types is the post-type constraint the executing handler must apply.
	// BeforeQuery forces it to the mirror marker type while redirecting,
	// since everything in the archive blog carries that type.
	Types []string

	redirected bool
	release    func()
}

// Redirecting reports whether the query currently holds the archive switch.
func (q *Query) Redirecting() bool { return q.redirected }

// Result is one rewritten hit: the post with its externally-visible id
// restored to the origin post id, plus the origin blog.  OriginBlog is 0
// for rows that are not mirrors.
type Result struct {
	Post       *store.Post
	OriginBlog int64
}

// BlogURLs is the slice of the blog directory needed for permalinks.
type BlogURLs interface {
	SiteURL(ctx context.Context, blogID int64) (string, error)
}

// Redirector re-points qualifying queries at the archive blog.
type Redirector struct {
	sw    *tenancy.Switcher
	set   settings.Settings
	blogs BlogURLs
	log   *zap.SugaredLogger
}

// New builds a request-local redirector.
func New(sw *tenancy.Switcher, set settings.Settings, blogs BlogURLs, log *zap.SugaredLogger) *Redirector {
	if log == nil {
		log = zap.S()
	}
	return &Redirector{sw: sw, set: set, blogs: blogs, log: log}
}

// enabledFor maps a query kind to its settings toggle.
func (r *Redirector) enabledFor(k Kind) bool {
	switch k {
	case KindSearch:
		return r.set.EnableSearch
	case KindArchive:
		return r.set.EnableArchive
	case KindCategory:
		return r.set.EnableCategories
	case KindTag:
		return r.set.EnableTags
	case KindAuthor:
		return r.set.EnableAuthor
	}
	return false
}

// BeforeQuery inspects q and, when it qualifies, switches into the archive
// blog and marks the query Redirecting.  A query that fails the gate is
// returned untouched and stays Idle.
func (r *Redirector) BeforeQuery(q *Query) *Query {
	if q == nil {
		return nil
	}
	if !r.set.Enabled() || q.Admin || q.Embedded || !r.enabledFor(q.Kind) {
		return q
	}
	if !q.redirected {
		q.release = r.sw.Acquire(r.set.ArchiveBlogID)
		q.redirected = true
		q.Types = []string{settings.ArchivePostType}
		metrics.QueryRedirectsTotal.Inc()
	}
	return q
}

// AfterQuery rewrites result identities back to their origins and releases
// the query's switch.  It fires once per query: repeated calls are no-ops
// beyond the rewriting, so a completion callback that lingers cannot
// restore an unrelated query's context.
func (r *Redirector) AfterQuery(q *Query, posts []*store.Post) []Result {
	results := make([]Result, 0, len(posts))
	for _, p := range posts {
		res := Result{Post: p}
		if blogID, postID, ok := identity.Decode(p.GUID); ok {
			p.ID = postID
			res.OriginBlog = blogID
		}
		results = append(results, res)
	}

	if q != nil && q.redirected {
		q.release()
		q.release = nil
		q.redirected = false
	}
	return results
}

// Run wraps a query execution in the Before/After pair, restoring context
// even when exec fails.
func (r *Redirector) Run(ctx context.Context, q *Query, exec func(ctx context.Context) ([]*store.Post, error)) ([]Result, error) {
	r.BeforeQuery(q)
	posts, err := exec(ctx)
	results := r.AfterQuery(q, posts)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RewritePermalink returns the permalink computed against the result's
// origin blog when that differs from the active blog; otherwise the
// original is returned unmodified.
func (r *Redirector) RewritePermalink(ctx context.Context, original string, res Result) (string, error) {
	if res.OriginBlog == 0 || res.OriginBlog == r.sw.Active() || res.Post == nil {
		return original, nil
	}
	siteurl, err := r.blogs.SiteURL(ctx, res.OriginBlog)
	if err != nil {
		return original, err
	}
	return fmt.Sprintf("%s/?p=%d", strings.TrimRight(siteurl, "/"), res.Post.ID), nil
}

// BeginThumbnail switches into the result's origin blog so its media rows
// resolve, returning the end of the scope.  A result with no decodable
// origin yields a no-op.
func (r *Redirector) BeginThumbnail(res Result) (end func()) {
	origin := res.OriginBlog
	if origin == 0 && res.Post != nil {
		if blogID, _, ok := identity.Decode(res.Post.GUID); ok {
			origin = blogID
		}
	}
	if origin == 0 {
		return func() {}
	}
	return r.sw.Acquire(origin)
}
