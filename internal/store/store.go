// internal/store/store.go
//
// Storage collaborator contract for the sitewide archive.
//
// Context
// -------
// Every blog in the network shares one MySQL cluster, WordPress-style: blog N
// owns a family of tables named with a per-blog prefix (`wp_posts` for the
// main blog, `wp_N_posts` for the rest).  The replication core never touches
// SQL directly; it talks to a Session, which carries the "active blog" the
// way $wpdb carries blogid.  Switching the active blog re-points every
// subsequent call at that blog's tables.
//
// Sessions are request-local.  They are cheap values created per HTTP
// request and must never be shared across goroutines.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a post id does not exist in the active blog.
var ErrNotFound = errors.New("store: post not found")

// Post mirrors one row of a `{prefix}posts` table.  Column names follow the
// WordPress layout so the service can point at an existing network schema.
type Post struct {
	ID            int64     `db:"ID"`
	Author        int64     `db:"post_author"`
	Date          time.Time `db:"post_date"`
	Modified      time.Time `db:"post_modified"`
	Content       string    `db:"post_content"`
	Title         string    `db:"post_title"`
	Excerpt       string    `db:"post_excerpt"`
	Status        string    `db:"post_status"`
	CommentStatus string    `db:"comment_status"`
	PingStatus    string    `db:"ping_status"`
	Name          string    `db:"post_name"`
	Parent        int64     `db:"post_parent"`
	MenuOrder     int       `db:"menu_order"`
	Type          string    `db:"post_type"`
	GUID          string    `db:"guid"`
}

// Term is one term assignment: the term itself plus the taxonomy it belongs
// to.  Replication recreates terms by (slug, taxonomy) on the archive side,
// so term ids never cross blog boundaries.
type Term struct {
	Name     string `db:"name"`
	Slug     string `db:"slug"`
	Taxonomy string `db:"taxonomy"`
}

// Meta is one key-value row from `{prefix}postmeta`.
type Meta struct {
	Key   string `db:"meta_key"`
	Value string `db:"meta_value"`
}

// PostRef pairs a post id with its guid, for scans that must be re-validated
// by the identity codec before acting.
type PostRef struct {
	ID   int64  `db:"ID"`
	GUID string `db:"guid"`
}

// PostFilter narrows listing and counting queries.  Zero values mean
// "no constraint"; Limit 0 means no LIMIT clause.
type PostFilter struct {
	Types   []string
	Status  string
	AfterID int64
	Limit   int

	// Read-query constraints used by sitewide browsing.
	Search   string // substring of title or content
	Taxonomy string // paired with TermSlug
	TermSlug string
	AuthorID int64
}

// Session is the per-request storage handle.  All post, term, and meta
// operations act on the tables of the active blog.
type Session interface {
	// Active-blog state, mutated only through tenancy.Switcher.
	ActiveBlog() int64
	SetActiveBlog(id int64)

	GetPost(ctx context.Context, id int64) (*Post, error)
	InsertPost(ctx context.Context, p *Post) (int64, error)
	UpdatePost(ctx context.Context, p *Post) error
	// DeletePost removes the post row plus its meta and term-relationship
	// rows.  Deleting an absent id is not an error.
	DeletePost(ctx context.Context, id int64) error
	PostIDs(ctx context.Context, f PostFilter) ([]int64, error)
	CountPosts(ctx context.Context, f PostFilter) (int64, error)
	// Posts lists full rows for read queries, newest first.
	Posts(ctx context.Context, f PostFilter) ([]*Post, error)

	// Guid lookups used by the identity codec and the deletion mirror.
	// PostsByGUID matches exactly; PostsByGUIDPrefix is a broad scan whose
	// hits the caller must re-validate by decoding.
	PostsByGUID(ctx context.Context, guid string) ([]int64, error)
	PostsByGUIDPrefix(ctx context.Context, prefix string) ([]PostRef, error)

	TermsForPost(ctx context.Context, postID int64, taxonomies []string) ([]Term, error)
	// ReplaceTermRelationships deletes every relationship row for postID,
	// recreates-or-finds each term, inserts fresh relationships, and
	// recounts the touched taxonomies once at the end.
	ReplaceTermRelationships(ctx context.Context, postID int64, terms []Term) error

	PostMeta(ctx context.Context, postID int64) ([]Meta, error)
	// ReplaceMeta swaps the full metadata set for postID.
	ReplaceMeta(ctx context.Context, postID int64, metas []Meta) error
	// SetMeta upserts a single key, leaving other rows alone.
	SetMeta(ctx context.Context, postID int64, key, value string) error

	// Discovery pass for the admin settings page.
	DistinctPostTypes(ctx context.Context) ([]string, error)
	DistinctTaxonomies(ctx context.Context) ([]string, error)

	// WipeArchive removes every post of postType in the active blog along
	// with its meta and term-relationship rows, then zeroes term counts.
	WipeArchive(ctx context.Context, postType string) error
}
