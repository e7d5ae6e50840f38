// internal/blog/directory.go
//
// Network blog directory.
//
// Context
// -------
// Query helpers over the shared `{prefix}blogs` table plus each blog's own
// `{prefix}{N}_options` table.  The populate controller walks blogs in
// ascending id order through First/NextAfter; the admin blog search and the
// permalink rewriter read per-blog options.  Concurrent Details lookups for
// the same blog are deduplicated with singleflight, since search requests
// fan out one options query per hit.
package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/klandestino/sitewide-archive/internal/cache"
)

// ErrNotFound is returned when a blog id is absent from the network table.
var ErrNotFound = errors.New("blog not found")

// detailsTTL bounds how stale a cached Details entry may get.  Blog names
// and descriptions change rarely; five minutes is plenty fresh for the
// admin search listing.
const detailsTTL = 5 * time.Minute

// Directory answers blog-level questions against the network database.
type Directory struct {
	db     *sqlx.DB
	prefix string
	sfg    singleflight.Group

	mu      sync.Mutex
	details *cache.LRU // blog id -> Info
}

// NewDirectory binds to the shared pool.  prefix defaults to "wp_".
func NewDirectory(db *sqlx.DB, prefix string) *Directory {
	if prefix == "" {
		prefix = "wp_"
	}
	return &Directory{db: db, prefix: prefix, details: cache.New(512, detailsTTL)}
}

const recordColumns = "blog_id, domain, path, public, archived, mature, spam, deleted"

// ByID fetches one blog row.
func (d *Directory) ByID(ctx context.Context, id int64) (*Record, error) {
	q := `SELECT ` + recordColumns + ` FROM ` + d.prefix + `blogs WHERE blog_id = ? LIMIT 1`
	var rec Record
	if err := d.db.GetContext(ctx, &rec, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// First returns the lowest blog id, or 0 when the network is empty.
func (d *Directory) First(ctx context.Context) (int64, error) {
	q := `SELECT blog_id FROM ` + d.prefix + `blogs ORDER BY blog_id ASC LIMIT 1`
	var id int64
	if err := d.db.GetContext(ctx, &id, q); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// NextAfter returns the lowest blog id strictly greater than after, or 0
// when none remains.
func (d *Directory) NextAfter(ctx context.Context, after int64) (int64, error) {
	q := `SELECT blog_id FROM ` + d.prefix + `blogs WHERE blog_id > ? ORDER BY blog_id ASC LIMIT 1`
	var id int64
	if err := d.db.GetContext(ctx, &id, q, after); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// Count returns the total number of blogs in the network.
func (d *Directory) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+d.prefix+`blogs`); err != nil {
		return 0, err
	}
	return n, nil
}

// IsPublic reports whether a blog is publicly visible and not archived,
// spammed, deleted, or marked mature.
func (d *Directory) IsPublic(ctx context.Context, id int64) (bool, error) {
	rec, err := d.ByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return rec.Public && !rec.Archived && !rec.Spam && !rec.Deleted && !rec.Mature, nil
}

// SearchByDomain lists blogs whose domain contains q.
func (d *Directory) SearchByDomain(ctx context.Context, q string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ` + d.prefix + `blogs
	           WHERE domain LIKE ? ORDER BY blog_id ASC`
	var recs []Record
	if err := d.db.SelectContext(ctx, &recs, query, "%"+q+"%"); err != nil {
		return nil, err
	}
	return recs, nil
}

// ByIDs lists blogs matching a set of ids.
func (d *Directory) ByIDs(ctx context.Context, ids []int64) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+recordColumns+` FROM `+d.prefix+`blogs
	           WHERE blog_id IN (?) ORDER BY blog_id ASC`, ids)
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := d.db.SelectContext(ctx, &recs, d.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return recs, nil
}

// optionsTable resolves a blog's options table name.
func (d *Directory) optionsTable(blogID int64) string {
	if blogID <= 1 {
		return d.prefix + "options"
	}
	return fmt.Sprintf("%s%d_options", d.prefix, blogID)
}

// Option reads one option value from the blog's own options table.  A
// missing option is an empty string, not an error.
func (d *Directory) Option(ctx context.Context, blogID int64, name string) (string, error) {
	q := `SELECT option_value FROM ` + d.optionsTable(blogID) + ` WHERE option_name = ? LIMIT 1`
	var v string
	if err := d.db.GetContext(ctx, &v, q, name); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SiteURL returns the blog's base URL, falling back to its domain and path
// when the option is unset.
func (d *Directory) SiteURL(ctx context.Context, blogID int64) (string, error) {
	u, err := d.Option(ctx, blogID, "siteurl")
	if err != nil {
		return "", err
	}
	if u != "" {
		return u, nil
	}
	rec, err := d.ByID(ctx, blogID)
	if err != nil {
		return "", err
	}
	return "http://" + rec.Domain + rec.Path, nil
}

// Details enriches a blog record with its siteurl, blogname, and
// blogdescription options.  Results are cached briefly, and concurrent
// misses for one blog share a single round of option queries.
func (d *Directory) Details(ctx context.Context, rec Record) (Info, error) {
	d.mu.Lock()
	if v, ok := d.details.Get(rec.ID); ok {
		d.mu.Unlock()
		return v.(Info), nil
	}
	d.mu.Unlock()

	v, err, _ := d.sfg.Do(fmt.Sprintf("details-%d", rec.ID), func() (interface{}, error) {
		info := Info{BlogID: rec.ID, Domain: rec.Domain}
		for _, name := range []string{"siteurl", "blogname", "blogdescription"} {
			val, err := d.Option(ctx, rec.ID, name)
			if err != nil {
				return Info{}, err
			}
			switch name {
			case "siteurl":
				info.SiteURL = val
			case "blogname":
				info.Blogname = val
			case "blogdescription":
				info.Blogdescription = val
			}
		}
		return info, nil
	})
	if err != nil {
		return Info{}, err
	}

	info := v.(Info)
	d.mu.Lock()
	d.details.Add(rec.ID, info)
	d.mu.Unlock()
	return info, nil
}
