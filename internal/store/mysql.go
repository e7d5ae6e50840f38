// internal/store/mysql.go
//
// sqlx-backed Session over a WordPress-layout MySQL cluster.
//
// Context
// -------
// One shared *sqlx.DB pool serves every blog; the per-blog table prefix is
// computed from the active blog id, matching the WordPress convention of
// `wp_posts` for blog 1 and `wp_N_posts` for blog N.  Table names cannot be
// bound as placeholders, so they are interpolated from the computed prefix;
// every value still goes through `?` parameters.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// MySQL is the process-wide session factory.  Safe for concurrent use; the
// Sessions it hands out are not.
type MySQL struct {
	db     *sqlx.DB
	prefix string // base table prefix, normally "wp_"
}

// NewMySQL wraps an open pool.  An empty prefix defaults to "wp_".
func NewMySQL(db *sqlx.DB, prefix string) *MySQL {
	if prefix == "" {
		prefix = "wp_"
	}
	return &MySQL{db: db, prefix: prefix}
}

// Session opens a request-local session with the given blog active.
func (m *MySQL) Session(activeBlog int64) *SQLSession {
	return &SQLSession{db: m.db, prefix: m.prefix, active: activeBlog}
}

// SQLSession implements Session against the shared pool.
type SQLSession struct {
	db     *sqlx.DB
	prefix string
	active int64
}

var _ Session = (*SQLSession)(nil)

func (s *SQLSession) ActiveBlog() int64      { return s.active }
func (s *SQLSession) SetActiveBlog(id int64) { s.active = id }

// table resolves a logical table name against the active blog's prefix.
func (s *SQLSession) table(name string) string {
	if s.active <= 1 {
		return s.prefix + name
	}
	return fmt.Sprintf("%s%d_%s", s.prefix, s.active, name)
}

const postColumns = "ID, post_author, post_date, post_modified, post_content, post_title, " +
	"post_excerpt, post_status, comment_status, ping_status, post_name, post_parent, " +
	"menu_order, post_type, guid"

func (s *SQLSession) GetPost(ctx context.Context, id int64) (*Post, error) {
	q := `SELECT ` + postColumns + ` FROM ` + s.table("posts") + ` WHERE ID = ? LIMIT 1`
	var p Post
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *SQLSession) InsertPost(ctx context.Context, p *Post) (int64, error) {
	q := `INSERT INTO ` + s.table("posts") + ` (post_author, post_date, post_modified,
	        post_content, post_title, post_excerpt, post_status, comment_status,
	        ping_status, post_name, post_parent, menu_order, post_type, guid)
	      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		p.Author, p.Date, p.Modified, p.Content, p.Title, p.Excerpt,
		p.Status, p.CommentStatus, p.PingStatus, p.Name, p.Parent,
		p.MenuOrder, p.Type, p.GUID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLSession) UpdatePost(ctx context.Context, p *Post) error {
	q := `UPDATE ` + s.table("posts") + ` SET post_author = ?, post_date = ?,
	        post_modified = ?, post_content = ?, post_title = ?, post_excerpt = ?,
	        post_status = ?, comment_status = ?, ping_status = ?, post_name = ?,
	        post_parent = ?, menu_order = ?, post_type = ?, guid = ?
	      WHERE ID = ?`
	_, err := s.db.ExecContext(ctx, q,
		p.Author, p.Date, p.Modified, p.Content, p.Title, p.Excerpt,
		p.Status, p.CommentStatus, p.PingStatus, p.Name, p.Parent,
		p.MenuOrder, p.Type, p.GUID, p.ID)
	return err
}

func (s *SQLSession) DeletePost(ctx context.Context, id int64) error {
	prior, err := s.assignedTaxonomies(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("term_relationships")+` WHERE object_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("postmeta")+` WHERE post_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("posts")+` WHERE ID = ?`, id); err != nil {
		return err
	}
	return s.recountTerms(ctx, prior)
}

// filterClause renders a PostFilter into SQL against an aliased posts table
// p.  Returned clause starts with "WHERE 1=1" so callers can append
// ordering and limits unconditionally.  A taxonomy constraint joins the
// term tables via an EXISTS subquery.
func (s *SQLSession) filterClause(f PostFilter) (string, []any) {
	clause := ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		clause += ` AND p.post_status = ?`
		args = append(args, f.Status)
	}
	if len(f.Types) > 0 {
		clause += ` AND p.post_type IN (` + placeholders(len(f.Types)) + `)`
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if f.AfterID > 0 {
		clause += ` AND p.ID > ?`
		args = append(args, f.AfterID)
	}
	if f.Search != "" {
		like := "%" + likeEscape(f.Search) + "%"
		clause += ` AND (p.post_title LIKE ? OR p.post_content LIKE ?)`
		args = append(args, like, like)
	}
	if f.AuthorID > 0 {
		clause += ` AND p.post_author = ?`
		args = append(args, f.AuthorID)
	}
	if f.Taxonomy != "" && f.TermSlug != "" {
		clause += ` AND EXISTS (SELECT 1 FROM ` + s.table("term_relationships") + ` tr
		              JOIN ` + s.table("term_taxonomy") + ` tt ON tt.term_taxonomy_id = tr.term_taxonomy_id
		              JOIN ` + s.table("terms") + ` t ON t.term_id = tt.term_id
		             WHERE tr.object_id = p.ID AND tt.taxonomy = ? AND t.slug = ?)`
		args = append(args, f.Taxonomy, f.TermSlug)
	}
	return clause, args
}

func (s *SQLSession) PostIDs(ctx context.Context, f PostFilter) ([]int64, error) {
	clause, args := s.filterClause(f)
	q := `SELECT p.ID FROM ` + s.table("posts") + ` p` + clause + ` ORDER BY p.ID ASC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, q, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLSession) CountPosts(ctx context.Context, f PostFilter) (int64, error) {
	clause, args := s.filterClause(f)
	q := `SELECT COUNT(*) FROM ` + s.table("posts") + ` p` + clause
	var n int64
	if err := s.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLSession) Posts(ctx context.Context, f PostFilter) ([]*Post, error) {
	clause, args := s.filterClause(f)
	cols := "p.ID, p.post_author, p.post_date, p.post_modified, p.post_content, p.post_title, " +
		"p.post_excerpt, p.post_status, p.comment_status, p.ping_status, p.post_name, " +
		"p.post_parent, p.menu_order, p.post_type, p.guid"
	q := `SELECT ` + cols + ` FROM ` + s.table("posts") + ` p` + clause + ` ORDER BY p.post_date DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	var posts []*Post
	if err := s.db.SelectContext(ctx, &posts, q, args...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *SQLSession) PostsByGUID(ctx context.Context, guid string) ([]int64, error) {
	q := `SELECT ID FROM ` + s.table("posts") + ` WHERE guid = ? ORDER BY ID ASC`
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, q, guid); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLSession) PostsByGUIDPrefix(ctx context.Context, prefix string) ([]PostRef, error) {
	q := `SELECT ID, guid FROM ` + s.table("posts") + ` WHERE guid LIKE ? ORDER BY ID ASC`
	var refs []PostRef
	if err := s.db.SelectContext(ctx, &refs, q, likeEscape(prefix)+"%"); err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *SQLSession) TermsForPost(ctx context.Context, postID int64, taxonomies []string) ([]Term, error) {
	if len(taxonomies) == 0 {
		return nil, nil
	}
	q := `SELECT t.name, t.slug, tt.taxonomy
	        FROM ` + s.table("term_relationships") + ` tr
	        JOIN ` + s.table("term_taxonomy") + ` tt ON tt.term_taxonomy_id = tr.term_taxonomy_id
	        JOIN ` + s.table("terms") + ` t ON t.term_id = tt.term_id
	       WHERE tr.object_id = ?
	         AND tt.taxonomy IN (` + placeholders(len(taxonomies)) + `)`
	args := make([]any, 0, len(taxonomies)+1)
	args = append(args, postID)
	for _, tax := range taxonomies {
		args = append(args, tax)
	}
	var terms []Term
	if err := s.db.SelectContext(ctx, &terms, q, args...); err != nil {
		return nil, err
	}
	return terms, nil
}

func (s *SQLSession) ReplaceTermRelationships(ctx context.Context, postID int64, terms []Term) error {
	// Taxonomies the post is leaving need their counts refreshed too, so
	// capture them before the delete.
	prior, err := s.assignedTaxonomies(ctx, postID)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("term_relationships")+` WHERE object_id = ?`, postID); err != nil {
		return err
	}

	touched := make(map[string]struct{}, len(prior)+2)
	for _, tax := range prior {
		touched[tax] = struct{}{}
	}
	for _, term := range terms {
		ttID, err := s.findOrCreateTerm(ctx, term)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO `+s.table("term_relationships")+` (object_id, term_taxonomy_id) VALUES (?, ?)`,
			postID, ttID); err != nil {
			return err
		}
		touched[term.Taxonomy] = struct{}{}
	}

	// One recount per sync, not per term.
	taxonomies := make([]string, 0, len(touched))
	for tax := range touched {
		taxonomies = append(taxonomies, tax)
	}
	return s.recountTerms(ctx, taxonomies)
}

// assignedTaxonomies lists the distinct taxonomies of the terms currently
// attached to a post in the active blog.
func (s *SQLSession) assignedTaxonomies(ctx context.Context, postID int64) ([]string, error) {
	q := `SELECT DISTINCT tt.taxonomy
	        FROM ` + s.table("term_relationships") + ` tr
	        JOIN ` + s.table("term_taxonomy") + ` tt ON tt.term_taxonomy_id = tr.term_taxonomy_id
	       WHERE tr.object_id = ?`
	var taxonomies []string
	if err := s.db.SelectContext(ctx, &taxonomies, q, postID); err != nil {
		return nil, err
	}
	return taxonomies, nil
}

// findOrCreateTerm resolves (slug, taxonomy) to a term_taxonomy_id in the
// active blog, creating the term and taxonomy rows when absent.  A term
// arriving without a slug gets one derived from its name.
func (s *SQLSession) findOrCreateTerm(ctx context.Context, term Term) (int64, error) {
	slug := term.Slug
	if slug == "" {
		slug = slugify(term.Name)
	}

	var termID int64
	err := s.db.GetContext(ctx, &termID,
		`SELECT term_id FROM `+s.table("terms")+` WHERE slug = ? LIMIT 1`, slug)
	if err == sql.ErrNoRows {
		res, ierr := s.db.ExecContext(ctx,
			`INSERT INTO `+s.table("terms")+` (name, slug) VALUES (?, ?)`,
			term.Name, slug)
		if ierr != nil {
			return 0, ierr
		}
		if termID, ierr = res.LastInsertId(); ierr != nil {
			return 0, ierr
		}
	} else if err != nil {
		return 0, err
	}

	var ttID int64
	err = s.db.GetContext(ctx, &ttID,
		`SELECT term_taxonomy_id FROM `+s.table("term_taxonomy")+
			` WHERE term_id = ? AND taxonomy = ? LIMIT 1`, termID, term.Taxonomy)
	if err == sql.ErrNoRows {
		res, ierr := s.db.ExecContext(ctx,
			`INSERT INTO `+s.table("term_taxonomy")+` (term_id, taxonomy, count) VALUES (?, ?, 0)`,
			termID, term.Taxonomy)
		if ierr != nil {
			return 0, ierr
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, err
	}
	return ttID, nil
}

// recountTerms recomputes term_taxonomy.count for the given taxonomies from
// the relationship table.
func (s *SQLSession) recountTerms(ctx context.Context, taxonomies []string) error {
	if len(taxonomies) == 0 {
		return nil
	}
	q := `UPDATE ` + s.table("term_taxonomy") + ` tt
	         SET tt.count = (SELECT COUNT(*) FROM ` + s.table("term_relationships") + ` tr
	                          WHERE tr.term_taxonomy_id = tt.term_taxonomy_id)
	       WHERE tt.taxonomy IN (` + placeholders(len(taxonomies)) + `)`
	args := make([]any, len(taxonomies))
	for i, tax := range taxonomies {
		args[i] = tax
	}
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *SQLSession) PostMeta(ctx context.Context, postID int64) ([]Meta, error) {
	q := `SELECT meta_key, meta_value FROM ` + s.table("postmeta") + ` WHERE post_id = ? ORDER BY meta_id ASC`
	var metas []Meta
	if err := s.db.SelectContext(ctx, &metas, q, postID); err != nil {
		return nil, err
	}
	return metas, nil
}

func (s *SQLSession) ReplaceMeta(ctx context.Context, postID int64, metas []Meta) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("postmeta")+` WHERE post_id = ?`, postID); err != nil {
		return err
	}
	for _, m := range metas {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO `+s.table("postmeta")+` (post_id, meta_key, meta_value) VALUES (?, ?, ?)`,
			postID, m.Key, m.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSession) SetMeta(ctx context.Context, postID int64, key, value string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("postmeta")+` WHERE post_id = ? AND meta_key = ?`,
		postID, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table("postmeta")+` (post_id, meta_key, meta_value) VALUES (?, ?, ?)`,
		postID, key, value)
	return err
}

func (s *SQLSession) DistinctPostTypes(ctx context.Context) ([]string, error) {
	q := `SELECT DISTINCT post_type FROM ` + s.table("posts") + ` ORDER BY post_type ASC`
	var types []string
	if err := s.db.SelectContext(ctx, &types, q); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *SQLSession) DistinctTaxonomies(ctx context.Context) ([]string, error) {
	q := `SELECT DISTINCT taxonomy FROM ` + s.table("term_taxonomy") + ` ORDER BY taxonomy ASC`
	var taxonomies []string
	if err := s.db.SelectContext(ctx, &taxonomies, q); err != nil {
		return nil, err
	}
	return taxonomies, nil
}

func (s *SQLSession) WipeArchive(ctx context.Context, postType string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE tr FROM `+s.table("term_relationships")+` tr
	       JOIN `+s.table("posts")+` p ON p.ID = tr.object_id
	      WHERE p.post_type = ?`, postType); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE pm FROM `+s.table("postmeta")+` pm
	       JOIN `+s.table("posts")+` p ON p.ID = pm.post_id
	      WHERE p.post_type = ?`, postType); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table("posts")+` WHERE post_type = ?`, postType); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+s.table("term_taxonomy")+` tt
	        SET tt.count = (SELECT COUNT(*) FROM `+s.table("term_relationships")+` tr
	                         WHERE tr.term_taxonomy_id = tt.term_taxonomy_id)`)
	return err
}

// placeholders renders "?,?,?" for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// likeEscape neutralises LIKE wildcards in a literal prefix.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// slugify converts a term name into a lower-kebab ASCII slug: runs of
// non-alphanumerics collapse to one dash, and an empty result falls back to
// "term".
func slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastWasDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteRune('-')
				lastWasDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "term"
	}
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}
