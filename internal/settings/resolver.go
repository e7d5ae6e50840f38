// internal/settings/resolver.go
//
// Loads and saves the settings blob in the network sitemeta table.
//
// Context
// -------
// Settings persist as one JSON value under the `sitewide_archive_settings`
// key.  Resolution substitutes a documented default for every recognized
// key that is absent and ignores unknown keys, so an empty or missing blob
// is the normal disabled state, never an error.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// Repository reads and writes the blob against the network database.
type Repository struct {
	db     *sqlx.DB
	prefix string
}

// NewRepository binds to the shared pool.  prefix defaults to "wp_".
func NewRepository(db *sqlx.DB, prefix string) *Repository {
	if prefix == "" {
		prefix = "wp_"
	}
	return &Repository{db: db, prefix: prefix}
}

// blob mirrors the stored JSON with pointer fields so absent keys are
// distinguishable from zero values.
type blob struct {
	ArchiveBlogID    *int64    `json:"archive_blog_id"`
	PostTypes        *[]string `json:"post_types"`
	Taxonomies       *[]string `json:"taxonomies"`
	CopyMeta         *bool     `json:"meta"`
	EnableSearch     *bool     `json:"enable_search"`
	EnableArchive    *bool     `json:"enable_archive"`
	EnableCategories *bool     `json:"enable_categories"`
	EnableTags       *bool     `json:"enable_tags"`
	EnableAuthor     *bool     `json:"enable_author"`
}

// Resolve returns the effective settings, falling back to Defaults for any
// missing key.  A missing row, an empty value, or a malformed blob all
// resolve to full defaults.
func (r *Repository) Resolve(ctx context.Context) (Settings, error) {
	q := `SELECT meta_value FROM ` + r.prefix + `sitemeta WHERE meta_key = ? LIMIT 1`
	var raw string
	err := r.db.GetContext(ctx, &raw, q, OptionKey)
	if err == sql.ErrNoRows {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, err
	}

	var b blob
	if raw == "" || json.Unmarshal([]byte(raw), &b) != nil {
		return Defaults(), nil
	}

	s := Defaults()
	if b.ArchiveBlogID != nil {
		s.ArchiveBlogID = *b.ArchiveBlogID
	}
	if b.PostTypes != nil {
		s.PostTypes = *b.PostTypes
	}
	if b.Taxonomies != nil {
		s.Taxonomies = *b.Taxonomies
	}
	if b.CopyMeta != nil {
		s.CopyMeta = *b.CopyMeta
	}
	if b.EnableSearch != nil {
		s.EnableSearch = *b.EnableSearch
	}
	if b.EnableArchive != nil {
		s.EnableArchive = *b.EnableArchive
	}
	if b.EnableCategories != nil {
		s.EnableCategories = *b.EnableCategories
	}
	if b.EnableTags != nil {
		s.EnableTags = *b.EnableTags
	}
	if b.EnableAuthor != nil {
		s.EnableAuthor = *b.EnableAuthor
	}
	return s, nil
}

// Save serializes s and upserts the sitemeta row.
func (r *Repository) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + r.prefix + `sitemeta (meta_key, meta_value) VALUES (?, ?)
	      ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`
	_, err = r.db.ExecContext(ctx, q, OptionKey, string(raw))
	return err
}
