package blog

// Record mirrors one row of the network `{prefix}blogs` table.  Status
// columns are kept as booleans; any of Archived, Spam, Deleted, or Mature
// being set removes the blog from archival (its mirrors are purged).
type Record struct {
	ID       int64  `db:"blog_id"`
	Domain   string `db:"domain"`
	Path     string `db:"path"`
	Public   bool   `db:"public"`
	Archived bool   `db:"archived"`
	Mature   bool   `db:"mature"`
	Spam     bool   `db:"spam"`
	Deleted  bool   `db:"deleted"`
}

// Info is the enriched shape the admin blog search returns, combining the
// blogs-table row with the blog's own option values.
type Info struct {
	BlogID          int64  `json:"blog_id"`
	Domain          string `json:"domain"`
	SiteURL         string `json:"siteurl"`
	Blogname        string `json:"blogname"`
	Blogdescription string `json:"blogdescription"`
}
