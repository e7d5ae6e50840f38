// internal/settings/settings.go
//
// Resolved plugin settings.
//
// Settings is an immutable per-request value.  Components read it; only the
// admin save path writes a new blob, and running requests keep the value
// they resolved at entry.
package settings

// Mirror marker: the post type forced onto every archive-side copy.
const ArchivePostType = "sitewide-search"

// OptionKey is the sitemeta key holding the serialized settings blob.
const OptionKey = "sitewide_archive_settings"

// Settings is the resolved configuration consumed by the replication core.
type Settings struct {
	ArchiveBlogID    int64    `json:"archive_blog_id"`
	PostTypes        []string `json:"post_types"`
	Taxonomies       []string `json:"taxonomies"`
	CopyMeta         bool     `json:"meta"`
	EnableSearch     bool     `json:"enable_search"`
	EnableArchive    bool     `json:"enable_archive"`
	EnableCategories bool     `json:"enable_categories"`
	EnableTags       bool     `json:"enable_tags"`
	EnableAuthor     bool     `json:"enable_author"`
}

// Defaults is the documented zero-configuration state: archive disabled,
// plain posts with tags and categories, every sitewide toggle off.
func Defaults() Settings {
	return Settings{
		ArchiveBlogID: 0,
		PostTypes:     []string{"post"},
		Taxonomies:    []string{"post_tag", "category"},
	}
}

// Enabled reports whether an archive blog is configured at all.
func (s Settings) Enabled() bool { return s.ArchiveBlogID > 0 }

// HasPostType reports whether t is mirrored.
func (s Settings) HasPostType(t string) bool {
	for _, pt := range s.PostTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// HasTaxonomy reports whether tax is mirrored.
func (s Settings) HasTaxonomy(tax string) bool {
	for _, t := range s.Taxonomies {
		if t == tax {
			return true
		}
	}
	return false
}
