// internal/mirror/hooks.go
//
// Extensibility points for the replication engine.
//
// The original platform exposed these as named filter events on a global
// dispatcher.  Here they are plain optional callbacks injected at engine
// construction; a nil field means "no filter installed".
package mirror

import "github.com/klandestino/sitewide-archive/internal/store"

// Hooks adjusts or vetoes replication writes.  Every filter receives the
// origin blog id so multi-network installs can discriminate by source.
type Hooks struct {
	// FilterPost may rewrite the prepared copy before the archive upsert.
	// Returning nil vetoes the sync; no archive-side write happens.
	FilterPost func(copy *store.Post, origin *store.Post, originBlog int64) *store.Post

	// FilterTerms may rewrite the term set before the archive replace.
	// Returning nil vetoes the taxonomy sync.
	FilterTerms func(terms []store.Term, origin *store.Post, originBlog int64) []store.Term

	// FilterMeta may rewrite the metadata set before the archive replace.
	// Returning nil vetoes the metadata sync.
	FilterMeta func(metas []store.Meta, origin *store.Post, originBlog int64) []store.Meta

	// FilterDelete may veto removal of a post's mirrors by returning false.
	FilterDelete func(postID int64, originBlog int64) bool
}
