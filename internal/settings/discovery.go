// internal/settings/discovery.go
//
// On-demand discovery of selectable post types and taxonomies for the admin
// settings page.  This replaces the registration-callback registries of the
// original platform with an explicit query against the active blog.
package settings

import (
	"context"

	"github.com/klandestino/sitewide-archive/internal/store"
)

// AvailablePostTypes lists the post types present in the active blog, minus
// the mirror marker type, which must never be re-mirrored.
func AvailablePostTypes(ctx context.Context, sess store.Session) ([]string, error) {
	types, err := sess.DistinctPostTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := types[:0]
	for _, t := range types {
		if t != ArchivePostType {
			out = append(out, t)
		}
	}
	return out, nil
}

// AvailableTaxonomies lists the taxonomies present in the active blog.
func AvailableTaxonomies(ctx context.Context, sess store.Session) ([]string, error) {
	return sess.DistinctTaxonomies(ctx)
}
