// internal/identity/codec.go
//
// Encoding of the composite mirror identity.
//
// Context
// -------
// A mirror copy carries its origin in the one free-text field available on
// every post row: the guid.  The encoded form is "<blog>,<post>", e.g.
// "3,42".  Historical origin stores prepended a URI scheme to guids, so
// decoding tolerates any non-numeric prefix, but the two numeric components
// are anchored to the end of the string; anything else is not a mirror
// identity.  Lookups use exact guid equality, never substring matching.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/klandestino/sitewide-archive/internal/store"
)

var guidPattern = regexp.MustCompile(`^[^0-9]*([0-9]+),([0-9]+)$`)

// Encode renders the composite identity stamped on a mirror's guid field.
func Encode(blogID, postID int64) string {
	return fmt.Sprintf("%d,%d", blogID, postID)
}

// Decode extracts (origin blog, origin post) from a guid.  ok is false when
// the guid is not an encoded identity, which marks the row as not-a-mirror.
func Decode(guid string) (blogID, postID int64, ok bool) {
	m := guidPattern.FindStringSubmatch(guid)
	if m == nil {
		return 0, 0, false
	}
	blogID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	postID, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if blogID < 1 || postID < 1 {
		return 0, 0, false
	}
	return blogID, postID, true
}

// BlogPrefix returns the guid prefix shared by every mirror of one blog,
// for by-blog scans that the caller re-validates with Decode.
func BlogPrefix(blogID int64) string {
	return fmt.Sprintf("%d,", blogID)
}

// FindMirror looks up the archive copy of (blogID, postID) in the session's
// active blog.  The caller must already have switched into the archive blog.
// When the store holds more than one matching row, the first by id wins.
func FindMirror(ctx context.Context, sess store.Session, blogID, postID int64) (int64, bool, error) {
	ids, err := sess.PostsByGUID(ctx, Encode(blogID, postID))
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}
