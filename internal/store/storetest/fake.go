// internal/store/storetest/fake.go
//
// In-memory store.Session used by replication-core tests.
//
// The fake models the whole network in one value: a map of blog id to that
// blog's posts, meta, and term assignments.  Switching the active blog
// re-points every operation, exactly like the SQL session's prefix
// computation.  Error injection fields let tests exercise propagation paths
// without a database.
package storetest

import (
	"context"
	"sort"
	"strings"

	"github.com/klandestino/sitewide-archive/internal/store"
)

// BlogData holds one blog's content tables.
type BlogData struct {
	Posts  map[int64]*store.Post
	Meta   map[int64][]store.Meta
	Terms  map[int64][]store.Term
	NextID int64
}

// Fake implements store.Session over plain maps.
type Fake struct {
	Blogs  map[int64]*BlogData
	active int64

	// Optional error injection, returned once by the named operation.
	InsertErr  error
	UpdateErr  error
	ReplaceErr error
}

var _ store.Session = (*Fake)(nil)

// New builds an empty network with the given blogs provisioned.
func New(blogIDs ...int64) *Fake {
	f := &Fake{Blogs: make(map[int64]*BlogData)}
	for _, id := range blogIDs {
		f.ensure(id)
	}
	return f
}

func (f *Fake) ensure(id int64) *BlogData {
	b, ok := f.Blogs[id]
	if !ok {
		b = &BlogData{
			Posts:  make(map[int64]*store.Post),
			Meta:   make(map[int64][]store.Meta),
			Terms:  make(map[int64][]store.Term),
			NextID: 1,
		}
		f.Blogs[id] = b
	}
	return b
}

// Seed places a post into blog blogID with a fixed id, for test setup.
func (f *Fake) Seed(blogID int64, p store.Post) {
	b := f.ensure(blogID)
	cp := p
	b.Posts[p.ID] = &cp
	if p.ID >= b.NextID {
		b.NextID = p.ID + 1
	}
}

// SeedTerms sets the origin-side term assignments for a post.
func (f *Fake) SeedTerms(blogID, postID int64, terms []store.Term) {
	f.ensure(blogID).Terms[postID] = terms
}

// SeedMeta sets the origin-side metadata for a post.
func (f *Fake) SeedMeta(blogID, postID int64, metas []store.Meta) {
	f.ensure(blogID).Meta[postID] = metas
}

func (f *Fake) blog() *BlogData { return f.ensure(f.active) }

func (f *Fake) ActiveBlog() int64      { return f.active }
func (f *Fake) SetActiveBlog(id int64) { f.active = id }

func (f *Fake) GetPost(_ context.Context, id int64) (*store.Post, error) {
	p, ok := f.blog().Posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *Fake) InsertPost(_ context.Context, p *store.Post) (int64, error) {
	if err := f.InsertErr; err != nil {
		f.InsertErr = nil
		return 0, err
	}
	b := f.blog()
	cp := *p
	cp.ID = b.NextID
	b.NextID++
	b.Posts[cp.ID] = &cp
	return cp.ID, nil
}

func (f *Fake) UpdatePost(_ context.Context, p *store.Post) error {
	if err := f.UpdateErr; err != nil {
		f.UpdateErr = nil
		return err
	}
	b := f.blog()
	if _, ok := b.Posts[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	b.Posts[p.ID] = &cp
	return nil
}

func (f *Fake) DeletePost(_ context.Context, id int64) error {
	b := f.blog()
	delete(b.Posts, id)
	delete(b.Meta, id)
	delete(b.Terms, id)
	return nil
}

func (f *Fake) matchesRead(p *store.Post, flt store.PostFilter) bool {
	if !matches(p, flt) {
		return false
	}
	if flt.Search != "" &&
		!strings.Contains(p.Title, flt.Search) && !strings.Contains(p.Content, flt.Search) {
		return false
	}
	if flt.AuthorID > 0 && p.Author != flt.AuthorID {
		return false
	}
	if flt.Taxonomy != "" && flt.TermSlug != "" {
		found := false
		for _, t := range f.blog().Terms[p.ID] {
			if t.Taxonomy == flt.Taxonomy && t.Slug == flt.TermSlug {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matches(p *store.Post, flt store.PostFilter) bool {
	if flt.Status != "" && p.Status != flt.Status {
		return false
	}
	if flt.AfterID > 0 && p.ID <= flt.AfterID {
		return false
	}
	if len(flt.Types) > 0 {
		found := false
		for _, t := range flt.Types {
			if p.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *Fake) PostIDs(_ context.Context, flt store.PostFilter) ([]int64, error) {
	var ids []int64
	for id, p := range f.blog().Posts {
		if matches(p, flt) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if flt.Limit > 0 && len(ids) > flt.Limit {
		ids = ids[:flt.Limit]
	}
	return ids, nil
}

func (f *Fake) CountPosts(_ context.Context, flt store.PostFilter) (int64, error) {
	var n int64
	for _, p := range f.blog().Posts {
		if matches(p, flt) {
			n++
		}
	}
	return n, nil
}

func (f *Fake) Posts(_ context.Context, flt store.PostFilter) ([]*store.Post, error) {
	var out []*store.Post
	for _, p := range f.blog().Posts {
		if f.matchesRead(p, flt) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *Fake) PostsByGUID(_ context.Context, guid string) ([]int64, error) {
	var ids []int64
	for id, p := range f.blog().Posts {
		if p.GUID == guid {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *Fake) PostsByGUIDPrefix(_ context.Context, prefix string) ([]store.PostRef, error) {
	var refs []store.PostRef
	for id, p := range f.blog().Posts {
		if strings.HasPrefix(p.GUID, prefix) {
			refs = append(refs, store.PostRef{ID: id, GUID: p.GUID})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (f *Fake) TermsForPost(_ context.Context, postID int64, taxonomies []string) ([]store.Term, error) {
	var out []store.Term
	for _, t := range f.blog().Terms[postID] {
		for _, tax := range taxonomies {
			if t.Taxonomy == tax {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) ReplaceTermRelationships(_ context.Context, postID int64, terms []store.Term) error {
	if err := f.ReplaceErr; err != nil {
		f.ReplaceErr = nil
		return err
	}
	f.blog().Terms[postID] = append([]store.Term(nil), terms...)
	return nil
}

func (f *Fake) PostMeta(_ context.Context, postID int64) ([]store.Meta, error) {
	return append([]store.Meta(nil), f.blog().Meta[postID]...), nil
}

func (f *Fake) ReplaceMeta(_ context.Context, postID int64, metas []store.Meta) error {
	f.blog().Meta[postID] = append([]store.Meta(nil), metas...)
	return nil
}

func (f *Fake) SetMeta(_ context.Context, postID int64, key, value string) error {
	b := f.blog()
	kept := b.Meta[postID][:0]
	for _, m := range b.Meta[postID] {
		if m.Key != key {
			kept = append(kept, m)
		}
	}
	b.Meta[postID] = append(kept, store.Meta{Key: key, Value: value})
	return nil
}

func (f *Fake) DistinctPostTypes(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range f.blog().Posts {
		seen[p.Type] = struct{}{}
	}
	return sortedKeys(seen), nil
}

func (f *Fake) DistinctTaxonomies(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, terms := range f.blog().Terms {
		for _, t := range terms {
			seen[t.Taxonomy] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (f *Fake) WipeArchive(_ context.Context, postType string) error {
	b := f.blog()
	for id, p := range b.Posts {
		if p.Type == postType {
			delete(b.Posts, id)
			delete(b.Meta, id)
			delete(b.Terms, id)
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
