// internal/mirror/engine_test.go
//
// Replication-core tests over the in-memory store fake.
//
// Run: go test ./internal/mirror -v

package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/store/storetest"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// fakeBlogs is the minimal BlogInfo for tests.
type fakeBlogs struct {
	public map[int64]bool
	urls   map[int64]string
}

func (f fakeBlogs) IsPublic(_ context.Context, id int64) (bool, error) { return f.public[id], nil }
func (f fakeBlogs) SiteURL(_ context.Context, id int64) (string, error) {
	return f.urls[id], nil
}

func testSettings() settings.Settings {
	return settings.Settings{
		ArchiveBlogID: 5,
		PostTypes:     []string{"post"},
		Taxonomies:    []string{"category", "post_tag"},
		CopyMeta:      true,
	}
}

func testBlogs() fakeBlogs {
	return fakeBlogs{
		public: map[int64]bool{1: true, 3: true},
		urls:   map[int64]string{3: "http://blog3.example"},
	}
}

// newEngine roots a fresh engine at origin over the given fake network.
func newEngine(f *storetest.Fake, origin int64, set settings.Settings, blogs fakeBlogs, hooks Hooks) (*Engine, *tenancy.Switcher) {
	f.SetActiveBlog(origin)
	sw := tenancy.New(f)
	return New(f, sw, set, blogs, hooks, nil), sw
}

func seedOrigin(f *storetest.Fake) {
	f.Seed(3, store.Post{
		ID:      42,
		Author:  7,
		Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Title:   "Hello",
		Content: "Body",
		Status:  "publish",
		Type:    "post",
		GUID:    "http://blog3.example/?p=42",
	})
}

func metaValue(metas []store.Meta, key string) (string, bool) {
	for _, m := range metas {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

func TestSyncCreatesMirror(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if f.ActiveBlog() != 3 {
		t.Fatalf("active blog = %d after sync, want 3", f.ActiveBlog())
	}

	archive := f.Blogs[5]
	if len(archive.Posts) != 1 {
		t.Fatalf("archive holds %d posts, want 1", len(archive.Posts))
	}
	var mirror *store.Post
	for _, p := range archive.Posts {
		mirror = p
	}
	if mirror.GUID != "3,42" {
		t.Errorf("mirror guid = %q, want %q", mirror.GUID, "3,42")
	}
	if mirror.Type != settings.ArchivePostType {
		t.Errorf("mirror type = %q, want %q", mirror.Type, settings.ArchivePostType)
	}
	if mirror.CommentStatus != "closed" || mirror.PingStatus != "closed" {
		t.Errorf("mirror discussion = (%q,%q), want closed/closed",
			mirror.CommentStatus, mirror.PingStatus)
	}
	if mirror.Title != "Hello" || mirror.Content != "Body" {
		t.Errorf("mirror content not copied: %+v", mirror)
	}

	metas := archive.Meta[mirror.ID]
	if v, ok := metaValue(metas, "permalink"); !ok || v != "http://blog3.example/?p=42" {
		t.Errorf("permalink meta = %q (present=%v)", v, ok)
	}
	if v, ok := metaValue(metas, "post_type"); !ok || v != "post" {
		t.Errorf("post_type meta = %q (present=%v)", v, ok)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	ctx := context.Background()
	if err := eng.Sync(ctx, 42); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	// Change the origin and sync again: same mirror row, updated content.
	f.Blogs[3].Posts[42].Title = "Hello v2"
	if err := eng.Sync(ctx, 42); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	archive := f.Blogs[5]
	if len(archive.Posts) != 1 {
		t.Fatalf("archive holds %d posts after resync, want 1", len(archive.Posts))
	}
	for _, p := range archive.Posts {
		if p.Title != "Hello v2" {
			t.Errorf("mirror title = %q, want %q", p.Title, "Hello v2")
		}
	}
}

func TestSyncGate(t *testing.T) {
	cases := []struct {
		name  string
		set   func(*settings.Settings)
		blogs func(*fakeBlogs)
		post  func(*store.Post)
	}{
		{name: "archive unset", set: func(s *settings.Settings) { s.ArchiveBlogID = 0 }},
		{name: "type not enabled", post: func(p *store.Post) { p.Type = "page" }},
		{name: "not published", post: func(p *store.Post) { p.Status = "draft" }},
		{name: "origin not public", blogs: func(b *fakeBlogs) { b.public[3] = false }},
		{name: "guid already an identity", post: func(p *store.Post) { p.GUID = "9,9" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := storetest.New(3, 5)
			seedOrigin(f)
			set := testSettings()
			blogs := testBlogs()
			if tc.set != nil {
				tc.set(&set)
			}
			if tc.blogs != nil {
				tc.blogs(&blogs)
			}
			if tc.post != nil {
				tc.post(f.Blogs[3].Posts[42])
			}

			eng, _ := newEngine(f, 3, set, blogs, Hooks{})
			if err := eng.Sync(context.Background(), 42); err != nil {
				t.Fatalf("Sync: %v", err)
			}
			if n := len(f.Blogs[5].Posts); n != 0 {
				t.Fatalf("archive holds %d posts, want 0", n)
			}
		})
	}
}

func TestSyncOnArchiveBlogIsNoOp(t *testing.T) {
	f := storetest.New(5)
	f.Seed(5, store.Post{ID: 1, Status: "publish", Type: "post", GUID: "x"})
	eng, _ := newEngine(f, 5, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 1); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n := len(f.Blogs[5].Posts); n != 1 {
		t.Fatalf("archive holds %d posts, want the 1 seeded", n)
	}
}

func TestSyncMissingPostIsNoOp(t *testing.T) {
	f := storetest.New(3, 5)
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 99); err != nil {
		t.Fatalf("Sync of absent post: %v", err)
	}
	if n := len(f.Blogs[5].Posts); n != 0 {
		t.Fatalf("archive holds %d posts, want 0", n)
	}
}

func TestOnContentChangedIgnoredMidSwitch(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	eng, sw := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	release := sw.Acquire(5)
	defer release()

	if err := eng.OnContentChanged(context.Background(), 42); err != nil {
		t.Fatalf("OnContentChanged: %v", err)
	}
	if n := len(f.Blogs[5].Posts); n != 0 {
		t.Fatalf("mid-switch event mirrored %d posts, want 0", n)
	}
}

func TestFilterPostVeto(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	hooks := Hooks{
		FilterPost: func(copy, origin *store.Post, originBlog int64) *store.Post { return nil },
	}
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), hooks)

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n := len(f.Blogs[5].Posts); n != 0 {
		t.Fatalf("vetoed sync wrote %d posts, want 0", n)
	}
}

func TestFilterPostRewrite(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	hooks := Hooks{
		FilterPost: func(copy, origin *store.Post, originBlog int64) *store.Post {
			copy.Excerpt = "rewritten"
			return copy
		},
	}
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), hooks)

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	for _, p := range f.Blogs[5].Posts {
		if p.Excerpt != "rewritten" {
			t.Errorf("mirror excerpt = %q, want %q", p.Excerpt, "rewritten")
		}
	}
}

func TestSyncInsertErrorRestoresContext(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.InsertErr = errors.New("disk full")
	eng, sw := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 42); err == nil {
		t.Fatal("Sync: want error, got nil")
	}
	if f.ActiveBlog() != 3 {
		t.Fatalf("active blog = %d after failed sync, want 3", f.ActiveBlog())
	}
	if sw.Switching() {
		t.Fatal("switch still held after failed sync")
	}
}

func TestSyncTaxonomyReplacesTerms(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.SeedTerms(3, 42, []store.Term{
		{Name: "News", Slug: "news", Taxonomy: "category"},
		{Name: "Go", Slug: "go", Taxonomy: "post_tag"},
	})
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	ctx := context.Background()
	if err := eng.Sync(ctx, 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	archive := f.Blogs[5]
	var mirrorID int64
	for id := range archive.Posts {
		mirrorID = id
	}
	if got := archive.Terms[mirrorID]; len(got) != 2 {
		t.Fatalf("mirror has %d terms, want 2: %#v", len(got), got)
	}

	// Origin terms shrink; resync must replace, not merge.
	f.SeedTerms(3, 42, []store.Term{{Name: "News", Slug: "news", Taxonomy: "category"}})
	if err := eng.SyncTaxonomy(ctx, 42); err != nil {
		t.Fatalf("SyncTaxonomy: %v", err)
	}
	got := archive.Terms[mirrorID]
	if len(got) != 1 || got[0].Slug != "news" {
		t.Fatalf("after resync terms = %#v, want just news", got)
	}
}

func TestSyncTaxonomyFiltersDisabledTaxonomies(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.SeedTerms(3, 42, []store.Term{
		{Name: "News", Slug: "news", Taxonomy: "category"},
		{Name: "Serie", Slug: "serie", Taxonomy: "series"}, // not enabled
	})
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	archive := f.Blogs[5]
	for id := range archive.Posts {
		terms := archive.Terms[id]
		if len(terms) != 1 || terms[0].Taxonomy != "category" {
			t.Fatalf("mirror terms = %#v, want only the category", terms)
		}
	}
}

func TestSyncTaxonomyWithoutMirrorIsNoOp(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.SeedTerms(3, 42, []store.Term{{Name: "News", Slug: "news", Taxonomy: "category"}})
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	// Term event arrives before any post sync created the mirror.
	if err := eng.SyncTaxonomy(context.Background(), 42); err != nil {
		t.Fatalf("SyncTaxonomy: %v", err)
	}
	if n := len(f.Blogs[5].Posts); n != 0 {
		t.Fatalf("taxonomy sync created %d posts, want 0", n)
	}
}

func TestSyncMetaCopiesAndKeepsBookkeeping(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.SeedMeta(3, 42, []store.Meta{{Key: "subtitle", Value: "deep dive"}})
	eng, _ := newEngine(f, 3, testSettings(), testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	archive := f.Blogs[5]
	for id := range archive.Posts {
		metas := archive.Meta[id]
		if v, ok := metaValue(metas, "subtitle"); !ok || v != "deep dive" {
			t.Errorf("subtitle meta = %q (present=%v)", v, ok)
		}
		// The wholesale replace ran before the bookkeeping writes, so both
		// rows must still be present.
		if _, ok := metaValue(metas, "permalink"); !ok {
			t.Error("permalink meta dropped by metadata sync")
		}
		if _, ok := metaValue(metas, "post_type"); !ok {
			t.Error("post_type meta dropped by metadata sync")
		}
	}
}

func TestSyncMetaDisabled(t *testing.T) {
	f := storetest.New(3, 5)
	seedOrigin(f)
	f.SeedMeta(3, 42, []store.Meta{{Key: "subtitle", Value: "deep dive"}})
	set := testSettings()
	set.CopyMeta = false
	eng, _ := newEngine(f, 3, set, testBlogs(), Hooks{})

	if err := eng.Sync(context.Background(), 42); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	archive := f.Blogs[5]
	for id := range archive.Posts {
		if v, ok := metaValue(archive.Meta[id], "subtitle"); ok {
			t.Errorf("subtitle meta copied with meta sync disabled: %q", v)
		}
		// Bookkeeping rows are written unconditionally.
		if _, ok := metaValue(archive.Meta[id], "permalink"); !ok {
			t.Error("permalink meta missing")
		}
	}
}
