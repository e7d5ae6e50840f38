// internal/populate/controller_test.go
//
// Batch-walk tests for archive population: cursor advancement, resumability,
// skip and termination behavior.

package populate

import (
	"context"
	"fmt"
	"testing"

	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/store/storetest"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// fakeNetwork serves blog-directory calls from plain maps.
type fakeNetwork struct {
	blogs  []int64 // ascending
	public map[int64]bool
	names  map[int64]string
}

func (n *fakeNetwork) First(_ context.Context) (int64, error) {
	if len(n.blogs) == 0 {
		return 0, nil
	}
	return n.blogs[0], nil
}

func (n *fakeNetwork) ByID(_ context.Context, id int64) (*blog.Record, error) {
	for _, b := range n.blogs {
		if b == id {
			return &blog.Record{ID: id}, nil
		}
	}
	return nil, blog.ErrNotFound
}

func (n *fakeNetwork) NextAfter(_ context.Context, after int64) (int64, error) {
	for _, b := range n.blogs {
		if b > after {
			return b, nil
		}
	}
	return 0, nil
}

func (n *fakeNetwork) Count(_ context.Context) (int64, error) {
	return int64(len(n.blogs)), nil
}

func (n *fakeNetwork) IsPublic(_ context.Context, id int64) (bool, error) {
	return n.public[id], nil
}

func (n *fakeNetwork) Option(_ context.Context, blogID int64, name string) (string, error) {
	if name == "blogname" {
		return n.names[blogID], nil
	}
	return "", nil
}

// recordSyncer records which posts were synced and under which active blog.
type recordSyncer struct {
	sess  store.Session
	ids   []int64
	blogs []int64
}

func (r *recordSyncer) Sync(_ context.Context, postID int64) error {
	r.ids = append(r.ids, postID)
	r.blogs = append(r.blogs, r.sess.ActiveBlog())
	return nil
}

type fixedTokens struct{ n int }

func (t *fixedTokens) Issue(action string) string {
	t.n++
	return fmt.Sprintf("tok-%d", t.n)
}

func newController(f *storetest.Fake, net *fakeNetwork, set settings.Settings) (*Controller, *recordSyncer) {
	f.SetActiveBlog(1)
	sw := tenancy.New(f)
	syncer := &recordSyncer{sess: f}
	return New(f, sw, set, net, syncer, &fixedTokens{}, nil), syncer
}

func seedPosts(f *storetest.Fake, blogID int64, n int) {
	for i := 1; i <= n; i++ {
		f.Seed(blogID, store.Post{ID: int64(i), Status: "publish", Type: "post"})
	}
}

func TestStepDisabledReturnsUnchanged(t *testing.T) {
	f := storetest.New(1)
	ctl, syncer := newController(f, &fakeNetwork{blogs: []int64{1}}, settings.Settings{})

	in := Checkpoint{Blog: 2, BlogCount: 5, Post: 30, PostCount: 9}
	step, err := ctl.Step(context.Background(), in)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.Checkpoint != in || step.Status != "" || step.Security != "" {
		t.Fatalf("disabled Step mutated state: %+v", step)
	}
	if len(syncer.ids) != 0 {
		t.Fatalf("disabled Step synced %d posts", len(syncer.ids))
	}
}

func TestStepEmptyNetwork(t *testing.T) {
	f := storetest.New(1)
	set := settings.Settings{ArchiveBlogID: 5, PostTypes: []string{"post"}}
	ctl, _ := newController(f, &fakeNetwork{}, set)

	step, err := ctl.Step(context.Background(), Checkpoint{})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.Status != StatusDone || step.Message != "No blogs found" {
		t.Fatalf("empty network step = %+v", step)
	}
}

// TestFullWalk drives the canonical run: blog 1 holds no eligible posts,
// blog 2 holds 150.  The walk takes four calls: skip-forward, a batch of
// 100, a batch of 50, and the terminating call.
func TestFullWalk(t *testing.T) {
	f := storetest.New(1, 2, 5)
	seedPosts(f, 2, 150)
	net := &fakeNetwork{
		blogs:  []int64{1, 2},
		public: map[int64]bool{1: true, 2: true},
		names:  map[int64]string{1: "Alpha", 2: "Beta"},
	}
	set := settings.Settings{ArchiveBlogID: 5, PostTypes: []string{"post"}}
	ctl, syncer := newController(f, net, set)
	ctx := context.Background()

	// Call 1: blog 1 is empty, cursor advances to blog 2.
	step, err := ctl.Step(ctx, Checkpoint{})
	if err != nil {
		t.Fatalf("call 1: %v", err)
	}
	if step.Status != StatusOK || step.Blog != 2 || step.Post != 0 || step.BlogCount != 1 {
		t.Fatalf("call 1 step = %+v", step)
	}
	if step.PostDone != 0 {
		t.Fatalf("call 1 processed %d posts, want 0", step.PostDone)
	}
	if step.Security == "" || step.Action != Action {
		t.Fatalf("call 1 missing continuation auth: %+v", step)
	}

	// Call 2: first hundred posts of blog 2.
	step, err = ctl.Step(ctx, step.Checkpoint)
	if err != nil {
		t.Fatalf("call 2: %v", err)
	}
	if step.Status != StatusOK || step.PostDone != 100 || step.Post != 100 {
		t.Fatalf("call 2 step = %+v", step)
	}
	if step.PostCount != 50 {
		t.Fatalf("call 2 remaining = %d, want 50", step.PostCount)
	}
	if step.Message != "Copied 100 of 150 from Beta." {
		t.Fatalf("call 2 message = %q", step.Message)
	}

	// Call 3: the remaining fifty.
	step, err = ctl.Step(ctx, step.Checkpoint)
	if err != nil {
		t.Fatalf("call 3: %v", err)
	}
	if step.Status != StatusOK || step.PostDone != 50 || step.Post != 150 {
		t.Fatalf("call 3 step = %+v", step)
	}

	// Call 4: blog 2 exhausted, no blogs remain.
	step, err = ctl.Step(ctx, step.Checkpoint)
	if err != nil {
		t.Fatalf("call 4: %v", err)
	}
	if step.Status != StatusDone || step.Blog != 0 {
		t.Fatalf("call 4 step = %+v", step)
	}

	if len(syncer.ids) != 150 {
		t.Fatalf("synced %d posts total, want 150", len(syncer.ids))
	}
	// Ascending post ids, all under blog 2's context.
	for i, id := range syncer.ids {
		if id != int64(i+1) {
			t.Fatalf("sync order broken at %d: got id %d", i, id)
		}
		if syncer.blogs[i] != 2 {
			t.Fatalf("sync %d ran under blog %d, want 2", i, syncer.blogs[i])
		}
	}
	if f.ActiveBlog() != 1 {
		t.Fatalf("active blog = %d after walk, want 1", f.ActiveBlog())
	}
}

func TestStepSkipsNonPublicBlog(t *testing.T) {
	f := storetest.New(1, 3, 5)
	seedPosts(f, 3, 10)
	net := &fakeNetwork{
		blogs:  []int64{3},
		public: map[int64]bool{3: false},
		names:  map[int64]string{3: "Hidden"},
	}
	set := settings.Settings{ArchiveBlogID: 5, PostTypes: []string{"post"}}
	ctl, syncer := newController(f, net, set)

	step, err := ctl.Step(context.Background(), Checkpoint{})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(syncer.ids) != 0 {
		t.Fatalf("non-public blog synced %d posts", len(syncer.ids))
	}
	if step.Message != "Blog Hidden is not public, skipping. 0 left to do." {
		t.Fatalf("message = %q", step.Message)
	}
	if step.Status != StatusDone {
		t.Fatalf("status = %q, want done", step.Status)
	}
}

func TestStepToleratesStaleBlogCheckpoint(t *testing.T) {
	f := storetest.New(1, 5, 9)
	seedPosts(f, 9, 3)
	net := &fakeNetwork{
		blogs:  []int64{1, 9},
		public: map[int64]bool{1: true, 9: true},
		names:  map[int64]string{1: "Alpha", 9: "Omega"},
	}
	set := settings.Settings{ArchiveBlogID: 5, PostTypes: []string{"post"}}
	ctl, syncer := newController(f, net, set)

	// Blog 7 vanished since the checkpoint was handed out.
	step, err := ctl.Step(context.Background(), Checkpoint{Blog: 7, BlogCount: 2, Post: 50, PostCount: 40})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if step.Blog != 9 {
		t.Fatalf("cursor = %d, want 9", step.Blog)
	}
	// The stale post cursor and count must not carry over into the next
	// blog, and the vanished blog leaves the countdown.
	if len(syncer.ids) != 3 {
		t.Fatalf("synced %d posts, want 3", len(syncer.ids))
	}
	if step.Message != "Copied 3 of 3 from Omega." {
		t.Fatalf("message = %q", step.Message)
	}
	if step.BlogCount != 1 {
		t.Fatalf("blog count = %d, want 1", step.BlogCount)
	}
	if step.PostCount != 0 {
		t.Fatalf("post count = %d, want 0", step.PostCount)
	}
	if step.Status != StatusOK {
		t.Fatalf("status = %q, want ok", step.Status)
	}
}

func TestParseCheckpoint(t *testing.T) {
	vals := map[string]string{
		"blog":       "2",
		"blog_count": "5",
		"post":       "130",
		"post_count": "oops",
	}
	cp := ParseCheckpoint(func(k string) string { return vals[k] })
	want := Checkpoint{Blog: 2, BlogCount: 5, Post: 130, PostCount: 0}
	if cp != want {
		t.Fatalf("ParseCheckpoint = %+v, want %+v", cp, want)
	}

	// Negative and absent fields map to zero.
	cp = ParseCheckpoint(func(k string) string {
		if k == "blog" {
			return "-4"
		}
		return ""
	})
	if cp != (Checkpoint{}) {
		t.Fatalf("ParseCheckpoint on garbage = %+v, want zero", cp)
	}
}
