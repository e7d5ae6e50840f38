// internal/populate/controller.go
//
// Incremental archive population.
//
// Context
// -------
// Rebuilding the archive touches every published post of every blog, far
// too much for one request.  The controller therefore processes one batch
// per call and round-trips a checkpoint through the client: each call is a
// function of (settings, incoming checkpoint) and returns the advanced
// checkpoint plus an "ok" or "done" status.  Blogs advance in ascending id
// order; within a blog, posts advance in ascending id order above the
// checkpointed id, so every call makes forward progress and an abandoned
// run is resumable from its last returned checkpoint.
//
// A checkpointed blog id that no longer exists is treated as exhausted, not
// as an error; the cursor simply advances.
package populate

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/klandestino/sitewide-archive/internal/blog"
	"github.com/klandestino/sitewide-archive/internal/metrics"
	"github.com/klandestino/sitewide-archive/internal/settings"
	"github.com/klandestino/sitewide-archive/internal/store"
	"github.com/klandestino/sitewide-archive/internal/tenancy"
)

// ChunkSize caps how many posts one batch mirrors.
const ChunkSize = 100

// Action is the wire action name a client resubmits with the checkpoint.
const Action = "populate_archive"

// Statuses reported to the client.
const (
	StatusOK   = "ok"
	StatusDone = "done"
)

// Checkpoint is the resumable cursor round-tripped through the client.
type Checkpoint struct {
	// Blog is the blog currently being processed, 0 to start over.
	Blog int64 `json:"blog"`
	// BlogCount is how many blogs remain, 0 when not yet computed.
	BlogCount int64 `json:"blog_count"`
	// Post is the highest post id already processed in Blog.
	Post int64 `json:"post"`
	// PostCount estimates how many posts remain in Blog, 0 when unknown.
	PostCount int64 `json:"post_count"`
}

// Step is one batch response: the advanced checkpoint plus progress fields.
type Step struct {
	Checkpoint
	PostDone int    `json:"post_done"`
	BlogName string `json:"blog_name,omitempty"`
	Message  string `json:"message,omitempty"`
	Status   string `json:"status,omitempty"`
	Security string `json:"security,omitempty"`
	Action   string `json:"action,omitempty"`
}

// ParseCheckpoint reads checkpoint fields from form values, mapping any
// absent or non-numeric field to zero.
func ParseCheckpoint(get func(string) string) Checkpoint {
	num := func(name string) int64 {
		n, err := strconv.ParseInt(get(name), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return Checkpoint{
		Blog:      num("blog"),
		BlogCount: num("blog_count"),
		Post:      num("post"),
		PostCount: num("post_count"),
	}
}

// Network is the slice of the blog directory the controller walks.
type Network interface {
	First(ctx context.Context) (int64, error)
	ByID(ctx context.Context, id int64) (*blog.Record, error)
	NextAfter(ctx context.Context, after int64) (int64, error)
	Count(ctx context.Context) (int64, error)
	IsPublic(ctx context.Context, id int64) (bool, error)
	Option(ctx context.Context, blogID int64, name string) (string, error)
}

// Syncer is the mirror engine's bulk entry point.
type Syncer interface {
	Sync(ctx context.Context, postID int64) error
}

// TokenIssuer mints the single-use security token embedded in each step so
// the client can authorize its next call.
type TokenIssuer interface {
	Issue(action string) string
}

// Controller drives one populate batch per call.
type Controller struct {
	sess   store.Session
	sw     *tenancy.Switcher
	set    settings.Settings
	blogs  Network
	engine Syncer
	tokens TokenIssuer
	log    *zap.SugaredLogger
}

// New builds a request-local controller.
func New(sess store.Session, sw *tenancy.Switcher, set settings.Settings, blogs Network, engine Syncer, tokens TokenIssuer, log *zap.SugaredLogger) *Controller {
	if log == nil {
		log = zap.S()
	}
	return &Controller{
		sess: sess, sw: sw, set: set,
		blogs: blogs, engine: engine, tokens: tokens, log: log,
	}
}

// Step processes one batch.  With no archive blog configured it returns the
// incoming checkpoint unchanged and no status, the documented disabled
// state.
func (c *Controller) Step(ctx context.Context, in Checkpoint) (Step, error) {
	step := Step{Checkpoint: in}
	if !c.set.Enabled() {
		return step, nil
	}
	metrics.PopulateBatchesTotal.Inc()

	// Resolve the cursor blog: lowest id on a fresh run, otherwise
	// re-verify the checkpointed id still exists.
	var err error
	if step.Blog == 0 {
		step.Blog, err = c.blogs.First(ctx)
	} else {
		_, err = c.blogs.ByID(ctx, step.Blog)
		if err == blog.ErrNotFound {
			// Stale checkpoint: the blog is gone, keep walking from its id.
			// Its post bookkeeping goes with it: the next blog counts its
			// own posts, and the blog countdown must not count the ghost.
			step.Blog, err = c.blogs.NextAfter(ctx, step.Blog)
			step.Post = 0
			step.PostCount = 0
			if step.BlogCount > 0 {
				step.BlogCount--
			}
		}
	}
	if err != nil {
		return step, err
	}
	if step.Blog == 0 {
		step.Status = StatusDone
		step.Message = "No blogs found"
		return step, nil
	}

	if step.BlogName, err = c.blogs.Option(ctx, step.Blog, "blogname"); err != nil {
		return step, err
	}
	if step.BlogCount == 0 {
		if step.BlogCount, err = c.blogs.Count(ctx); err != nil {
			return step, err
		}
	}

	public, err := c.blogs.IsPublic(ctx, step.Blog)
	if err != nil {
		return step, err
	}
	if public {
		if err := c.processBatch(ctx, &step); err != nil {
			return step, err
		}
	} else {
		step.Message = fmt.Sprintf("Blog %s is not public, skipping. %d left to do.",
			step.BlogName, step.BlogCount-1)
	}

	// Zero posts processed means this blog is finished: reset the post
	// cursor and advance to the next blog by id.
	if step.PostDone == 0 {
		step.Post = 0
		step.BlogCount--
		if step.Blog, err = c.blogs.NextAfter(ctx, step.Blog); err != nil {
			return step, err
		}
	}

	if step.Blog != 0 {
		step.Status = StatusOK
	} else {
		step.Status = StatusDone
	}
	step.Security = c.tokens.Issue(Action)
	step.Action = Action
	return step, nil
}

// processBatch mirrors up to ChunkSize eligible posts of the cursor blog.
func (c *Controller) processBatch(ctx context.Context, step *Step) error {
	return c.sw.With(step.Blog, func() error {
		filter := store.PostFilter{
			Types:  c.set.PostTypes,
			Status: "publish",
		}

		if step.PostCount == 0 {
			count, err := c.sess.CountPosts(ctx, filter)
			if err != nil {
				return err
			}
			step.PostCount = count
		}

		filter.AfterID = step.Post
		filter.Limit = ChunkSize
		ids, err := c.sess.PostIDs(ctx, filter)
		if err != nil {
			return err
		}

		for _, id := range ids {
			if err := c.engine.Sync(ctx, id); err != nil {
				return err
			}
			step.Post = id
		}
		step.PostDone = len(ids)

		if step.PostDone > 0 {
			step.Message = fmt.Sprintf("Copied %d of %d from %s.",
				step.PostDone, step.PostCount, step.BlogName)
			step.PostCount -= int64(step.PostDone)
			c.log.Infow("populate batch",
				"blog", step.Blog, "done", step.PostDone, "remaining", step.PostCount)
		} else {
			step.Message = fmt.Sprintf("Blog %s done, %d left to do.",
				step.BlogName, step.BlogCount-1)
			step.PostCount = 0
		}
		return nil
	})
}
