package watch

import (
	"context"
	"fmt"
	"time"

	"autonotice/internal/storage"
	logx "autonotice/pkg/logx"
)

// Processor runs one check-and-deliver cycle for a single follower.
type Processor interface {
	Process(ctx context.Context, f storage.Follower) error
}

type RunnerConfig struct {
	// Cooldown skips a follower checked less than this long ago, so a
	// catch-up job and a regular job colliding on the same day do not
	// double-process. Default 1h.
	Cooldown time.Duration
	// Pacing is the sleep between successive followers (not after the
	// last), protecting the hub and Telegram from bursts. Default 1m.
	Pacing time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Cooldown <= 0 {
		c.Cooldown = time.Hour
	}
	if c.Pacing <= 0 {
		c.Pacing = time.Minute
	}
	return c
}

// Runner executes a group batch strictly sequentially with per-follower
// failure isolation: one bad follower never aborts the rest of the batch.
type Runner struct {
	store storage.Store
	pipe  Processor
	admin AdminNotifier
	cfg   RunnerConfig
	clock Clock
	log   logx.Logger
}

func NewRunner(store storage.Store, pipe Processor, admin AdminNotifier, cfg RunnerConfig, clock Clock, log logx.Logger) *Runner {
	if clock == nil {
		clock = RealClock()
	}
	return &Runner{
		store: store,
		pipe:  pipe,
		admin: admin,
		cfg:   cfg.withDefaults(),
		clock: clock,
		log:   log,
	}
}

// Run processes the group's followers in order. A missing collaborator is a
// batch-level precondition failure: nothing is processed.
func (r *Runner) Run(ctx context.Context, ids []string, group int) {
	if r.store == nil || r.pipe == nil {
		r.log.Error("batch aborted: collaborators not initialized", logx.Int("group", group))
		if r.admin != nil {
			r.admin.Alert(ctx, fmt.Sprintf("group %d aborted: collaborators not initialized", group))
		}
		return
	}

	r.log.Info("group batch starting", logx.Int("group", group), logx.Int("followers", len(ids)))

	for i, id := range ids {
		// Between-followers is the natural checkpoint: state is already
		// persisted per delivered item, so stopping here loses nothing.
		if ctx.Err() != nil {
			r.log.Warn("group batch interrupted", logx.Int("group", group), logx.Int("done", i))
			return
		}

		r.log.Debug("processing follower",
			logx.Int("group", group),
			logx.String("follower", id),
			logx.Int("pos", i+1),
			logx.Int("total", len(ids)))

		r.processOne(ctx, id, group)

		if i < len(ids)-1 {
			if err := r.clock.Sleep(ctx, r.cfg.Pacing); err != nil {
				return
			}
		}
	}

	r.log.Info("group batch finished", logx.Int("group", group))
}

func (r *Runner) processOne(ctx context.Context, id string, group int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("follower processing panicked",
				logx.Int("group", group), logx.String("follower", id), logx.Any("panic", rec))
			r.admin.Alert(ctx, fmt.Sprintf("group %d panic for %s: %v", group, id, rec))
		}
	}()

	f, ok, err := r.store.Follower(ctx, id)
	if err != nil {
		r.log.Error("follower load failed", logx.String("follower", id), logx.Err(err))
		r.admin.Alert(ctx, fmt.Sprintf("group %d error for %s: %v", group, id, err))
		return
	}
	if !ok || f.Category == storage.CategoryDisabled {
		r.log.Debug("follower skipped (absent or disabled)", logx.String("follower", id))
		return
	}

	if !f.LastProcessedAt.IsZero() {
		if since := r.clock.Now().Sub(f.LastProcessedAt); since < r.cfg.Cooldown {
			r.log.Debug("follower skipped (cooldown)",
				logx.String("follower", id), logx.Duration("since", since))
			return
		}
	}

	if err := r.pipe.Process(ctx, f); err != nil {
		r.log.Error("follower processing failed",
			logx.Int("group", group), logx.String("follower", id), logx.Err(err))
		r.admin.Alert(ctx, fmt.Sprintf("group %d error for %s: %v", group, id, err))
	}
}
