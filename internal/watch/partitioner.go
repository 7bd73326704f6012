package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autonotice/internal/scheduler"
	logx "autonotice/pkg/logx"
)

// GroupJobPrefix tags the recurring group jobs the partitioner owns; only
// jobs with this prefix are replaced on refresh.
const GroupJobPrefix = "group_job_"

const makeupJobPrefix = "makeup_job_"

// catchUpWindow is how far past a trigger hour a refresh still registers an
// immediate catch-up job for that group. Tied to the daily refresh cadence;
// with group counts that don't divide 24 the later groups cluster, which is
// accepted behavior.
const catchUpWindow = 2

// Registry is the job surface the partitioner needs.
type Registry interface {
	Upsert(j scheduler.Job) error
	Remove(id string) bool
	IDs(prefix string) []string
}

// FollowerLister yields the schedulable follower ids in stable order.
type FollowerLister interface {
	ActiveFollowerIDs(ctx context.Context) ([]string, error)
}

// BatchFunc executes one group batch.
type BatchFunc func(ctx context.Context, ids []string, group int)

type PartitionerConfig struct {
	// Groups is the number of daily partitions. Default 6.
	Groups int
	// MisfireGrace is attached to every group job. Default 1h.
	MisfireGrace time.Duration
}

func (c PartitionerConfig) withDefaults() PartitionerConfig {
	if c.Groups <= 0 {
		c.Groups = 6
	}
	if c.MisfireGrace <= 0 {
		c.MisfireGrace = time.Hour
	}
	return c
}

// Partitioner recomputes the daily schedule: it slices the eligible
// followers into contiguous groups, spreads their trigger hours across the
// day, and (re)registers one recurring job per group. Group membership is
// never persisted; determinism comes from recomputing over the same
// stable-ordered id list each cycle.
type Partitioner struct {
	store FollowerLister
	reg   Registry
	run   BatchFunc
	cfg   PartitionerConfig
	loc   *time.Location
	clock Clock
	log   logx.Logger
}

func NewPartitioner(store FollowerLister, reg Registry, run BatchFunc, cfg PartitionerConfig, loc *time.Location, clock Clock, log logx.Logger) *Partitioner {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Partitioner{
		store: store,
		reg:   reg,
		run:   run,
		cfg:   cfg.withDefaults(),
		loc:   loc,
		clock: clock,
		log:   log,
	}
}

// Refresh rebuilds the group jobs. On a store read failure the previous
// day's registrations remain in effect (stale but non-fatal); the next
// scheduled refresh retries.
func (p *Partitioner) Refresh(ctx context.Context) {
	ids, err := p.store.ActiveFollowerIDs(ctx)
	if err != nil {
		p.log.Error("schedule refresh failed, keeping previous jobs", logx.Err(err))
		return
	}
	if len(ids) == 0 {
		p.log.Warn("no active followers, keeping previous jobs")
		return
	}

	parts := PartitionIDs(ids, p.cfg.Groups)

	for _, id := range p.reg.IDs(GroupJobPrefix) {
		p.reg.Remove(id)
	}

	p.log.Info("scheduling followers",
		logx.Int("followers", len(ids)),
		logx.Int("groups", p.cfg.Groups),
		logx.Int("non_empty", len(parts)))

	for i, part := range parts {
		i, part := i, part
		hour := TriggerHour(i, p.cfg.Groups)
		job := scheduler.Job{
			ID:      fmt.Sprintf("%s%d", GroupJobPrefix, i),
			Trigger: scheduler.Recurring{Hour: hour, Minute: 0, Grace: p.cfg.MisfireGrace},
			Run:     func(ctx context.Context) { p.run(ctx, part, i) },
		}
		if err := p.reg.Upsert(job); err != nil {
			p.log.Error("group job registration failed", logx.Int("group", i), logx.Err(err))
			continue
		}
		p.log.Info("group job registered",
			logx.Int("group", i),
			logx.Int("followers", len(part)),
			logx.Int("hour", hour))
	}

	p.catchUp(parts)
}

// catchUp registers a one-shot immediate job for every group whose trigger
// already passed within the catch-up window, so a refresh that happens after
// the trigger (typically at process startup) doesn't silently skip today's
// batch. The cooldown in the runner keeps a catch-up twin from
// double-processing followers the recurring job already handled.
func (p *Partitioner) catchUp(parts [][]string) {
	now := p.clock.Now().In(p.loc)
	hour := now.Hour()

	for i, part := range parts {
		i, part := i, part
		trigger := TriggerHour(i, p.cfg.Groups)
		if hour < trigger || hour >= trigger+catchUpWindow {
			continue
		}
		p.log.Info("missed trigger detected, running group now",
			logx.Int("group", i), logx.Int("trigger_hour", trigger))
		job := scheduler.Job{
			ID:      fmt.Sprintf("%s%d_%s", makeupJobPrefix, i, uuid.NewString()),
			Trigger: scheduler.Once{At: now},
			Run:     func(ctx context.Context) { p.run(ctx, part, i) },
		}
		if err := p.reg.Upsert(job); err != nil {
			p.log.Error("catch-up job registration failed", logx.Int("group", i), logx.Err(err))
		}
	}
}

// PartitionIDs slices ids into up to groups contiguous parts of equal size
// (ceil(len/groups)); the last part may be shorter and empty tail groups are
// not produced. Every id appears in exactly one part, in input order.
func PartitionIDs(ids []string, groups int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if groups < 1 {
		groups = 1
	}
	size := (len(ids) + groups - 1) / groups
	parts := make([][]string, 0, groups)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		parts = append(parts, ids[start:end])
	}
	return parts
}

// TriggerHour spreads group triggers across the day: hour spacing is
// floor(24/groups) clamped to at least 1, so large group counts wrap rather
// than overflow the day.
func TriggerHour(index, groups int) int {
	if groups < 1 {
		groups = 1
	}
	interval := 24 / groups
	if interval < 1 {
		interval = 1
	}
	return (index * interval) % 24
}
