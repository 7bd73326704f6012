package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "autonotice/pkg/logx"
)

// Job is one registered unit of scheduled work. Run receives the registry's
// run context; long jobs should check it between natural checkpoints.
type Job struct {
	ID      string
	Trigger Trigger
	Run     func(ctx context.Context)
}

type entry struct {
	job   Job
	sched cron.Schedule // nil for one-shot jobs
	grace time.Duration
	next  time.Time
}

// Registry fires registered jobs on the process clock.
//
// It is a generic facility: it knows nothing about groups or followers.
// Re-registering a job with the same id replaces it. One-shot jobs are
// consumed after firing once. Each job callback runs on its own goroutine;
// the registry never blocks the firing loop on a slow job.
type Registry struct {
	log logx.Logger
	loc *time.Location
	now func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry
	wake chan struct{}

	runWG sync.WaitGroup
}

func NewRegistry(loc *time.Location, log logx.Logger) *Registry {
	if loc == nil {
		loc = time.Local
	}
	return &Registry{
		log:  log,
		loc:  loc,
		now:  time.Now,
		jobs: make(map[string]*entry),
		wake: make(chan struct{}, 1),
	}
}

// Upsert registers or replaces the job with the same id.
func (r *Registry) Upsert(j Job) error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("scheduler: job id is empty")
	}
	if j.Run == nil {
		return fmt.Errorf("scheduler: job %s has no callback", j.ID)
	}

	e := &entry{job: j}
	switch t := j.Trigger.(type) {
	case Recurring:
		sched, err := t.schedule()
		if err != nil {
			return err
		}
		e.sched = sched
		e.grace = t.Grace
		e.next = sched.Next(r.now().In(r.loc))
	case Once:
		e.next = t.At
		if e.next.IsZero() {
			e.next = r.now()
		}
	default:
		return fmt.Errorf("scheduler: job %s has unknown trigger %T", j.ID, j.Trigger)
	}

	r.mu.Lock()
	r.jobs[j.ID] = e
	r.mu.Unlock()
	r.kick()
	return nil
}

// Remove deletes the job if present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	return ok
}

// IDs lists registered job ids with the given prefix, sorted.
// An empty prefix lists everything.
func (r *Registry) IDs(prefix string) []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Run drives the firing loop until ctx is done, then waits for in-flight
// job callbacks to return.
func (r *Registry) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		r.fireDue(ctx)

		wait := r.untilNext()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			r.runWG.Wait()
			return nil
		case <-r.wake:
		case <-timer.C:
		}
	}
}

func (r *Registry) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// untilNext returns how long the loop may sleep before the earliest job is due.
func (r *Registry) untilNext() time.Duration {
	const idle = time.Minute

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return idle
	}
	now := r.now()
	wait := idle
	for _, e := range r.jobs {
		if d := e.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// fireDue starts every due job and advances/consumes its trigger.
func (r *Registry) fireDue(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	var runs []Job
	for id, e := range r.jobs {
		if e.next.After(now) {
			continue
		}
		if e.sched == nil {
			// One-shot: consumed on first firing.
			runs = append(runs, e.job)
			delete(r.jobs, id)
			continue
		}
		late := now.Sub(e.next)
		if e.grace > 0 && late > e.grace {
			r.log.Warn("occurrence skipped past grace window",
				logx.String("job", id),
				logx.Time("due", e.next),
				logx.Duration("late", late))
		} else {
			runs = append(runs, e.job)
		}
		e.next = e.sched.Next(now.In(r.loc))
	}
	r.mu.Unlock()

	for _, j := range runs {
		j := j
		r.runWG.Add(1)
		go func() {
			defer r.runWG.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("job panicked", logx.String("job", j.ID), logx.Any("panic", rec))
				}
			}()
			r.log.Debug("job firing", logx.String("job", j.ID))
			j.Run(ctx)
		}()
	}
}
