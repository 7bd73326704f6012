package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger describes when a job fires. Exactly one variant is used per job.
type Trigger interface {
	isTrigger()
}

// Recurring fires daily at Hour:Minute (registry timezone).
//
// Grace is the misfire window: if the loop could not fire the job at its due
// time (process asleep, long GC pause, clock jump), the occurrence still
// fires as long as no more than Grace has passed. Beyond that the occurrence
// is skipped, never executed late.
type Recurring struct {
	Hour   int
	Minute int
	Grace  time.Duration
}

// Once fires a single time at At (or immediately if At is already past),
// then the job is consumed.
type Once struct {
	At time.Time
}

func (Recurring) isTrigger() {}
func (Once) isTrigger()      {}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (r Recurring) schedule() (cron.Schedule, error) {
	if r.Hour < 0 || r.Hour > 23 {
		return nil, fmt.Errorf("recurring trigger: invalid hour %d", r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return nil, fmt.Errorf("recurring trigger: invalid minute %d", r.Minute)
	}
	return cronParser.Parse(fmt.Sprintf("%d %d * * *", r.Minute, r.Hour))
}
