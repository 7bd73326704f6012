// Package scheduler provides the clock-driven job registry.
//
// Jobs carry either a Recurring trigger (daily at HH:MM with a misfire grace
// window) or a Once trigger (a single instant, consumed after firing). The
// registry runs its own firing loop instead of delegating to a cron runner so
// the grace rule can be enforced exactly: a recurring occurrence that is due
// but within grace still fires once; past grace it is skipped for that
// occurrence rather than executed late. Cron schedules are only used to
// compute next-run times.
package scheduler
