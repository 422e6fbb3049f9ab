// Package scheduler runs named background jobs on cron or interval schedules
// (media retention, the motion watchdog).
//
// Jobs run on robfig/cron's goroutines. A job that is still running when its
// next trigger fires is skipped, never queued.
package scheduler
