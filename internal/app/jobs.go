package app

import (
	"context"
	"strings"
	"time"

	"motionbot/internal/config"
	"motionbot/internal/media"
	"motionbot/internal/task/scheduler"
	logx "motionbot/pkg/logx"
)

const (
	jobMediaRetention = "media.retention"
	jobMotionWatchdog = "motion.watchdog"

	retentionTimeout = 5 * time.Minute
	watchdogTimeout  = 30 * time.Second
)

// syncJobs makes the registered schedules match cfg. It is called at start
// and on every config reload; schedules are replaced by name.
func syncJobs(sched *scheduler.Service, cfg *config.Config, check scheduler.Job, log logx.Logger) {
	if keep := cfg.Media.RetentionDuration(); keep > 0 {
		dir := cfg.Media.Dir
		exts := append(append([]string(nil), cfg.Media.PhotoExt...), cfg.Media.VideoExt...)
		job := func(ctx context.Context) error {
			return pruneMedia(ctx, media.NewFinder(dir, exts...), keep, log)
		}
		if _, err := sched.AddSchedule(jobMediaRetention, cfg.Media.RetentionSchedule, retentionTimeout, job); err != nil {
			log.Warn("media retention not scheduled", logx.Err(err))
		}
	} else if sched.Remove(jobMediaRetention) {
		log.Info("media retention disabled")
	}

	if spec := strings.TrimSpace(cfg.Motion.Watchdog); spec != "" && check != nil {
		if _, err := sched.AddSchedule(jobMotionWatchdog, spec, watchdogTimeout, check); err != nil {
			log.Warn("motion watchdog not scheduled", logx.Err(err))
		}
	} else if sched.Remove(jobMotionWatchdog) {
		log.Info("motion watchdog disabled")
	}
}

func pruneMedia(ctx context.Context, f *media.Finder, keep time.Duration, log logx.Logger) error {
	res, err := media.Prune(ctx, f, keep, time.Now())
	if res.Removed > 0 || res.Failed > 0 {
		log.Info("media pruned", logx.String("result", res.String()), logx.Duration("older_than", keep))
	}
	return err
}
