package cronjobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/robfig/cron/v3"
)

// ScanTarget runs one scheduled scan of a target given as a bbox, city id
// or place:name.
type ScanTarget func(ctx context.Context, target string) error

// cronLogger adapts a go-kit logger to cron.Logger.
type cronLogger struct{ logger log.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	level.Debug(l.logger).Log(append([]interface{}{"msg", msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	level.Error(l.logger).Log(append([]interface{}{"msg", msg, "err", err}, keysAndValues...)...)
}

// InitCronJobs schedules one job per target on schedule and starts the
// scheduler. A job still running when its next tick fires is skipped.
// Jobs stop being scheduled once ctx is done; the caller stops the returned
// cron to wait for running jobs.
func InitCronJobs(ctx context.Context, schedule string, targets []string, scan ScanTarget, logger log.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if schedule == "" {
		return nil, errors.New("empty schedule")
	}
	if len(targets) == 0 {
		return nil, errors.New("no targets to schedule")
	}

	cl := cronLogger{logger: log.With(logger, "component", "cron")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	for _, target := range targets {
		target := target
		_, err := c.AddFunc(schedule, func() {
			if ctx.Err() != nil {
				return
			}
			level.Info(logger).Log("msg", "scheduled scan running", "target", target)
			if err := scan(ctx, target); err != nil {
				level.Error(logger).Log("msg", "scheduled scan failed", "target", target, "err", err)
				return
			}
			level.Info(logger).Log("msg", "scheduled scan finished", "target", target)
		})
		if err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", target, err)
		}
	}

	level.Info(logger).Log("msg", "starting cron jobs", "schedule", schedule, "targets", len(targets))
	c.Start()
	return c, nil
}
