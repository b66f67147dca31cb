package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// IndexJobs runs the scheduled index repair and sweep jobs.
type IndexJobs struct {
	cron   *cron.Cron
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable. It waits for a running job to return.
func (j *IndexJobs) Shutdown() error {
	j.cancel()
	ctx := j.cron.Stop()
	<-ctx.Done()
	return nil
}

// ProvideIndexJobs schedules RepairFlagged and Reconcile.
// An empty schedule leaves that job disabled.
func ProvideIndexJobs(i do.Injector) (*IndexJobs, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	searchService := do.MustInvoke[*service.SearchService](i)

	jobLog := log.Component("jobs")
	cl := cronLogger{log: jobLog}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())

	if spec := cfg.Reconcile.RepairSchedule; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			res, err := searchService.RepairFlagged(ctx)
			if err != nil {
				jobLog.Error("Index repair failed", "error", err)
				return
			}
			if res.Repaired > 0 || res.Failed > 0 {
				jobLog.Info("Index repair completed", "run_id", res.RunID, "repaired", res.Repaired, "failed", res.Failed)
			}
		}); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid repair schedule %q: %w", spec, err)
		}
	}

	if spec := cfg.Reconcile.SweepSchedule; spec != "" {
		if _, err := c.AddFunc(spec, func() {
			if _, err := searchService.Reconcile(ctx); err != nil {
				jobLog.Error("Index sweep failed", "error", err)
			}
		}); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
		}
	}

	c.Start()

	log.Info("Index jobs started",
		"repair_schedule", cfg.Reconcile.RepairSchedule,
		"sweep_schedule", cfg.Reconcile.SweepSchedule,
	)

	return &IndexJobs{cron: c, cancel: cancel}, nil
}
