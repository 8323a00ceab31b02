package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/digkill/finassist/internal/config"
)

const jobTimeout = 5 * time.Minute

type QuotaResetter interface {
	ResetAllUsage(ctx context.Context) (int64, error)
}

type OrderExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type Sweeper interface {
	Sweep() int
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int64, error)
}

// Scheduler runs the periodic maintenance jobs: the monthly quota reset,
// expiry of abandoned payment orders and pruning of redirect history.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	jobs []job
	ctx  context.Context
}

func New(cfg config.Config, log *slog.Logger, quota QuotaResetter, orders OrderExpirer, guard Sweeper) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  log,
		ctx:  context.Background(),
	}
	s.jobs = []job{
		{name: "quota_reset", spec: cfg.QuotaResetCron, run: quota.ResetAllUsage},
		{name: "order_expiry", spec: "@every 15m", run: orders.ExpireStale},
		{name: "redirect_sweep", spec: "@every 1m", run: func(context.Context) (int64, error) {
			return int64(guard.Sweep()), nil
		}},
	}
	for _, j := range s.jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(j) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

// Run starts the jobs and blocks until ctx is cancelled and running jobs finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), jobTimeout)
	defer cancel()

	started := time.Now()
	n, err := j.run(ctx)
	if err != nil {
		s.log.Error("scheduled job failed", "job", j.name, "err", err)
		return
	}
	s.log.Debug("scheduled job done", "job", j.name, "affected", n, "duration", time.Since(started))
}
