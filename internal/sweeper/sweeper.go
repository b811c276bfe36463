// Package sweeper schedules the recurring stale-heartbeat pass that
// flags bots whose workers went quiet.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/model"
)

// LifecycleService is the slice of the lifecycle surface the sweeper
// drives.
type LifecycleService interface {
	CheckStaleBots(ctx context.Context, timeout time.Duration) ([]*model.Bot, error)
}

type Options struct {
	// Interval is the pause between sweep runs.
	Interval time.Duration
	// StaleTimeout is how long a bot may go without a heartbeat
	// before it is flagged.
	StaleTimeout time.Duration
}

// Sweeper owns the cron schedule for the stale pass. One extra pass
// runs at startup so a control plane restart cannot extend a
// heartbeat outage by a full interval.
type Sweeper struct {
	lifecycle LifecycleService
	cron      *cron.Cron
	opts      Options
	log       *zap.Logger

	boot sync.WaitGroup
}

func New(lifecycle LifecycleService, log *zap.Logger, opts Options) *Sweeper {
	cronLog := cron.PrintfLogger(zap.NewStdLog(log))
	return &Sweeper{
		lifecycle: lifecycle,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog))),
		opts:      opts,
		log:       log,
	}
}

// Start registers the schedule and returns immediately. The context
// bounds every pass, including the one Start kicks off right away.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.sweep(ctx) }); err != nil {
		return errors.Wrapf(err, "failed to schedule stale sweep %q", spec)
	}
	s.cron.Start()

	s.boot.Add(1)
	go func() {
		defer s.boot.Done()
		s.sweep(ctx)
	}()

	s.log.Info("stale sweeper started",
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("staleTimeout", s.opts.StaleTimeout))
	return nil
}

// Stop halts the schedule and waits for in-flight passes to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.boot.Wait()
}

func (s *Sweeper) sweep(ctx context.Context) {
	flagged, err := s.lifecycle.CheckStaleBots(ctx, s.opts.StaleTimeout)
	if err != nil {
		// Partial sweeps still flag some bots; report both halves.
		s.log.Error("stale sweep failed",
			zap.Int("flagged", len(flagged)),
			zap.Error(err))
		return
	}
	if len(flagged) > 0 {
		s.log.Info("stale sweep flagged bots", zap.Int("count", len(flagged)))
	}
}
