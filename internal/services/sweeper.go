package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Default sweep schedules, in robfig/cron syntax.
const (
	DefaultRequeueSchedule = "@every 15s"
	DefaultReclaimSchedule = "@every 1m"
	DefaultPurgeSchedule   = "@every 1h"

	sweepTimeout = 30 * time.Second
)

// Sweeper runs the periodic outbox and idempotency maintenance jobs: failed
// rows whose backoff elapsed are requeued, expired processing leases are
// reclaimed, and expired idempotency records are purged. An empty schedule
// disables its job.
type Sweeper struct {
	Outbox      *Outbox
	Idempotency *IdempotencyCache
	Log         zerolog.Logger

	RequeueSchedule string
	ReclaimSchedule string
	PurgeSchedule   string

	cron *cron.Cron
}

// Start registers the jobs and starts the scheduler. Overlapping runs of the
// same job are skipped.
func (s *Sweeper) Start() error {
	logger := cronLogger{log: s.Log.With().Str("component", "sweeper").Logger()}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) (int64, error)
	}{
		{"requeue", s.RequeueSchedule, s.Outbox.RequeueFailed},
		{"reclaim", s.ReclaimSchedule, s.Outbox.ReclaimStale},
	}
	if s.Idempotency != nil {
		jobs = append(jobs, struct {
			name     string
			schedule string
			run      func(context.Context) (int64, error)
		}{"idempotency_purge", s.PurgeSchedule, s.Idempotency.Purge})
	}

	for _, j := range jobs {
		if j.schedule == "" {
			continue
		}
		name, run := j.name, j.run
		if _, err := c.AddFunc(j.schedule, func() { s.runJob(name, run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, j.schedule, err)
		}
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are scheduled.
func (s *Sweeper) Entries() int {
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

func (s *Sweeper) runJob(name string, run func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := run(ctx)
	if err != nil {
		s.Log.Error().Err(err).Str("component", "sweeper").Str("job", name).Msg("sweep failed")
		return
	}
	if n > 0 {
		s.Log.Info().Str("component", "sweeper").Str("job", name).Int64("rows", n).Msg("sweep")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
