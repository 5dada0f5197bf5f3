package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tidepool/internal/announce"
	"tidepool/internal/ingest"
)

const (
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0

	checkFeedsTimeout = 15 * time.Minute
)

// Scheduler drives the two pipeline timers: the coarse feed-check tick and
// the finer announcement-dispatch tick.
type Scheduler struct {
	ctx        context.Context
	cron       *cron.Cron
	pipeline   *ingest.Pipeline
	dispatcher *announce.Dispatcher
	log        *slog.Logger
}

func New(
	ctx context.Context,
	pipeline *ingest.Pipeline,
	dispatcher *announce.Dispatcher,
	log *slog.Logger,
) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:        ctx,
		cron:       c,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		log:        log,
	}
}

func (s *Scheduler) Start(checkFeedsEvery, dispatchEvery time.Duration) error {
	if _, err := s.cron.AddFunc(everySpec(checkFeedsEvery), s.checkFeeds); err != nil {
		return fmt.Errorf("add feed-check entry: %w", err)
	}

	if _, err := s.cron.AddFunc(everySpec(dispatchEvery), s.dispatch); err != nil {
		return fmt.Errorf("add dispatch entry: %w", err)
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) checkFeeds() {
	ctx, cancel := context.WithTimeout(s.ctx, checkFeedsTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	if err := s.pipeline.CheckFeeds(ctx); err != nil {
		s.log.ErrorContext(ctx, "Feed check finished with errors",
			"error", err)
	}
}

func (s *Scheduler) dispatch() {
	select {
	case <-s.ctx.Done():
		s.log.InfoContext(s.ctx, "Scheduler context is done",
			"error", s.ctx.Err())
		return
	default:
	}

	s.dispatcher.Tick(s.ctx)
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
