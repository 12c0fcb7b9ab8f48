// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StaleFinder lists schedules whose cached status no longer matches the
// derived one.
type StaleFinder interface {
	StaleStatus(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

// StatusRefresher rewrites one schedule's cached status under its lock.
type StatusRefresher interface {
	RefreshStatus(ctx context.Context, scheduleID uint64) (bool, error)
}

// StatusSweeper keeps explanation_schedules.status close to the truth so
// list views and reports that read the column directly stay accurate.
// Reservation decisions never depend on it.
type StatusSweeper struct {
	finder    StaleFinder
	refresher StatusRefresher
	batch     int
	timeout   time.Duration
	now       func() time.Time
	log       *logrus.Logger
	cron      *cron.Cron
}

func NewStatusSweeper(finder StaleFinder, refresher StatusRefresher, batch int, log *logrus.Logger) *StatusSweeper {
	if batch <= 0 {
		batch = 500
	}
	return &StatusSweeper{
		finder:    finder,
		refresher: refresher,
		batch:     batch,
		timeout:   50 * time.Second,
		now:       time.Now,
		log:       log,
	}
}

// RunOnce refreshes one batch and returns how many rows changed. A failure
// on one schedule is logged and the sweep moves on.
func (s *StatusSweeper) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.finder.StaleStatus(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		ok, err := s.refresher.RefreshStatus(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("schedule_id", id).Warn("status sweep: refresh failed")
			continue
		}
		if ok {
			changed++
		}
	}
	if changed > 0 {
		s.log.WithFields(logrus.Fields{"stale": len(ids), "changed": changed}).Info("status sweep done")
	}
	return changed, nil
}

// Start schedules RunOnce with the cron expression expr. "off" or an empty
// expression disables the sweeper. Overlapping runs are skipped.
func (s *StatusSweeper) Start(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, "off") {
		s.log.Info("status sweeper disabled")
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Error("status sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", expr).Info("status sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to
// expire.
func (s *StatusSweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
