// Package stats periodically publishes collection sizes as gauges.
package stats

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"horizon.shop/internal/obs"
	"horizon.shop/internal/store"
)

const defaultSchedule = "@every 1m"

// Job counts every collection on a cron schedule.
type Job struct {
	collections []store.Collection
	timeout     time.Duration
	cron        *cron.Cron
}

// New builds a job for collections. An empty schedule means every minute.
func New(schedule string, timeout time.Duration, collections ...store.Collection) (*Job, error) {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	j := &Job{collections: collections, timeout: timeout}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { j.Refresh(context.Background()) }); err != nil {
		return nil, err
	}
	j.cron = c
	return j, nil
}

// Start refreshes once immediately and then runs on schedule.
func (j *Job) Start() {
	j.Refresh(context.Background())
	j.cron.Start()
}

// Stop waits for a running refresh to finish or ctx to end.
func (j *Job) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Refresh counts each collection and updates the gauges. Failures are logged
// and leave the previous value in place.
func (j *Job) Refresh(ctx context.Context) {
	for _, c := range j.collections {
		cctx, cancel := context.WithTimeout(ctx, j.timeout)
		n, err := c.Count(cctx, nil)
		cancel()
		if err != nil {
			obs.Logger().WithFields(logrus.Fields{
				"collection": c.Name(),
			}).WithError(err).Warn("stats_refresh_failed")
			continue
		}
		obs.SetCollectionSize(c.Name(), n)
	}
}
