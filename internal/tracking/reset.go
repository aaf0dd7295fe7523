package tracking

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/db"
)

// PathResetJob clears every vehicle's path history. Sessions reset their own
// trail on the first write in a reset minute; this sweep covers vehicles that
// are not writing at that time.
type PathResetJob struct {
	Store   db.VehicleStore
	Timeout time.Duration
}

// Run implements cron.Job.
func (j PathResetJob) Run() {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := j.Store.ClearPathHistories(ctx)
	if err != nil {
		log.WithError(err).Error("Scheduled path reset failed")
		return
	}
	log.WithField("vehicles", n).Info("Scheduled path reset completed")
}

// SchedulePathResets registers the sweep on c using a standard 5-field cron expression.
func SchedulePathResets(c *cron.Cron, spec string, store db.VehicleStore) (cron.EntryID, error) {
	return c.AddJob(spec, PathResetJob{Store: store})
}
