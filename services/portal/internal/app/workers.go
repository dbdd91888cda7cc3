package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"loanportal/pkg/domain"
	"loanportal/pkg/queue"
	"loanportal/pkg/storage"
)

// DefaultReminderSchedule runs the reminder sweep every 15 minutes.
const DefaultReminderSchedule = "*/15 * * * *"

// CleanupHandler removes orphaned blobs for the cleanup queue. A blob that
// is already gone counts as done.
func (a *App) CleanupHandler() queue.Handler {
	return func(ctx context.Context, job queue.CleanupJob) error {
		err := a.objects.Delete(ctx, job.ObjectKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			a.metrics.CleanupJob("retry")
			return fmt.Errorf("delete %s: %w", job.ObjectKey, err)
		}
		a.metrics.CleanupJob("done")
		a.log(ctx).Info("orphaned blob removed", "key", job.ObjectKey, "reason", job.Reason, "job_id", job.ID)
		return nil
	}
}

// StartReminders schedules SendDueReminders and stops when ctx is done.
func (a *App) StartReminders(ctx context.Context, spec string) (*cron.Cron, error) {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultReminderSchedule
	}
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := a.SendDueReminders(runCtx); err != nil {
			a.logger.Error("reminder sweep failed", "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

// ListStorage lists blobs under a key prefix for the back office.
func (a *App) ListStorage(ctx context.Context, id domain.Identity, prefix string) ([]storage.ObjectInfo, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if strings.Contains(prefix, "..") {
		return nil, invalid("invalid prefix")
	}
	objects, err := a.objects.List(ctx, prefix)
	if err != nil {
		if errors.Is(err, storage.ErrAccessDenied) {
			return nil, ErrRestricted
		}
		return nil, fmt.Errorf("list storage: %w", err)
	}
	return objects, nil
}
