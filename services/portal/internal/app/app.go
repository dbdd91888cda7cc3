package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/queue"
	"loanportal/pkg/realtime"
	"loanportal/pkg/storage"
	"loanportal/pkg/store"
	"loanportal/services/portal/internal/metrics"
)

const (
	MaxFileSize = 10 * 1024 * 1024

	defaultConsistencyDelay = 1000 * time.Millisecond
	defaultURLRetries       = 5
	defaultURLBaseDelay     = 1000 * time.Millisecond
	signedURLExpiry         = time.Hour
	sideEffectTimeout       = 5 * time.Second
)

// CleanupQueue accepts blobs that must be removed later.
type CleanupQueue interface {
	Enqueue(ctx context.Context, objectKey, reason string) (queue.CleanupJob, error)
}

// Config wires the portal core. Store and Objects are required.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
	Events  realtime.Publisher
	Cleanup CleanupQueue
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// ConsistencyDelay is waited between a blob write and the first signed
	// URL attempt.
	ConsistencyDelay time.Duration
	URLRetries       int
	URLBaseDelay     time.Duration
	// Sleep replaces the context-aware sleep, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// App implements the customer dashboard and the admin back office.
type App struct {
	store    store.Store
	objects  storage.ObjectStore
	events   realtime.Publisher
	cleanup  CleanupQueue
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate

	consistencyDelay time.Duration
	urlRetries       int
	urlBaseDelay     time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
	now              func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	a := &App{
		store:            cfg.Store,
		objects:          cfg.Objects,
		events:           cfg.Events,
		cleanup:          cfg.Cleanup,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		validate:         newValidator(),
		consistencyDelay: cfg.ConsistencyDelay,
		urlRetries:       cfg.URLRetries,
		urlBaseDelay:     cfg.URLBaseDelay,
		sleep:            cfg.Sleep,
		now:              cfg.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.consistencyDelay < 0 {
		a.consistencyDelay = 0
	} else if a.consistencyDelay == 0 {
		a.consistencyDelay = defaultConsistencyDelay
	}
	if a.urlRetries <= 0 {
		a.urlRetries = defaultURLRetries
	}
	if a.urlBaseDelay <= 0 {
		a.urlBaseDelay = defaultURLBaseDelay
	}
	if a.sleep == nil {
		a.sleep = sleepCtx
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (a *App) check(req any) error {
	if err := a.validate.Struct(req); err != nil {
		return fromValidator(err)
	}
	return nil
}

func (a *App) log(ctx context.Context) *slog.Logger {
	if l := util.LoggerFromContext(ctx); l != slog.Default() {
		return l
	}
	return a.logger
}

func (a *App) timestamp() time.Time {
	return a.now().UTC()
}

func requireIdentity(id domain.Identity) error {
	if strings.TrimSpace(id.UserID) == "" {
		return ErrUnauthenticated
	}
	return nil
}

func requireAdmin(id domain.Identity) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if !id.Admin() {
		return ErrAdminRequired
	}
	return nil
}

// loadApplication resolves applicationID, or the caller's own application
// when it is empty, and checks that the caller may act on it.
func (a *App) loadApplication(id domain.Identity, applicationID string) (domain.Application, error) {
	var (
		app domain.Application
		ok  bool
		err error
	)
	if strings.TrimSpace(applicationID) == "" {
		app, ok, err = a.store.GetApplicationByUser(id.UserID)
	} else {
		app, ok, err = a.store.GetApplication(applicationID)
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("load application: %w", err)
	}
	if !ok {
		return domain.Application{}, ErrApplicationNotFound
	}
	if !id.Admin() && app.UserID != id.UserID {
		return domain.Application{}, ErrRestricted
	}
	return app, nil
}

// notify stores a notification and pushes it to the user. Failures are
// logged and counted only.
func (a *App) notify(ctx context.Context, userID, title, message string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	n := domain.Notification{
		ID:        util.NewEntityID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		CreatedAt: a.timestamp(),
	}
	if err := a.store.CreateNotification(n); err != nil {
		a.metrics.SideEffectFailed("notification")
		a.log(ctx).Warn("notification create failed", "user_id", userID, "title", title, "err", err)
		return
	}
	a.publish(ctx, realtime.TableNotifications, realtime.EventInsert, userID, n)
}

// publish emits a change event without failing the caller.
func (a *App) publish(ctx context.Context, table string, kind realtime.EventType, userID string, record any) {
	if a.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	ev := realtime.ChangeEvent{Table: table, Type: kind, UserID: userID, Record: record, At: a.timestamp()}
	if err := a.events.Publish(pubCtx, ev); err != nil {
		a.metrics.SideEffectFailed("realtime")
		a.log(ctx).Warn("realtime publish failed", "table", table, "type", string(kind), "err", err)
	}
}

// appendStage writes a progress event; failures are logged only.
func (a *App) appendStage(ctx context.Context, app domain.Application, number int, status, notes string) {
	stage := domain.ApplicationStage{
		ID:            util.NewEntityID(),
		ApplicationID: app.ID,
		StageNumber:   number,
		Status:        status,
		Notes:         notes,
		Timestamp:     a.timestamp(),
	}
	if err := a.store.AppendStage(stage); err != nil {
		a.metrics.SideEffectFailed("stage_log")
		a.log(ctx).Warn("stage log append failed", "application_id", app.ID, "err", err)
		return
	}
	a.publish(ctx, realtime.TableStages, realtime.EventInsert, app.UserID, stage)
}

// enqueueCleanup schedules removal of a blob; failures are logged only.
func (a *App) enqueueCleanup(ctx context.Context, key, reason string) {
	if a.cleanup == nil {
		a.log(ctx).Warn("blob left behind, no cleanup queue", "key", key, "reason", reason)
		return
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if _, err := a.cleanup.Enqueue(qctx, key, reason); err != nil {
		a.metrics.SideEffectFailed("cleanup_enqueue")
		a.log(ctx).Error("cleanup enqueue failed", "key", key, "reason", reason, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
