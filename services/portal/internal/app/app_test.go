package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"loanportal/pkg/domain"
	"loanportal/pkg/queue"
	"loanportal/pkg/realtime"
	"loanportal/pkg/storage"
	"loanportal/pkg/store"
	"loanportal/services/portal/internal/metrics"
)

var (
	owner    = domain.Identity{UserID: "user-1", Email: "ana@example.com", Role: domain.RoleUser}
	stranger = domain.Identity{UserID: "user-2", Email: "bo@example.com", Role: domain.RoleUser}
	admin    = domain.Identity{UserID: "admin-1", Email: "ops@example.com", Role: domain.RoleAdmin, IsAdmin: true}
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// flakyObjects wraps the in-memory blob store with failure injection and
// call counters.
type flakyObjects struct {
	*storage.MemoryStore
	mu sync.Mutex
	// presignFailures fails that many presign calls before succeeding; a
	// negative value fails every call.
	presignFailures int
	presignCalls    int
	puts            int
	putErr          error
	deleteErr       error
}

func (f *flakyObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) error {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.Put(ctx, key, r, size, contentType, progress)
}

func (f *flakyObjects) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	f.mu.Lock()
	f.presignCalls++
	fail := f.presignFailures < 0 || f.presignCalls <= f.presignFailures
	f.mu.Unlock()
	if fail {
		return "", errors.New("object not yet visible")
	}
	return f.MemoryStore.PresignGet(ctx, key, expiry)
}

func (f *flakyObjects) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.Delete(ctx, key)
}

type fakeCleanup struct {
	mu   sync.Mutex
	jobs []queue.CleanupJob
}

func (f *fakeCleanup) Enqueue(_ context.Context, key, reason string) (queue.CleanupJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := queue.CleanupJob{ID: key, ObjectKey: key, Reason: reason, Status: "queued"}
	f.jobs = append(f.jobs, job)
	return job, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (r *recordingEvents) Publish(_ context.Context, ev realtime.ChangeEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingEvents) count(table string, kind realtime.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Table == table && ev.Type == kind {
			n++
		}
	}
	return n
}

// stepClock advances one millisecond per reading so storage keys differ.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type testEnv struct {
	app     *App
	rows    *store.MemoryStore
	objects *flakyObjects
	sleeper *recordingSleeper
	cleanup *fakeCleanup
	events  *recordingEvents
	clock   *stepClock
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		rows:    store.NewMemoryStore(),
		objects: &flakyObjects{MemoryStore: storage.NewMemoryStore("loan-documents")},
		sleeper: &recordingSleeper{},
		cleanup: &fakeCleanup{},
		events:  &recordingEvents{},
		clock:   &stepClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		metrics: metrics.New(),
	}
	a, err := New(Config{
		Store:   env.rows,
		Objects: env.objects,
		Events:  env.events,
		Cleanup: env.cleanup,
		Metrics: env.metrics,
		Sleep:   env.sleeper.Sleep,
		Now:     env.clock.Now,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a
	return env
}

func (e *testEnv) application(t *testing.T, id domain.Identity) domain.Application {
	t.Helper()
	app, err := e.app.EnsureApplication(context.Background(), id)
	if err != nil {
		t.Fatalf("ensure application: %v", err)
	}
	return app
}

func (e *testEnv) notifications(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	items, err := e.rows.ListNotifications(userID, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return items
}

func (e *testEnv) hasNotification(t *testing.T, userID, title, contains string) bool {
	t.Helper()
	for _, n := range e.notifications(t, userID) {
		if n.Title == title && strings.Contains(n.Message, contains) {
			return true
		}
	}
	return false
}

func TestNewRequiresStores(t *testing.T) {
	if _, err := New(Config{Objects: storage.NewMemoryStore("b")}); err == nil {
		t.Fatalf("expected missing store to fail")
	}
	if _, err := New(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected missing object store to fail")
	}
}

func TestNewDefaults(t *testing.T) {
	a, err := New(Config{Store: store.NewMemoryStore(), Objects: storage.NewMemoryStore("b")})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.consistencyDelay != time.Second || a.urlRetries != 5 || a.urlBaseDelay != time.Second {
		t.Fatalf("unexpected defaults: delay=%v retries=%d base=%v", a.consistencyDelay, a.urlRetries, a.urlBaseDelay)
	}
	a, err = New(Config{Store: store.NewMemoryStore(), Objects: storage.NewMemoryStore("b"), ConsistencyDelay: -1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.consistencyDelay != 0 {
		t.Fatalf("negative delay should disable the wait, got %v", a.consistencyDelay)
	}
}

func TestSleepCtxHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep: %v", err)
	}
}
