package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"loanportal/pkg/queue"
	"loanportal/pkg/storage"
)

func TestCleanupHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.objects.MemoryStore.Put(ctx, "user-1/pay_stubs/1.pdf", bytes.NewReader([]byte("x")), 1, "application/pdf", nil); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	handle := env.app.CleanupHandler()

	if err := handle(ctx, queue.CleanupJob{ID: "j1", ObjectKey: "user-1/pay_stubs/1.pdf", Reason: queue.ReasonDeleteFailed}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, ok := env.objects.Open("user-1/pay_stubs/1.pdf"); ok {
		t.Fatalf("blob still present")
	}

	env.objects.deleteErr = storage.ErrNotFound
	if err := handle(ctx, queue.CleanupJob{ID: "j2", ObjectKey: "gone"}); err != nil {
		t.Fatalf("missing blob should count as done: %v", err)
	}
	env.objects.deleteErr = errors.New("timeout")
	if err := handle(ctx, queue.CleanupJob{ID: "j3", ObjectKey: "stuck"}); err == nil {
		t.Fatalf("expected retryable error")
	}
}

func TestListStorage(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadedDocument(t, env)

	if _, err := env.app.ListStorage(context.Background(), owner, ""); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := env.app.ListStorage(context.Background(), admin, "../etc"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	objects, err := env.app.ListStorage(context.Background(), admin, "/user-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != doc.Filename {
		t.Fatalf("unexpected objects %+v", objects)
	}
}

func TestStartRemindersRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := env.app.StartReminders(ctx, "every now and then"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	c, err := env.app.StartReminders(ctx, "")
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(c.Entries()))
	}
}
