package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, maxRetries int) (*RedisCleanupQueue, redis.UniversalClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewRedisCleanupQueue(client, Config{
		Stream:     "test:cleanup",
		Group:      "test-group",
		Consumer:   "consumer",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		Block:      -1,
	}, nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.ensureGroup(context.Background())
	return q, client
}

func TestCleanupQueueHandlesJob(t *testing.T) {
	q, client := newTestQueue(t, 3)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1/pay_stubs/1700000000000.pdf", ReasonDeleteFailed)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var seen []string
	n, err := q.consumeOnce(ctx, "consumer-0", func(_ context.Context, j CleanupJob) error {
		seen = append(seen, j.ObjectKey)
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("consumeOnce = %d, %v", n, err)
	}
	if len(seen) != 1 || seen[0] != "user-1/pay_stubs/1700000000000.pdf" {
		t.Fatalf("handler saw %v", seen)
	}

	got, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("get job: %v found=%v", err, found)
	}
	if got.Status != StatusDone || got.Attempts != 1 || got.Reason != ReasonDeleteFailed {
		t.Fatalf("unexpected job %+v", got)
	}
	if l, _ := client.XLen(ctx, q.stream).Result(); l != 0 {
		t.Fatalf("stream should be drained, len=%d", l)
	}
}

func TestCleanupQueueRetriesThenFails(t *testing.T) {
	q, client := newTestQueue(t, 2)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-2/insurance/1.png", ReasonUploadUnverified)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	failing := func(context.Context, CleanupJob) error { return errors.New("storage unavailable") }

	if _, err := q.consumeOnce(ctx, "consumer-0", failing); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	got, _, _ := q.GetJob(ctx, job.ID)
	if got.Status != StatusQueued || got.Attempts != 1 || got.ErrorMessage != "storage unavailable" {
		t.Fatalf("after first attempt: %+v", got)
	}
	if l, _ := client.XLen(ctx, q.stream).Result(); l != 1 {
		t.Fatalf("expected requeued entry, len=%d", l)
	}

	if _, err := q.consumeOnce(ctx, "consumer-0", failing); err != nil {
		t.Fatalf("second consume: %v", err)
	}
	got, _, _ = q.GetJob(ctx, job.ID)
	if got.Status != StatusFailed || got.Attempts != 2 {
		t.Fatalf("after final attempt: %+v", got)
	}
	if l, _ := client.XLen(ctx, q.stream).Result(); l != 0 {
		t.Fatalf("failed job should leave the stream, len=%d", l)
	}
}

func TestRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, client := newTestQueue(t, 3)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-3/tax_returns/9.pdf", ReasonDeleteFailed)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-0",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("readgroup: %+v %v", streams, err)
	}
	msgID := streams[0].Messages[0].ID

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(cancelled, msgID, job); err == nil {
		t.Fatalf("expected requeue to fail on cancelled context")
	}
	pending, err := client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("original entry must stay pending, got %d", pending.Count)
	}
}

func TestEnqueueRequiresKey(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	if _, err := q.Enqueue(context.Background(), "  ", ReasonDeleteFailed); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
