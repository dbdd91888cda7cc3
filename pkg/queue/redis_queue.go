package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"loanportal/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Cleanup reasons recorded on jobs.
const (
	ReasonDeleteFailed     = "delete_failed"
	ReasonUploadUnverified = "upload_unverified"
)

// CleanupJob asks a worker to remove an orphaned blob.
type CleanupJob struct {
	ID           string    `json:"id"`
	ObjectKey    string    `json:"objectKey"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes one job; a non-nil error schedules a retry.
type Handler func(context.Context, CleanupJob) error

// RedisCleanupQueue is a Redis stream consumer group with per-job status
// hashes, bounded retries and reclaiming of stale pending entries.
type RedisCleanupQueue struct {
	client       redis.UniversalClient
	logger       *slog.Logger
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	batch        int64
	groupOnce    sync.Once
}

type Config struct {
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	Batch      int64
}

func NewRedisCleanupQueue(client redis.UniversalClient, cfg Config, logger *slog.Logger) (*RedisCleanupQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &RedisCleanupQueue{
		client:       client,
		logger:       logger.With("component", "cleanup_queue", "stream", stream),
		stream:       stream,
		group:        orDefault(strings.TrimSpace(cfg.Group), "cleanup"),
		consumerBase: orDefault(strings.TrimSpace(cfg.Consumer), util.NewID()),
		jobTTL:       cfg.JobTTL,
		maxRetries:   cfg.MaxRetries,
		block:        cfg.Block,
		claimIdle:    cfg.ClaimIdle,
		retryDelay:   cfg.RetryDelay,
		maxLen:       cfg.MaxLen,
		batch:        cfg.Batch,
	}
	if q.jobTTL <= 0 {
		q.jobTTL = 72 * time.Hour
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 5
	}
	if q.block == 0 {
		q.block = 5 * time.Second
	}
	if q.claimIdle <= 0 {
		q.claimIdle = time.Minute
	}
	if q.retryDelay <= 0 {
		q.retryDelay = 2 * time.Second
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.batch <= 0 {
		q.batch = 10
	}
	return q, nil
}

// Enqueue records a cleanup job for objectKey.
func (q *RedisCleanupQueue) Enqueue(ctx context.Context, objectKey, reason string) (CleanupJob, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return CleanupJob{}, errors.New("object key required")
	}
	now := time.Now().UTC()
	job := CleanupJob{
		ID:        util.NewID(),
		ObjectKey: objectKey,
		Reason:    reason,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return CleanupJob{}, err
	}
	if err := q.client.XAdd(ctx, q.addArgs(job)).Err(); err != nil {
		return CleanupJob{}, fmt.Errorf("enqueue cleanup: %w", err)
	}
	return job, nil
}

// GetJob returns the status hash for jobID.
func (q *RedisCleanupQueue) GetJob(ctx context.Context, jobID string) (CleanupJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return CleanupJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return CleanupJob{}, false, err
	}
	if len(data) == 0 {
		return CleanupJob{}, false, nil
	}
	return decodeJob(jobID, data), true, nil
}

// Start runs concurrency consumers until ctx is cancelled.
func (q *RedisCleanupQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go func() {
			for ctx.Err() == nil {
				if _, err := q.consumeOnce(ctx, consumer, handler); err != nil && ctx.Err() == nil {
					q.logger.Warn("cleanup_consume_failed", "consumer", consumer, "err", err)
					sleepCtx(ctx, time.Second)
				}
			}
		}()
	}
}

func (q *RedisCleanupQueue) ensureGroup(ctx context.Context) {
	q.groupOnce.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			q.logger.Warn("cleanup_group_create_failed", "err", err)
		}
	})
}

// consumeOnce reclaims stale entries, then reads new ones, and handles each.
// It returns how many messages were handled.
func (q *RedisCleanupQueue) consumeOnce(ctx context.Context, consumer string, handler Handler) (int, error) {
	handled := 0
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.batch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("autoclaim: %w", err)
	}
	for _, msg := range claimed {
		q.handleMessage(ctx, msg, handler)
		handled++
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    q.batch,
		Block:    q.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return handled, nil
	}
	if err != nil {
		return handled, fmt.Errorf("readgroup: %w", err)
	}
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			q.handleMessage(ctx, msg, handler)
			handled++
		}
	}
	return handled, nil
}

func (q *RedisCleanupQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	objectKey, _ := msg.Values["object_key"].(string)
	reason, _ := msg.Values["reason"].(string)
	if jobID == "" || objectKey == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.update(ctx, CleanupJob{ID: jobID, ObjectKey: objectKey, Reason: reason}, func(j *CleanupJob) {
		j.Attempts++
		j.Status = StatusProcessing
	})
	if err != nil {
		q.logger.Warn("cleanup_status_failed", "job_id", jobID, "err", err)
		q.ackAndDel(ctx, msg.ID)
		return
	}

	handleErr := handler(ctx, job)
	if handleErr == nil {
		_, _ = q.update(ctx, job, func(j *CleanupJob) { j.Status, j.ErrorMessage = StatusDone, "" })
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if job.Attempts >= q.maxRetries {
		q.logger.Error("cleanup_job_failed", "job_id", jobID, "object_key", objectKey, "attempts", job.Attempts, "err", handleErr)
		_, _ = q.update(ctx, job, func(j *CleanupJob) { j.Status, j.ErrorMessage = StatusFailed, handleErr.Error() })
		q.ackAndDel(ctx, msg.ID)
		return
	}
	q.logger.Warn("cleanup_job_retry", "job_id", jobID, "attempts", job.Attempts, "err", handleErr)
	_, _ = q.update(ctx, job, func(j *CleanupJob) { j.Status, j.ErrorMessage = StatusQueued, handleErr.Error() })
	if !sleepCtx(ctx, q.retryDelay) {
		return
	}
	if err := q.requeueAndAck(ctx, msg.ID, job); err != nil {
		q.logger.Warn("cleanup_requeue_failed", "job_id", jobID, "err", err)
	}
}

func (q *RedisCleanupQueue) ackAndDel(ctx context.Context, msgID string) {
	_ = q.client.XAck(ctx, q.stream, q.group, msgID).Err()
	_ = q.client.XDel(ctx, q.stream, msgID).Err()
}

// requeueAndAck appends a fresh entry and retires the old one atomically so
// a failed requeue leaves the original pending for reclaim.
func (q *RedisCleanupQueue) requeueAndAck(ctx context.Context, msgID string, job CleanupJob) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, q.addArgs(job))
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisCleanupQueue) addArgs(job CleanupJob) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":     job.ID,
			"object_key": job.ObjectKey,
			"reason":     job.Reason,
		},
	}
}

func (q *RedisCleanupQueue) update(ctx context.Context, seed CleanupJob, mutate func(*CleanupJob)) (CleanupJob, error) {
	job, found, err := q.GetJob(ctx, seed.ID)
	if err != nil {
		return CleanupJob{}, err
	}
	if !found {
		job = seed
	}
	if job.ObjectKey == "" {
		job.ObjectKey = seed.ObjectKey
	}
	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	return job, q.writeStatus(ctx, job)
}

func (q *RedisCleanupQueue) writeStatus(ctx context.Context, job CleanupJob) error {
	key := q.jobKey(job.ID)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"objectKey": job.ObjectKey,
		"reason":    job.Reason,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, q.jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisCleanupQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJob(jobID string, data map[string]string) CleanupJob {
	job := CleanupJob{
		ID:           jobID,
		ObjectKey:    data["objectKey"],
		Reason:       data["reason"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	job.Attempts, _ = strconv.Atoi(data["attempts"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, data["createdAt"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, data["updatedAt"])
	return job
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
