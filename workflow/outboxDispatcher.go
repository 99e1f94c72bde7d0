package workflow

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDispatcher drains committed domain events to Pub/Sub. Rows are
// claimed with SKIP LOCKED so multiple instances can run the dispatcher
// concurrently; delivery is at-least-once, consumers de-duplicate on the
// record id.
type OutboxDispatcher struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:        db,
		Logger:    logger,
		WorkerID:  "dispatcher-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

type outboxRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getOutboxRetryConfig() outboxRetryConfig {
	cfg := outboxRetryConfig{
		maxAttempts: 10,
		baseBackoff: 5 * time.Second,
		maxBackoff:  10 * time.Minute,
	}

	if v := os.Getenv("OUTBOX_PUBLISH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxAttempts = n
		}
	}
	if v := os.Getenv("OUTBOX_PUBLISH_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.baseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("OUTBOX_PUBLISH_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxBackoff = time.Duration(n) * time.Second
		}
	}

	return cfg
}

func outboxPublishBackoff(attempt int, cfg outboxRetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.baseBackoff
	}
	// base * 2^(attempt-1), capped.
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, exp))
	if delay > cfg.maxBackoff {
		return cfg.maxBackoff
	}
	return delay
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Interval):
		}
	}
}

// dispatchOnce claims a batch and publishes it. Claiming happens in its own
// transaction so a crashed worker's rows come back after LockTTL.
func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTTL)

	var claimed []models.DomainEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("publish_status IN ?", []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}).
			Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.WorkerID
			if err := tx.Model(&models.DomainEventRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"publish_status": models.OutboxPublishStatusProcessing,
					"locked_at":      claimed[i].LockedAt,
					"locked_by":      claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "dispatchOnce", "claim batch", d.WorkerID, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		msg := models.ConvertToDomainEventMessage(rec)
		messageId, err := config.PublishNotificationEventWithResult(ctx, msg)
		if err != nil {
			d.markPublishFailed(ctx, rec, err)
			continue
		}
		d.markPublishSent(ctx, rec, messageId)
	}
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, rec models.DomainEventRecord, messageId string) {
	now := time.Now().UTC()
	err := d.DB.WithContext(ctx).Model(&models.DomainEventRecord{}).
		Where("id = ? AND publish_status <> ?", rec.ID, models.OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &messageId,
			"next_attempt_at":    nil,
			"last_publish_error": nil,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishSent", "update record", rec.ID, err)
	}
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.DomainEventRecord, pubErr error) {
	cfg := getOutboxRetryConfig()
	now := time.Now().UTC()
	errMsg := pubErr.Error()

	attempts := rec.PublishAttempts + 1
	status := models.OutboxPublishStatusFailed

	var nextAttemptAt *time.Time
	if attempts >= cfg.maxAttempts {
		status = models.OutboxPublishStatusDead
	} else {
		t := now.Add(outboxPublishBackoff(attempts, cfg))
		nextAttemptAt = &t
	}

	err := d.DB.WithContext(ctx).Model(&models.DomainEventRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"publish_attempts":   attempts,
			"last_publish_error": &errMsg,
			"next_attempt_at":    nextAttemptAt,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishFailed", "update record", rec.ID, err)
	}

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":            "OutboxDispatcher",
			"record_id":        rec.ID,
			"event_type":       rec.EventType,
			"reference_type":   rec.ReferenceType,
			"reference_id":     rec.ReferenceId,
			"publish_status":   status,
			"publish_attempts": attempts,
		}).Error("outbox publish failed: " + errMsg)
	}
}
