package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"gorm.io/gorm"
)

// DomainEventRecord is the transactional outbox row for notification events.
// It is written inside the operation's DB transaction and published to
// Pub/Sub asynchronously by the outbox dispatcher after commit, so an event
// exists iff the operation committed.
type DomainEventRecord struct {
	ID            int                `gorm:"primary_key" json:"id"`
	EventType     EventType          `gorm:"size:50;index;not null" json:"event_type"`
	OccurredAt    time.Time          `gorm:"not null" json:"occurred_at"`
	ReferenceId   int                `gorm:"index;not null" json:"reference_id"`
	ReferenceType EventReferenceType `gorm:"size:50;index;not null" json:"reference_type"`
	Actor         string             `gorm:"size:100" json:"actor"`
	Payload       []byte             `gorm:"type:json" json:"payload"`
	CorrelationId string             `gorm:"size:64;index" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING'" json:"publish_status"`
	PublishAttempts  int        `gorm:"default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishToNotification appends an event to the outbox inside the caller's
// transaction. Publishing happens after commit; see workflow.OutboxDispatcher.
func PublishToNotification(ctx context.Context, tx *gorm.DB, eventType EventType, refId int, refType EventReferenceType, actor string, payload interface{}) (int, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	record := DomainEventRecord{
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Actor:         actor,
		Payload:       payloadJSON,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		PublishStatus: OutboxPublishStatusPending,
	}
	if err := tx.Create(&record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToDomainEventMessage(rec DomainEventRecord) config.DomainEventMessage {
	return config.DomainEventMessage{
		ID:            rec.ID,
		EventType:     string(rec.EventType),
		OccurredAt:    rec.OccurredAt,
		ReferenceId:   rec.ReferenceId,
		ReferenceType: string(rec.ReferenceType),
		Actor:         rec.Actor,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	}
}
