package repository

import (
	"context"
	"time"

	"bookstore-payments/internal/model"

	"gorm.io/gorm"
)

// WebhookEventRepository is the idempotency ledger. All three providers retry
// webhooks on non-2xx or timeout; the existence check on (provider, event_id)
// is what keeps a redelivered event from double-decrementing stock or
// double-crediting points.
type WebhookEventRepository interface {
	HasProcessed(ctx context.Context, provider model.PaymentProvider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, eventID, eventType string) error
}

type webhookEventRepoImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepoImpl{db: db}
}

func (r *webhookEventRepoImpl) HasProcessed(ctx context.Context, provider model.PaymentProvider, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error

	return count > 0, err
}

// MarkProcessed runs in the settlement transaction so a half-applied webhook
// is retried by the provider rather than silently dropped.
func (r *webhookEventRepoImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, eventID, eventType string) error {
	return tx.WithContext(ctx).Create(&model.WebhookEvent{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}).Error
}
