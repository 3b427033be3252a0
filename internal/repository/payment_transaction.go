package repository

import (
	"context"

	"bookstore-payments/internal/model"

	"gorm.io/gorm"
)

// PaymentTransactionRepository is the append-only audit log used for support
// and reconciliation reporting. Rows are never updated.
type PaymentTransactionRepository interface {
	Record(ctx context.Context, tx *gorm.DB, record *model.PaymentTransaction) error
	ListByOrder(ctx context.Context, orderID string) ([]*model.PaymentTransaction, error)
	ListByContribution(ctx context.Context, contributionID string) ([]*model.PaymentTransaction, error)
}

type paymentTransactionRepoImpl struct {
	db *gorm.DB
}

func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &paymentTransactionRepoImpl{db: db}
}

// Record appends an audit row. When tx is nil the row is written outside any
// settlement transaction, so failed attempts are still recorded.
func (r *paymentTransactionRepoImpl) Record(ctx context.Context, tx *gorm.DB, record *model.PaymentTransaction) error {
	db := tx
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(record).Error
}

func (r *paymentTransactionRepoImpl) ListByOrder(ctx context.Context, orderID string) ([]*model.PaymentTransaction, error) {
	var records []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *paymentTransactionRepoImpl) ListByContribution(ctx context.Context, contributionID string) ([]*model.PaymentTransaction, error) {
	var records []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Order("created_at ASC").
		Find(&records).Error

	if err != nil {
		return nil, err
	}

	return records, nil
}
