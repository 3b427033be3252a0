package repository

import (
	"context"
	"errors"
	"time"

	"bookstore-payments/internal/model"

	"gorm.io/gorm"
)

type ContributionRepository interface {
	Create(ctx context.Context, contribution *model.Contribution) error
	FindByID(ctx context.Context, contributionID string) (*model.Contribution, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Contribution, error)
	FindByPaymentReference(ctx context.Context, reference string) (*model.Contribution, error)
	ListPublicByBook(ctx context.Context, bookID string) ([]*model.Contribution, error)

	SetPaymentReference(ctx context.Context, contributionID string, reference string) error
	MarkPaid(ctx context.Context, tx *gorm.DB, contributionID, transactionID, paymentReference string, paidAt time.Time) (bool, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, contributionID, refundReference string) (bool, error)
}

type contributionRepoImpl struct {
	db *gorm.DB
}

func NewContributionRepository(db *gorm.DB) ContributionRepository {
	return &contributionRepoImpl{
		db: db,
	}
}

func (r *contributionRepoImpl) Create(ctx context.Context, contribution *model.Contribution) error {
	return r.db.WithContext(ctx).Create(contribution).Error
}

func (r *contributionRepoImpl) FindByID(ctx context.Context, contributionID string) (*model.Contribution, error) {
	var contribution model.Contribution
	err := r.db.WithContext(ctx).
		Where("id = ?", contributionID).
		First(&contribution).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &contribution, nil
}

func (r *contributionRepoImpl) FindByTransactionID(ctx context.Context, transactionID string) (*model.Contribution, error) {
	var contribution model.Contribution
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&contribution).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &contribution, nil
}

func (r *contributionRepoImpl) FindByPaymentReference(ctx context.Context, reference string) (*model.Contribution, error) {
	var contribution model.Contribution
	err := r.db.WithContext(ctx).
		Where("payment_reference = ?", reference).
		First(&contribution).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &contribution, nil
}

func (r *contributionRepoImpl) ListPublicByBook(ctx context.Context, bookID string) ([]*model.Contribution, error) {
	var contributions []*model.Contribution
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND is_public = ? AND status = ?", bookID, true, model.StatusPaid).
		Order("created_at DESC").
		Find(&contributions).Error

	if err != nil {
		return nil, err
	}

	return contributions, nil
}

func (r *contributionRepoImpl) SetPaymentReference(ctx context.Context, contributionID string, reference string) error {
	result := r.db.WithContext(ctx).Model(&model.Contribution{}).
		Where("id = ? AND status = ?", contributionID, model.StatusPending).
		Updates(map[string]interface{}{
			"payment_reference": reference,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrInvalidStateTransition
	}
	return nil
}

func (r *contributionRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, contributionID, transactionID, paymentReference string, paidAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Contribution{}).
		Where("id = ? AND status = ?", contributionID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":            model.StatusPaid,
			"transaction_id":    transactionID,
			"payment_reference": paymentReference,
			"paid_at":           paidAt,
			"updated_at":        time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *contributionRepoImpl) MarkRefunded(ctx context.Context, tx *gorm.DB, contributionID, refundReference string) (bool, error) {
	updates := map[string]interface{}{
		"status":     model.StatusRefunded,
		"updated_at": time.Now(),
	}
	if refundReference != "" {
		updates["payment_reference"] = refundReference
	}

	result := tx.WithContext(ctx).Model(&model.Contribution{}).
		Where("id = ? AND status = ?", contributionID, model.StatusPaid).
		Updates(updates)

	return result.RowsAffected > 0, result.Error
}
