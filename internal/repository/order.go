package repository

import (
	"context"
	"errors"
	"time"

	"bookstore-payments/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*model.Order, error)
	GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error)

	SetPaymentReference(ctx context.Context, orderID string, reference string) error
	MarkCancelled(ctx context.Context, orderID string) (bool, error)

	// MarkPaid transitions pending→paid conditionally; false means the order
	// was not pending anymore (a concurrent settlement won or the order is in
	// a terminal state).
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID, transactionID, paymentReference string, paidAt time.Time) (bool, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID, refundReference string) (bool, error)
	StoreInvoice(ctx context.Context, tx *gorm.DB, orderID string, pdf []byte) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByTransactionID(ctx context.Context, transactionID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("transaction_id = ?", transactionID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByPaymentReference(ctx context.Context, reference string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_reference = ?", reference).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

// SetPaymentReference is only legal while the order is pending: once it
// leaves pending, settlement owns every payment identifier.
func (r *orderRepoImpl) SetPaymentReference(ctx context.Context, orderID string, reference string) error {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.StatusPending).
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

func (r *orderRepoImpl) MarkCancelled(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     model.StatusCancelled,
			"updated_at": time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *orderRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, orderID, transactionID, paymentReference string, paidAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":            model.StatusPaid,
			"transaction_id":    transactionID,
			"payment_reference": paymentReference,
			"paid_at":           paidAt,
			"updated_at":        time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}

func (r *orderRepoImpl) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID, refundReference string) (bool, error) {
	updates := map[string]interface{}{
		"status":     model.StatusRefunded,
		"updated_at": time.Now(),
	}
	if refundReference != "" {
		updates["payment_reference"] = refundReference
	}

	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.StatusPaid).
		Updates(updates)

	return result.RowsAffected > 0, result.Error
}

func (r *orderRepoImpl) StoreInvoice(ctx context.Context, tx *gorm.DB, orderID string, pdf []byte) error {
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("invoice_pdf", pdf).Error
}
