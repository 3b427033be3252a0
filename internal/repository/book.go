package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore-payments/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BookRepository interface {
	Seed(ctx context.Context) error
	FindByID(ctx context.Context, bookID string) (*model.Book, error)
	FindMany(ctx context.Context, bookIDs []string) ([]*model.Book, error)

	// DecrementStock atomically takes quantity from stock, guarded by the
	// recorded sale type and availability; the guard runs in the UPDATE
	// itself so concurrent settlements on the same book serialize at the
	// storage layer.
	DecrementStock(ctx context.Context, tx *gorm.DB, bookID string, saleType model.SaleType, quantity int64) error
	RestoreStock(ctx context.Context, tx *gorm.DB, bookID string, quantity int64) error

	// AddFundingRaised atomically accumulates a paid contribution, guarded by
	// the book still being in crowdfunding mode.
	AddFundingRaised(ctx context.Context, tx *gorm.DB, bookID string, amount decimal.Decimal) error
}

type bookRepoImpl struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepoImpl{
		db: db,
	}
}

func (r *bookRepoImpl) Seed(ctx context.Context) error {
	books := []model.Book{
		{ID: "book_gopher", Title: "The Gopher's Guide", Author: "R. Pike", SaleType: model.SaleTypeDirect, Price: decimal.NewFromInt(20), Currency: "USD", Stock: 25},
		{ID: "book_channels", Title: "Channels in Anger", Author: "D. Cheney", SaleType: model.SaleTypePreorder, Price: decimal.NewFromInt(35), Currency: "USD", Stock: 100},
		{ID: "book_ledger", Title: "A Ledger of One's Own", Author: "V. Woolfe", SaleType: model.SaleTypeCrowdfunding, Price: decimal.NewFromInt(15), Currency: "USD", FundingGoal: decimal.NewFromInt(5000)},
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&books).Error
}

func (r *bookRepoImpl) FindByID(ctx context.Context, bookID string) (*model.Book, error) {
	var book model.Book
	err := r.db.WithContext(ctx).
		Where("id = ?", bookID).
		First(&book).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	return &book, nil
}

func (r *bookRepoImpl) FindMany(ctx context.Context, bookIDs []string) ([]*model.Book, error) {
	var books []*model.Book
	err := r.db.WithContext(ctx).
		Where("id IN ?", bookIDs).
		Find(&books).Error

	if err != nil {
		return nil, err
	}

	return books, nil
}

func (r *bookRepoImpl) DecrementStock(ctx context.Context, tx *gorm.DB, bookID string, saleType model.SaleType, quantity int64) error {
	result := tx.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND sale_type = ? AND stock >= ?", bookID, saleType, quantity).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", quantity),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyStockFailure(ctx, tx, bookID, saleType, quantity)
	}
	return nil
}

// classifyStockFailure re-reads the book to tell a sold-out title apart from
// one that vanished or changed sale mode since the order was placed.
func (r *bookRepoImpl) classifyStockFailure(ctx context.Context, tx *gorm.DB, bookID string, saleType model.SaleType, quantity int64) error {
	var book model.Book
	err := tx.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("book %s: %w", bookID, model.ErrNotFound)
		}
		return err
	}
	if book.SaleType != saleType {
		return fmt.Errorf("book %s sale type changed to %s: %w", bookID, book.SaleType, model.ErrInvalidStateTransition)
	}
	if book.Stock < quantity {
		return fmt.Errorf("book %s has %d in stock, need %d: %w", bookID, book.Stock, quantity, model.ErrInsufficientStock)
	}
	return fmt.Errorf("decrement stock for book %s failed", bookID)
}

func (r *bookRepoImpl) RestoreStock(ctx context.Context, tx *gorm.DB, bookID string, quantity int64) error {
	return tx.WithContext(ctx).Model(&model.Book{}).
		Where("id = ?", bookID).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", quantity),
			"updated_at": time.Now(),
		}).Error
}

func (r *bookRepoImpl) AddFundingRaised(ctx context.Context, tx *gorm.DB, bookID string, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND sale_type = ?", bookID, model.SaleTypeCrowdfunding).
		Updates(map[string]interface{}{
			"funding_raised": gorm.Expr("funding_raised + ?", amount),
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var book model.Book
		err := tx.WithContext(ctx).Where("id = ?", bookID).First(&book).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("book %s: %w", bookID, model.ErrNotFound)
			}
			return err
		}
		return fmt.Errorf("book %s is no longer crowdfunding: %w", bookID, model.ErrInvalidStateTransition)
	}
	return nil
}
