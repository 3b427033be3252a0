package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleType string

const (
	SaleTypeDirect       SaleType = "direct"
	SaleTypePreorder     SaleType = "preorder"
	SaleTypeCrowdfunding SaleType = "crowdfunding"
)

type PaymentProvider string

const (
	ProviderCard        PaymentProvider = "card"
	ProviderWallet      PaymentProvider = "wallet"
	ProviderMobileMoney PaymentProvider = "mobile-money"
)

type User struct {
	ID            string `gorm:"primaryKey;size:64;not null"`
	Name          string `gorm:"size:128;not null"`
	Email         string `gorm:"size:255;uniqueIndex;not null"`
	LoyaltyPoints int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Book struct {
	ID       string          `gorm:"primaryKey;size:64;not null"`
	Title    string          `gorm:"size:255;not null"`
	Author   string          `gorm:"size:128"`
	SaleType SaleType        `gorm:"size:32;index;not null"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`

	// direct/preorder only; must never go negative.
	Stock int64 `gorm:"not null;default:0"`

	// crowdfunding only; FundingRaised accumulates paid contributions.
	FundingGoal   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	FundingRaised decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID     string   `gorm:"primaryKey;size:64;not null"`
	UserID string   `gorm:"size:64;index;not null"`
	Status Status   `gorm:"size:32;index;not null"`
	SaleType SaleType `gorm:"size:32;not null"` // direct or preorder

	// Total is fixed at creation from the item unit prices and is never
	// recomputed; catalog price changes must not touch placed orders.
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`

	PaymentMethod PaymentProvider `gorm:"size:32;not null"`
	// PaymentReference is the provider-issued checkout/session id, set when a
	// checkout is initiated against this order.
	PaymentReference string `gorm:"size:128;index"`
	// TransactionID is the provider-issued capture/charge id, set at settlement.
	TransactionID string `gorm:"size:128;index"`

	InvoiceNumber string `gorm:"size:64;uniqueIndex;not null"`
	InvoicePDF    []byte `gorm:"type:blob"`

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	ID      uint   `gorm:"primaryKey"`
	OrderID string `gorm:"size:64;index;not null"`
	BookID  string `gorm:"size:64;index;not null"`
	Title   string `gorm:"size:255;not null"` // captured at order time

	Quantity  int64           `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"` // captured at order time

	CreatedAt time.Time
}

type Contribution struct {
	ID     string  `gorm:"primaryKey;size:64;not null"`
	UserID *string `gorm:"size:64;index"` // nil for anonymous contributions
	BookID string  `gorm:"size:64;index;not null"`

	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null"` // immutable after creation
	Currency string          `gorm:"size:8;not null"`
	Reward   string          `gorm:"size:255"`
	IsPublic bool            `gorm:"not null;default:false"`

	Status           Status          `gorm:"size:32;index;not null"`
	PaymentMethod    PaymentProvider `gorm:"size:32;not null"`
	PaymentReference string          `gorm:"size:128;index"`
	TransactionID    string          `gorm:"size:128;index"`

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookEvent is the idempotency ledger: a row exists iff the provider event
// has been applied. Write-once, keyed by (provider, event_id).
type WebhookEvent struct {
	Provider    PaymentProvider `gorm:"primaryKey;size:32;not null"`
	EventID     string          `gorm:"primaryKey;size:128;not null"`
	EventType   string          `gorm:"size:64"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

type TransactionKind string

const (
	TransactionKindPayment TransactionKind = "payment"
	TransactionKindRefund  TransactionKind = "refund"
	TransactionKindWebhook TransactionKind = "webhook"
)

// PaymentTransaction is the append-only audit log of every attempted payment,
// refund and webhook event. Rows are never mutated after insert.
type PaymentTransaction struct {
	ID       uint            `gorm:"primaryKey"`
	Provider PaymentProvider `gorm:"size:32;index;not null"`
	Kind     TransactionKind `gorm:"size:16;index;not null"`
	Status   string          `gorm:"size:32;not null"`

	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Currency string          `gorm:"size:8"`

	// Provider references: checkout/session id and capture/charge id.
	Reference string `gorm:"size:128;index"`
	CaptureID string `gorm:"size:128;index"`

	OrderID        *string `gorm:"size:64;index"`
	ContributionID *string `gorm:"size:64;index"`

	CreatedAt time.Time
}

// MinorUnits converts a major-unit amount to integer minor units (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
