package service

import (
	"context"
	"time"

	"bookstore-payments/internal/model"

	"github.com/shopspring/decimal"
)

// InvoiceLine is one billed line on an invoice.
type InvoiceLine struct {
	Title     string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// InvoiceData carries the settlement facts the renderer turns into a
// document. Rendering must be deterministic enough that the result can be
// cached and re-served without regeneration.
type InvoiceData struct {
	InvoiceNumber      string
	BuyerName          string
	BuyerEmail         string
	SaleType           model.SaleType
	PaymentMethodLabel string
	PaymentReference   string
	Total              decimal.Decimal
	Currency           string
	CreatedAt          time.Time
	Lines              []InvoiceLine
}

// InvoiceRenderer is the opaque invoice collaborator; the engine does not
// know or care how the bytes are produced.
type InvoiceRenderer interface {
	Render(data InvoiceData) ([]byte, error)
}

// Notifier receives confirmation events fire-and-forget: a notification
// failure must never fail a settlement.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *model.Order, buyerEmail string)
	ContributionConfirmed(ctx context.Context, contribution *model.Contribution, buyerEmail string)
}
